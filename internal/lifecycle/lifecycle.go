// Package lifecycle implements the Lifecycle state machine (C3): the
// strict created→initializing→ready→running→completed|failed DAG (§4.8).
// Encoded as a table (current state × action → next state) per Design
// Notes, never via panic/exception control flow — there is no
// direct analog of this elsewhere in the codebase; it is grounded instead in
// a general preference for explicit result structs over exceptions (ExecFallback).
package lifecycle

import "fmt"

// State is one of the five lifecycle states.
type State string

const (
	StateCreated      State = "created"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// Action is one of the four actions that drive a transition.
type Action string

const (
	ActionInitialize Action = "initialize"
	ActionStart      Action = "start"
	ActionComplete   Action = "complete"
	ActionFail       Action = "fail"
)

// InvalidTransition is returned when an action is illegal from the current
// state (§7).
type InvalidTransition struct {
	From   State
	Action Action
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("lifecycle: invalid transition: action %q from state %q", e.Action, e.From)
}

// table is the current-state × action → next-state DAG. A missing entry
// means the transition is illegal.
var table = map[State]map[Action]State{
	StateCreated:      {ActionInitialize: StateInitializing},
	StateInitializing: {ActionStart: StateReady},
	StateReady:        {ActionStart: StateRunning},
	StateRunning:      {ActionComplete: StateCompleted, ActionFail: StateFailed},
}

// Result is what Run/Stop return once a lifecycle reaches a terminal state.
type Result struct {
	Success    bool
	Reason     string
	Iterations int
}

// Machine tracks one run's lifecycle state and its recorded Result once
// terminal.
type Machine struct {
	state  State
	result *Result
}

// New constructs a Machine in the `created` state.
func New() *Machine {
	return &Machine{state: StateCreated}
}

// State returns the current lifecycle state.
func (m *Machine) State() State { return m.state }

// apply looks up the transition table and either advances state or returns
// InvalidTransition — table-driven, never exception-based (§9 Design Notes).
func (m *Machine) apply(action Action) error {
	next, ok := table[m.state][action]
	if !ok {
		return &InvalidTransition{From: m.state, Action: action}
	}
	m.state = next
	return nil
}

// Initialize transitions created→initializing.
func (m *Machine) Initialize() error { return m.apply(ActionInitialize) }

// Start transitions initializing→ready or ready→running, depending on
// current state — callers typically call it twice: once to finish
// initialization, once to begin running.
func (m *Machine) Start() error { return m.apply(ActionStart) }

// Complete transitions running→completed and records the final Result.
func (m *Machine) Complete(reason string, iterations int) (Result, error) {
	if err := m.apply(ActionComplete); err != nil {
		return Result{}, err
	}
	m.result = &Result{Success: true, Reason: reason, Iterations: iterations}
	return *m.result, nil
}

// Fail transitions running→failed and records the final Result.
func (m *Machine) Fail(reason string, iterations int) (Result, error) {
	if err := m.apply(ActionFail); err != nil {
		return Result{}, err
	}
	m.result = &Result{Success: false, Reason: reason, Iterations: iterations}
	return *m.result, nil
}

// Stop returns the recorded result if the machine is already in a terminal
// state (completed or failed); per §4.8 "stop on a terminal state returns
// the recorded result." If the machine is not yet terminal, Stop forces a
// failed transition with reason "stopped".
func (m *Machine) Stop() Result {
	if m.result != nil {
		return *m.result
	}
	res, err := m.Fail("stopped", 0)
	if err != nil {
		// Not running yet (e.g. stopped during initialize) — synthesize a
		// result without mutating state further.
		return Result{Success: false, Reason: "stopped"}
	}
	return res
}
