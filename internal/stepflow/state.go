// Package stepflow implements the Step-Flow Engine (C1): a state machine
// over the steps declared in a stepsregistry.Registry that advances by
// reading an "intent" out of the LLM's structured output each iteration.
// It generalizes internal/core.Flow — an Action-keyed
// successor map with an independent safety cap — into a registry-driven
// machine with reserved intents and phase rules (spec §4.2).
package stepflow

import "time"

// HistoryEntry is one append-only record of a transition taken.
type HistoryEntry struct {
	StepID    string    `json:"stepId"`
	Iteration int       `json:"iteration"`
	Intent    string    `json:"intent"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the mutable, per-run StepFlowState (§3). History is never pruned.
type State struct {
	CurrentStepID   string         `json:"currentStepId"`
	StepIteration   int            `json:"stepIteration"`
	TotalIterations int            `json:"totalIterations"`
	RetryCount      int            `json:"retryCount"`
	History         []HistoryEntry `json:"history"`
}

// NewState seeds a StepFlowState at the given entry step.
func NewState(entryStepID string) *State {
	return &State{CurrentStepID: entryStepID}
}

func (s *State) record(intent string) {
	s.History = append(s.History, HistoryEntry{
		StepID:    s.CurrentStepID,
		Iteration: s.TotalIterations,
		Intent:    intent,
		Timestamp: time.Now(),
	})
}
