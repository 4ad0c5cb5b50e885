package stepflow

import (
	"fmt"

	"github.com/agentrun/agentrun/internal/stepsregistry"
)

// AmbiguousIntentError is raised when the intent field is missing from the
// structured output and the current step has more than one transition,
// so the engine cannot pick one (§4.2 step 4, §7 AmbiguousIntent).
type AmbiguousIntentError struct {
	StepID string
}

func (e *AmbiguousIntentError) Error() string {
	return fmt.Sprintf("stepflow: ambiguous intent at step %q: no intentField value and multiple transitions declared", e.StepID)
}

// SchemaMismatchError is raised when a declared intentField cannot be found
// on the structured output map at all (distinct from "missing", which means
// present-but-empty; this is "the field path itself doesn't resolve").
type SchemaMismatchError struct {
	StepID string
	Field  string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("stepflow: structured output missing field %q at step %q", e.Field, e.StepID)
}

// PhaseViolationError records an intent a step's phase doesn't permit. Per
// §4.2 this does not crash the run — the Runner surfaces it as an error
// action and the engine still attempts to honor the intent.
type PhaseViolationError struct {
	StepID string
	Phase  stepsregistry.Phase
	Intent string
}

func (e *PhaseViolationError) Error() string {
	return fmt.Sprintf("stepflow: step %q (phase %s) may not emit intent %q", e.StepID, e.Phase, e.Intent)
}

// TransitionDecision is the result of one advance() call.
type TransitionDecision struct {
	NextStepID string
	Intent     string
	Terminal   bool
	Escalate   bool // true when a repeat's retry count exceeded iterations.max
	PhaseError *PhaseViolationError
}

// Engine advances a State against a stepsregistry.Registry.
type Engine struct {
	registry *stepsregistry.Registry
}

// NewEngine constructs an Engine bound to one agent's StepsRegistry.
func NewEngine(registry *stepsregistry.Registry) *Engine {
	return &Engine{registry: registry}
}

var phaseAllowed = map[stepsregistry.Phase]map[string]bool{
	stepsregistry.PhaseInitial:      {stepsregistry.IntentNext: true, stepsregistry.IntentRepeat: true},
	stepsregistry.PhaseContinuation: {stepsregistry.IntentNext: true, stepsregistry.IntentRepeat: true, stepsregistry.IntentHandoff: true},
	stepsregistry.PhaseVerification: {stepsregistry.IntentNext: true, stepsregistry.IntentRepeat: true, stepsregistry.IntentHandoff: true},
	stepsregistry.PhaseClosure:      {stepsregistry.IntentClosing: true, stepsregistry.IntentRepeat: true},
}

// Advance implements §4.2's advance(structuredOutput, currentStep).
// structuredOutput is the LLM's decoded structured-output map for this
// iteration; it may be nil if the step has no structuredGate.
func (e *Engine) Advance(state *State, structuredOutput map[string]any) (*TransitionDecision, error) {
	step, ok := e.registry.Steps[state.CurrentStepID]
	if !ok {
		return nil, fmt.Errorf("stepflow: current step %q not found in registry", state.CurrentStepID)
	}

	intent, err := e.extractIntent(step, state.CurrentStepID, structuredOutput)
	if err != nil {
		return nil, err
	}

	var phaseErr *PhaseViolationError
	if allowed, ok := phaseAllowed[step.Phase]; ok && step.Phase != "" {
		if !allowed[intent] {
			if _, isReserved := reservedIntents[intent]; isReserved {
				phaseErr = &PhaseViolationError{StepID: state.CurrentStepID, Phase: step.Phase, Intent: intent}
			}
		}
	}

	decision, err := e.resolveIntent(state, step, intent)
	if err != nil {
		return nil, err
	}
	decision.PhaseError = phaseErr
	state.record(intent)
	return decision, nil
}

var reservedIntents = map[string]bool{
	stepsregistry.IntentNext:    true,
	stepsregistry.IntentRepeat:  true,
	stepsregistry.IntentHandoff: true,
	stepsregistry.IntentClosing: true,
}

func (e *Engine) extractIntent(step stepsregistry.StepDefinition, stepID string, structuredOutput map[string]any) (string, error) {
	if step.StructuredGate == nil || step.StructuredGate.IntentField == "" {
		return e.singleOrAmbiguous(step, stepID)
	}
	val, ok := lookupField(structuredOutput, step.StructuredGate.IntentField)
	if !ok || val == "" {
		return e.singleOrAmbiguous(step, stepID)
	}
	return val, nil
}

func (e *Engine) singleOrAmbiguous(step stepsregistry.StepDefinition, stepID string) (string, error) {
	if len(step.Transitions) == 1 {
		for intent := range step.Transitions {
			return intent, nil
		}
	}
	return "", &AmbiguousIntentError{StepID: stepID}
}

// lookupField reads a possibly dotted field path (e.g. "next_action.action")
// out of a structured-output map, matching §4.2's intentField semantics.
func lookupField(data map[string]any, field string) (string, bool) {
	if data == nil {
		return "", false
	}
	cur := any(data)
	parts := splitDotted(field)
	for i, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		v, ok := m[p]
		if !ok {
			return "", false
		}
		if i == len(parts)-1 {
			s, ok := v.(string)
			return s, ok
		}
		cur = v
	}
	return "", false
}

func splitDotted(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func (e *Engine) resolveIntent(state *State, step stepsregistry.StepDefinition, intent string) (*TransitionDecision, error) {
	switch intent {
	case stepsregistry.IntentNext:
		target, ok := step.Transitions[stepsregistry.IntentNext]
		if !ok {
			return nil, fmt.Errorf("stepflow: step %q emitted next but has no next transition", state.CurrentStepID)
		}
		state.CurrentStepID = target
		state.StepIteration = 0
		state.RetryCount = 0
		return &TransitionDecision{NextStepID: target, Intent: intent}, nil

	case stepsregistry.IntentRepeat:
		state.RetryCount++
		state.StepIteration++
		if step.Iterations != nil && step.Iterations.Max != nil && state.RetryCount > *step.Iterations.Max {
			return &TransitionDecision{NextStepID: state.CurrentStepID, Intent: intent, Escalate: true}, nil
		}
		return &TransitionDecision{NextStepID: state.CurrentStepID, Intent: intent}, nil

	case stepsregistry.IntentHandoff:
		target, ok := step.Transitions[stepsregistry.IntentHandoff]
		if !ok {
			return nil, fmt.Errorf("stepflow: step %q emitted handoff but has no handoff transition", state.CurrentStepID)
		}
		state.CurrentStepID = target
		state.StepIteration = 0
		state.RetryCount = 0
		return &TransitionDecision{NextStepID: target, Intent: intent}, nil

	case stepsregistry.IntentClosing:
		target, ok := step.Transitions[stepsregistry.IntentClosing]
		if !ok {
			return nil, fmt.Errorf("stepflow: step %q emitted closing but has no closing transition", state.CurrentStepID)
		}
		state.CurrentStepID = target
		state.StepIteration = 0
		return &TransitionDecision{NextStepID: target, Intent: intent, Terminal: true}, nil

	default:
		target, ok := step.Transitions[intent]
		if !ok {
			return nil, fmt.Errorf("stepflow: step %q has no transition for intent %q", state.CurrentStepID, intent)
		}
		state.CurrentStepID = target
		state.StepIteration = 0
		state.RetryCount = 0
		return &TransitionDecision{NextStepID: target, Intent: intent}, nil
	}
}
