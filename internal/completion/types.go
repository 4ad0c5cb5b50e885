// Package completion implements the pluggable completion-handler family
// (§4.3): eight ways an iteration loop can decide it's done. Grounded in
// the budget-style guards of (internal/agent/state.go's
// MaxAgentSteps, internal/agent/loop_detector.go, internal/agent/cost_guard.go)
// generalized into a sealed sum type decoded at AgentDefinition load time.
package completion

import "context"

// Summary is the read-only view of an iteration's outcome a Handler judges
// against — the completion package's view of spec's IterationSummary.
type Summary struct {
	Iteration          int
	AssistantResponses []string
	ToolsUsed          []string
	CheckCallCount     int
	StructuredOutput   map[string]any
	CompletionRequested bool
	StepFlowTerminal   bool
}

// LastAssistantMessage returns the most recent assistant response, or "" if
// none. keywordSignal matches against this only (Open Question, resolved
// for determinism — see DESIGN.md §5.2).
func (s Summary) LastAssistantMessage() string {
	if len(s.AssistantResponses) == 0 {
		return ""
	}
	return s.AssistantResponses[len(s.AssistantResponses)-1]
}

// Criteria is the human-readable completion criteria a handler exposes.
type Criteria struct {
	Short  string
	Detail string
}

// Probe observes the state of an external resource for the externalState
// handler (§6 "External probe"). The core never parses runner-specific
// output; it only consumes the probe's verdict.
type Probe interface {
	Probe(ctx context.Context, resourceType, id string) (state string, err error)
}

// Handler is the shape every completion type implements (§4.3).
type Handler interface {
	BuildInitialPrompt() string
	BuildContinuationPrompt(iteration int, lastSummary Summary) string
	BuildCompletionCriteria() Criteria
	IsComplete(summary Summary) bool
	GetCompletionDescription(summary Summary) string
}
