package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentrun/agentrun/internal/agentdef"
)

// Build constructs the Handler for an agent's declared completion config.
// completion.type is a sealed sum type: an unknown tag is rejected at
// AgentDefinition load time (agentdef.Load), never here — by the time Build
// runs the tag is already known-good, so the default case below is
// unreachable in practice and exists only to fail loudly if that invariant
// is ever violated by a caller constructing a CompletionConfig by hand.
func Build(cfg agentdef.CompletionConfig, probe Probe, customBuilder func(json.RawMessage) (Handler, error)) (Handler, error) {
	switch cfg.Type {
	case agentdef.CompletionExternalState:
		return newExternalState(cfg.Config, probe)
	case agentdef.CompletionIterationBudget:
		return newIterationBudget(cfg.Config)
	case agentdef.CompletionCheckBudget:
		return newCheckBudget(cfg.Config)
	case agentdef.CompletionKeywordSignal:
		return newKeywordSignal(cfg.Config)
	case agentdef.CompletionStructuredSignal:
		return newStructuredSignal(cfg.Config)
	case agentdef.CompletionStepMachine:
		return newStepMachine(cfg.Config)
	case agentdef.CompletionComposite:
		return newComposite(cfg.Config, probe, customBuilder)
	case agentdef.CompletionCustom:
		if customBuilder == nil {
			return nil, fmt.Errorf("completion: custom handler requested but no customBuilder supplied")
		}
		return customBuilder(cfg.Config)
	default:
		return nil, fmt.Errorf("completion: unknown type %q", cfg.Type)
	}
}

// ── iterationBudget ──

type iterationBudget struct {
	MaxIterations int `json:"maxIterations"`
}

func newIterationBudget(raw json.RawMessage) (Handler, error) {
	var c iterationBudget
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("completion: iterationBudget config: %w", err)
	}
	if c.MaxIterations <= 0 {
		return nil, fmt.Errorf("completion: iterationBudget requires maxIterations > 0")
	}
	return &c, nil
}

func (c *iterationBudget) BuildInitialPrompt() string { return "" }
func (c *iterationBudget) BuildContinuationPrompt(iteration int, last Summary) string {
	return fmt.Sprintf("Iteration %d of %d.", iteration, c.MaxIterations)
}
func (c *iterationBudget) BuildCompletionCriteria() Criteria {
	return Criteria{Short: "iteration budget", Detail: fmt.Sprintf("completes after %d iterations", c.MaxIterations)}
}

// IsComplete is monotone in summary.Iteration: once the budget is reached it
// never un-reaches it (§8 "Completion monotonicity" law).
func (c *iterationBudget) IsComplete(summary Summary) bool { return summary.Iteration >= c.MaxIterations }
func (c *iterationBudget) GetCompletionDescription(summary Summary) string {
	return fmt.Sprintf("iterationBudget reached (%d/%d)", summary.Iteration, c.MaxIterations)
}

// ── checkBudget ──

type checkBudget struct {
	MaxChecks int `json:"maxChecks"`
}

func newCheckBudget(raw json.RawMessage) (Handler, error) {
	var c checkBudget
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("completion: checkBudget config: %w", err)
	}
	if c.MaxChecks <= 0 {
		return nil, fmt.Errorf("completion: checkBudget requires maxChecks > 0")
	}
	return &c, nil
}

func (c *checkBudget) BuildInitialPrompt() string { return "" }
func (c *checkBudget) BuildContinuationPrompt(iteration int, last Summary) string {
	return fmt.Sprintf("Check %d of %d so far.", last.CheckCallCount, c.MaxChecks)
}
func (c *checkBudget) BuildCompletionCriteria() Criteria {
	return Criteria{Short: "check budget", Detail: fmt.Sprintf("completes after %d check calls", c.MaxChecks)}
}
func (c *checkBudget) IsComplete(summary Summary) bool { return summary.CheckCallCount >= c.MaxChecks }
func (c *checkBudget) GetCompletionDescription(summary Summary) string {
	return fmt.Sprintf("checkBudget reached (%d/%d)", summary.CheckCallCount, c.MaxChecks)
}

// ── keywordSignal ──

type keywordSignal struct {
	CompletionKeyword string `json:"completionKeyword"`
}

func newKeywordSignal(raw json.RawMessage) (Handler, error) {
	var c keywordSignal
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("completion: keywordSignal config: %w", err)
	}
	if c.CompletionKeyword == "" {
		return nil, fmt.Errorf("completion: keywordSignal requires a non-empty completionKeyword")
	}
	return &c, nil
}

func (c *keywordSignal) BuildInitialPrompt() string { return "" }
func (c *keywordSignal) BuildContinuationPrompt(iteration int, last Summary) string {
	return fmt.Sprintf("When the task is complete, include the exact text %q in your final message.", c.CompletionKeyword)
}
func (c *keywordSignal) BuildCompletionCriteria() Criteria {
	return Criteria{Short: "keyword signal", Detail: fmt.Sprintf("completes when the last message contains %q", c.CompletionKeyword)}
}

// IsComplete matches against the last assistant message only (resolved
// Open Question, DESIGN.md §5.2), exact case-sensitive substring.
func (c *keywordSignal) IsComplete(summary Summary) bool {
	return strings.Contains(summary.LastAssistantMessage(), c.CompletionKeyword)
}
func (c *keywordSignal) GetCompletionDescription(summary Summary) string {
	return fmt.Sprintf("keywordSignal %q found", c.CompletionKeyword)
}

// ── structuredSignal ──

type structuredSignal struct {
	SignalType     string         `json:"signalType"`
	SignalTypeField string        `json:"signalTypeField"`
	RequiredFields map[string]any `json:"requiredFields"`
}

func newStructuredSignal(raw json.RawMessage) (Handler, error) {
	var c structuredSignal
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("completion: structuredSignal config: %w", err)
	}
	if c.SignalType == "" {
		return nil, fmt.Errorf("completion: structuredSignal requires signalType")
	}
	if c.SignalTypeField == "" {
		c.SignalTypeField = "signalType"
	}
	return &c, nil
}

func (c *structuredSignal) BuildInitialPrompt() string { return "" }
func (c *structuredSignal) BuildContinuationPrompt(iteration int, last Summary) string { return "" }
func (c *structuredSignal) BuildCompletionCriteria() Criteria {
	return Criteria{Short: "structured signal", Detail: fmt.Sprintf("completes when structured output's %s=%q with required fields present", c.SignalTypeField, c.SignalType)}
}
func (c *structuredSignal) IsComplete(summary Summary) bool {
	if summary.StructuredOutput == nil {
		return false
	}
	got, ok := summary.StructuredOutput[c.SignalTypeField]
	if !ok || got != c.SignalType {
		return false
	}
	for field, want := range c.RequiredFields {
		val, present := summary.StructuredOutput[field]
		if !present {
			return false
		}
		if want != nil && fmt.Sprint(val) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
func (c *structuredSignal) GetCompletionDescription(summary Summary) string {
	return fmt.Sprintf("structuredSignal %s=%q satisfied", c.SignalTypeField, c.SignalType)
}

// ── stepMachine ──

type stepMachine struct{}

func newStepMachine(raw json.RawMessage) (Handler, error) { return &stepMachine{}, nil }

func (c *stepMachine) BuildInitialPrompt() string                                      { return "" }
func (c *stepMachine) BuildContinuationPrompt(iteration int, last Summary) string       { return "" }
func (c *stepMachine) BuildCompletionCriteria() Criteria {
	return Criteria{Short: "step machine", Detail: "completes when the Step-Flow Engine reports terminal=true"}
}
func (c *stepMachine) IsComplete(summary Summary) bool { return summary.StepFlowTerminal }
func (c *stepMachine) GetCompletionDescription(summary Summary) string {
	return "step-flow engine reached a terminal step"
}

// ── externalState ──

type externalState struct {
	ResourceType string `json:"resourceType"`
	TargetState  string `json:"targetState"`
	IDParam      string `json:"idParam"`
	idValue      string
	probe        Probe
}

func newExternalState(raw json.RawMessage, probe Probe) (Handler, error) {
	var c externalState
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("completion: externalState config: %w", err)
	}
	if c.ResourceType == "" || c.TargetState == "" || c.IDParam == "" {
		return nil, fmt.Errorf("completion: externalState requires resourceType, targetState, and idParam")
	}
	if probe == nil {
		return nil, fmt.Errorf("completion: externalState requires a probe")
	}
	c.probe = probe
	return &c, nil
}

// BindParam supplies the identifying parameter's resolved value (e.g. the
// CLI-supplied issue number). Its absence at construction — i.e. never
// calling BindParam before IsComplete — fails closed (IsComplete returns
// false forever) per §4.3 "its absence fails at construction."
func (c *externalState) BindParam(value string) { c.idValue = value }

func (c *externalState) BuildInitialPrompt() string { return "" }
func (c *externalState) BuildContinuationPrompt(iteration int, last Summary) string { return "" }
func (c *externalState) BuildCompletionCriteria() Criteria {
	return Criteria{Short: "external state", Detail: fmt.Sprintf("completes when %s %s reaches state %q", c.ResourceType, c.IDParam, c.TargetState)}
}
func (c *externalState) IsComplete(summary Summary) bool {
	if c.idValue == "" {
		return false
	}
	state, err := c.probe.Probe(context.Background(), c.ResourceType, c.idValue)
	if err != nil {
		return false
	}
	return state == c.TargetState
}
func (c *externalState) GetCompletionDescription(summary Summary) string {
	return fmt.Sprintf("%s %s reached state %q", c.ResourceType, c.IDParam, c.TargetState)
}

// ── composite ──

type compositeOp string

const (
	opAnd   compositeOp = "and"
	opOr    compositeOp = "or"
	opFirst compositeOp = "first"
)

type compositeConfig struct {
	Operator compositeOp          `json:"operator"`
	Children []agentdef.CompletionConfig `json:"children"`
}

type composite struct {
	op       compositeOp
	children []Handler
}

func newComposite(raw json.RawMessage, probe Probe, customBuilder func(json.RawMessage) (Handler, error)) (Handler, error) {
	var c compositeConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("completion: composite config: %w", err)
	}
	if c.Operator != opAnd && c.Operator != opOr && c.Operator != opFirst {
		return nil, fmt.Errorf("completion: composite operator must be and|or|first, got %q", c.Operator)
	}
	comp := &composite{op: c.Operator}
	for _, childCfg := range c.Children {
		h, err := Build(childCfg, probe, customBuilder)
		if err != nil {
			return nil, fmt.Errorf("completion: composite child: %w", err)
		}
		comp.children = append(comp.children, h)
	}
	return comp, nil
}

func (c *composite) BuildInitialPrompt() string { return "" }
func (c *composite) BuildContinuationPrompt(iteration int, last Summary) string { return "" }
func (c *composite) BuildCompletionCriteria() Criteria {
	return Criteria{Short: "composite (" + string(c.op) + ")", Detail: fmt.Sprintf("%d children combined with %s", len(c.children), c.op)}
}

// IsComplete implements the composite laws from §8: `and` of empty children
// is true, `or` of empty children is false; children are evaluated
// left-to-right and `and`/`or` short-circuit.
func (c *composite) IsComplete(summary Summary) bool {
	switch c.op {
	case opAnd:
		for _, h := range c.children {
			if !h.IsComplete(summary) {
				return false
			}
		}
		return true
	case opOr:
		for _, h := range c.children {
			if h.IsComplete(summary) {
				return true
			}
		}
		return false
	case opFirst:
		if len(c.children) == 0 {
			return false // newComposite accepts an empty `first`; it never reports completion
		}
		return c.children[0].IsComplete(summary)
	}
	return false
}
func (c *composite) GetCompletionDescription(summary Summary) string {
	return fmt.Sprintf("composite(%s) over %d children", c.op, len(c.children))
}
