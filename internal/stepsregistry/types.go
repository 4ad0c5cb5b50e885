// Package stepsregistry loads and validates the StepsRegistry: the map of
// declared steps that the Step-Flow Engine advances through. A "step" here
// unifies the prompt-registry step and the flow-routing step the original
// source kept as two overlapping concepts (see DESIGN.md §5.1) — one type
// carries both the prompt-resolution fields and the routing fields, with
// doc comments marking which fields matter to which completion type.
package stepsregistry

// Phase tags a step with where it sits in an agent's overall flow, and
// constrains which intents it may legally emit (§4.2 "Phase rules").
type Phase string

const (
	PhaseInitial      Phase = "initial"
	PhaseContinuation Phase = "continuation"
	PhaseVerification Phase = "verification"
	PhaseClosure      Phase = "closure"
)

// Reserved intent values the Step-Flow Engine interprets specially (§4.2).
const (
	IntentNext    = "next"
	IntentRepeat  = "repeat"
	IntentHandoff = "handoff"
	IntentClosing = "closing"
)

// PromptRef is either a direct path (with optional fallback) or a C3L
// reference resolved against the registry's path template.
type PromptRef struct {
	Path     string `json:"path,omitempty"`
	Fallback string `json:"fallback,omitempty"`

	C1         string `json:"c1,omitempty"`
	C2         string `json:"c2,omitempty"`
	C3         string `json:"c3,omitempty"`
	Edition    string `json:"edition,omitempty"`
	Adaptation string `json:"adaptation,omitempty"`
}

// IsC3L reports whether this ref should resolve through the path template
// rather than being used as a literal path.
func (p PromptRef) IsC3L() bool {
	return p.Path == "" && (p.C1 != "" || p.C2 != "" || p.C3 != "")
}

// VariableSource declares where a custom variable's value comes from.
type VariableSource string

const (
	SourceStdin      VariableSource = "stdin"
	SourceExternal   VariableSource = "external"
	SourceComputed   VariableSource = "computed"
	SourceParameter  VariableSource = "parameter"
	SourceContext    VariableSource = "context"
)

// CustomVariable is one declared non-user-supplied template variable.
type CustomVariable struct {
	Source VariableSource `json:"source"`
	// Ref names the parameter/context key or external lookup key, depending
	// on Source.
	Ref string `json:"ref,omitempty"`
}

// StructuredGate names the schema and intent field a step's structured
// output must carry, feeding the Step-Flow Engine's advance() (§4.2).
type StructuredGate struct {
	SchemaRef  string `json:"schemaRef,omitempty"`
	IntentField string `json:"intentField"`
}

// IterationsBound scopes a min/max iteration count to one step.
type IterationsBound struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// StepDefinition is one entry of the StepsRegistry.
type StepDefinition struct {
	// Prompt-resolution fields — meaningful to every completion type, since
	// every step must produce a prompt regardless of how completion is judged.
	Prompt          PromptRef                 `json:"prompt"`
	UVVariables     []string                  `json:"uvVariables,omitempty"`
	CustomVariables map[string]CustomVariable `json:"customVariables,omitempty"`

	// Routing fields — meaningful only to stepMachine-routed agents (an
	// agent using a non-stepMachine completion type may still declare a
	// single entry step with empty Transitions; the engine then simply
	// never advances past it).
	Phase          Phase             `json:"phase,omitempty"`
	StructuredGate *StructuredGate   `json:"structuredGate,omitempty"`
	Transitions    map[string]string `json:"transitions,omitempty"`
	Iterations     *IterationsBound  `json:"iterations,omitempty"`
}

// IsTerminal reports whether a step has no outgoing transitions at all —
// such steps must be reachable only via the `closing` intent (§3 invariant).
func (s StepDefinition) IsTerminal() bool {
	return len(s.Transitions) == 0
}

// Registry is the loaded, validated StepsRegistry (§3).
type Registry struct {
	Version     string                    `json:"version"`
	BasePath    string                    `json:"basePath"`
	PathTemplate string                   `json:"pathTemplate,omitempty"`
	EntryStep   string                    `json:"entryStep,omitempty"`
	EntryByMode map[string]string         `json:"entryByMode,omitempty"`
	Steps       map[string]StepDefinition `json:"steps"`
}

// DefaultPathTemplate is the C3L scheme from the source, kept configurable
// per Design Notes rather than hard-coded into the resolver.
const DefaultPathTemplate = "{c1}/{c2}/{c3}/f_{edition}_{adaptation}.md"

// Entry resolves the entry step for a given mode ("" for the default mode).
func (r *Registry) Entry(mode string) (string, bool) {
	if mode != "" {
		if id, ok := r.EntryByMode[mode]; ok {
			return id, true
		}
	}
	if r.EntryStep != "" {
		return r.EntryStep, true
	}
	return "", false
}
