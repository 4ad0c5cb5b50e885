// Package agentdef defines the declarative AgentDefinition loaded once per
// run: the agent's identity, declared parameters, and the five runner
// sub-sections (flow, completion, boundaries, integrations, execution).
package agentdef

import "encoding/json"

// ParamType is the declared type of a CLI-exposed parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
)

// Validation holds the bounds a declared parameter's value must satisfy.
type Validation struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Enum    []string `json:"enum,omitempty"`
}

// CLIBinding describes how a parameter is exposed on the command line.
type CLIBinding struct {
	Flag      string `json:"flag"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage,omitempty"`
}

// Parameter is one declared input of an agent, surfaced to the CLI per §6.
type Parameter struct {
	Type       ParamType       `json:"type"`
	Required   bool            `json:"required,omitempty"`
	Default    json.RawMessage `json:"default,omitempty"`
	CLI        *CLIBinding     `json:"cli,omitempty"`
	Validation *Validation     `json:"validation,omitempty"`
}

// FlowConfig is the `runner.flow` sub-section.
type FlowConfig struct {
	SystemPromptPath   string   `json:"systemPromptPath,omitempty"`
	PromptRegistryPath string   `json:"promptRegistryPath"`
	FallbackDir        string   `json:"fallbackDir,omitempty"`
	SchemaBasePath     string   `json:"schemaBasePath,omitempty"`
	DefaultModel       string   `json:"defaultModel,omitempty"`
	AutoResponse       string   `json:"autoResponse,omitempty"`
	OutputFormat       string   `json:"outputFormat,omitempty"`       // fenced-block language tag the Action Detector scans for; default "action"
	AllowedActionTypes []string `json:"allowedActionTypes,omitempty"` // empty means all detected types are allowed
}

// CompletionType is the sealed tag for the completion-handler family (§4.3).
type CompletionType string

const (
	CompletionExternalState    CompletionType = "externalState"
	CompletionIterationBudget  CompletionType = "iterationBudget"
	CompletionCheckBudget      CompletionType = "checkBudget"
	CompletionKeywordSignal    CompletionType = "keywordSignal"
	CompletionStructuredSignal CompletionType = "structuredSignal"
	CompletionStepMachine      CompletionType = "stepMachine"
	CompletionComposite        CompletionType = "composite"
	CompletionCustom           CompletionType = "custom"
)

// knownCompletionTypes enumerates every tag the sealed union accepts. An
// unrecognized tag MUST reject the AgentDefinition at load time (§4.3,
// Design Notes "Dynamic dispatch on completion type") rather than fail
// lazily the first time a run reaches the completion check.
var knownCompletionTypes = map[CompletionType]bool{
	CompletionExternalState:    true,
	CompletionIterationBudget:  true,
	CompletionCheckBudget:      true,
	CompletionKeywordSignal:    true,
	CompletionStructuredSignal: true,
	CompletionStepMachine:      true,
	CompletionComposite:        true,
	CompletionCustom:           true,
}

// IsKnownCompletionType reports whether t is one of the eight declared variants.
func IsKnownCompletionType(t CompletionType) bool {
	return knownCompletionTypes[t]
}

// CompletionConfig pairs a completion type with its type-specific config blob.
// The blob's shape is validated by the completion package at handler
// construction time, not here — agentdef only enforces the tag is known.
type CompletionConfig struct {
	Type   CompletionType  `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// PermissionMode bounds what an agent run is allowed to do to the host.
type PermissionMode string

const (
	PermissionDefault        PermissionMode = "default"
	PermissionPlan           PermissionMode = "plan"
	PermissionAcceptEdits    PermissionMode = "acceptEdits"
	PermissionBypassAll      PermissionMode = "bypassPermissions"
)

// SandboxConfig restricts network and filesystem reach during a run.
type SandboxConfig struct {
	TrustedDomains []string `json:"trustedDomains,omitempty"`
	AllowedPaths   []string `json:"allowedPaths,omitempty"`
}

// PreCloseValidationConfig is the `runner.boundaries.preCloseValidation`
// sub-section (§4.6): gates every terminal action behind a self-report
// check, declared validators, and an on-failure policy before Execute runs.
type PreCloseValidationConfig struct {
	Enabled        bool     `json:"enabled"`
	RequiredFields []string `json:"requiredFields,omitempty"`
	Validators     []string `json:"validators,omitempty"`
	OnFailure      string   `json:"onFailure,omitempty"` // "block" or "warn"
}

// Boundaries is the `runner.boundaries` sub-section.
type Boundaries struct {
	AllowedTools        []string                  `json:"allowedTools"`
	PermissionMode      PermissionMode             `json:"permissionMode,omitempty"`
	Sandbox             *SandboxConfig             `json:"sandbox,omitempty"`
	PreCloseValidation  *PreCloseValidationConfig  `json:"preCloseValidation,omitempty"`
}

// IssueTrackerConfig configures the `issue-action` handler and, when used,
// the `externalState` completion probe.
type IssueTrackerConfig struct {
	Enabled              bool              `json:"enabled"`
	Owner                string            `json:"owner,omitempty"`
	Repo                 string            `json:"repo,omitempty"`
	LabelMapping         map[string]string `json:"labelMapping,omitempty"`
	DefaultClosureAction string            `json:"defaultClosureAction,omitempty"`
}

// MCPConfig points an agent at an MCP server manifest whose tools are merged
// into the per-run ToolDescriptor registry (§6D).
type MCPConfig struct {
	ManifestPath string `json:"manifestPath,omitempty"`
}

// Integrations is the `runner.integrations` sub-section.
type Integrations struct {
	IssueTracker *IssueTrackerConfig `json:"issueTracker,omitempty"`
	MCP          *MCPConfig          `json:"mcp,omitempty"`
}

// WorktreeConfig describes an isolated git worktree an agent run may create.
type WorktreeConfig struct {
	Enabled bool   `json:"enabled"`
	Base    string `json:"base,omitempty"`
}

// FinalizeConfig describes end-of-run repository actions.
type FinalizeConfig struct {
	AutoMerge bool `json:"autoMerge,omitempty"`
	Push      bool `json:"push,omitempty"`
	CreatePR  bool `json:"createPR,omitempty"`
}

// Execution is the `runner.execution` sub-section.
type Execution struct {
	Worktree *WorktreeConfig `json:"worktree,omitempty"`
	Finalize *FinalizeConfig `json:"finalize,omitempty"`
}

// RunnerConfig is the `runner` block of an AgentDefinition.
type RunnerConfig struct {
	Flow         FlowConfig        `json:"flow"`
	Completion   CompletionConfig  `json:"completion"`
	Boundaries   Boundaries        `json:"boundaries"`
	Integrations *Integrations     `json:"integrations,omitempty"`
	Execution    *Execution        `json:"execution,omitempty"`
}

// Definition is the immutable, loaded-once AgentDefinition (§3).
type Definition struct {
	Name        string               `json:"name"`
	DisplayName string               `json:"displayName,omitempty"`
	Description string               `json:"description,omitempty"`
	Parameters  map[string]Parameter `json:"parameters,omitempty"`
	Runner      RunnerConfig         `json:"runner"`
}
