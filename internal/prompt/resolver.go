// Package prompt also implements the Prompt Resolver (L1): turning a step id
// or the well-known system key into prompt text, trying a user-supplied file
// before an embedded fallback, and substituting template variables. Builds
// on PromptLoader's disk→embed chain and frontmatter stripping, generalized
// from fixed filenames into the StepsRegistry's path/C3L scheme (§4.1).
package prompt

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/agentrun/agentrun/internal/stepsregistry"
)

// Source tags which tier produced a resolution's content (§4.1 "observable,
// MUST be logged per resolution").
type Source string

const (
	SourceFile     Source = "file"
	SourceFallback Source = "fallback"
)

// Resolution is the result of resolving one prompt.
type Resolution struct {
	Content string
	Source  Source
	Path    string
}

// NotFoundError is returned when neither the user file nor a fallback exists.
type NotFoundError struct {
	StepID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("prompt: no file and no fallback for step %q", e.StepID)
}

// SystemKey is the well-known fallback key used for resolveSystem.
const SystemKey = "system.md"

// Vars holds the three variable scopes consulted during substitution, in
// increasing order of precedence (§4.1 "declared customVariables → uv-*
// user variables → inputText/context").
type Vars struct {
	Context         map[string]string
	UVVariables     map[string]string
	CustomVariables map[string]string
	// AllowMissing leaves unresolved {name} references verbatim instead of
	// raising an error.
	AllowMissing bool
}

func (v Vars) lookup(name string) (string, bool) {
	if val, ok := v.Context[name]; ok {
		return val, true
	}
	uvName := strings.TrimPrefix(name, "uv-")
	if uvName != name {
		if val, ok := v.UVVariables[uvName]; ok {
			return val, true
		}
	}
	if val, ok := v.CustomVariables[name]; ok {
		return val, true
	}
	return "", false
}

var varRefPattern = regexp.MustCompile(`\{(uv-)?[A-Za-z0-9_.]+\}`)

// UnresolvedVariableError is raised when a {name} reference has no binding
// and AllowMissing is false.
type UnresolvedVariableError struct {
	Name string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("prompt: unresolved variable %q", e.Name)
}

func substitute(content string, vars Vars) (string, error) {
	var firstErr error
	result := varRefPattern.ReplaceAllStringFunc(content, func(ref string) string {
		if firstErr != nil {
			return ref
		}
		name := strings.TrimSuffix(strings.TrimPrefix(ref, "{"), "}")
		val, ok := vars.lookup(name)
		if !ok {
			if vars.AllowMissing {
				return ref
			}
			firstErr = &UnresolvedVariableError{Name: name}
			return ref
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// stripFrontmatter removes a leading "---\n...\n---\n" YAML block if present.
// Invalid YAML inside it is not an error here and nothing is logged; the
// body is used regardless (§4.1 "Frontmatter with invalid YAML →
// warning, body is still used" — this resolver treats frontmatter purely
// as a delimiter, never parsing its contents, so there is nothing to fail).
func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return content
	}
	rest := content[3:]
	rest = strings.TrimPrefix(rest, "\n")
	rest = strings.TrimPrefix(rest, "\r\n")
	if idx := strings.Index(rest, "\n---\n"); idx >= 0 {
		return rest[idx+len("\n---\n"):]
	}
	if idx := strings.Index(rest, "\n---\r\n"); idx >= 0 {
		return rest[idx+len("\n---\r\n"):]
	}
	return content
}

// Resolver is the Prompt Resolver (L1): it consults a StepsRegistry for the
// step's PromptRef, then applies the two-tier file→fallback strategy.
type Resolver struct {
	loader   *PromptLoader
	registry *stepsregistry.Registry
}

// NewResolver constructs a Resolver over an already-loaded StepsRegistry.
func NewResolver(loader *PromptLoader, registry *stepsregistry.Registry) *Resolver {
	return &Resolver{loader: loader, registry: registry}
}

// ResolveSystem resolves the agent's system prompt: a user file at
// systemPromptPath if set and present, else the embedded "system.md".
func (r *Resolver) ResolveSystem(systemPromptPath string, vars Vars) (Resolution, error) {
	if systemPromptPath != "" {
		if data, err := os.ReadFile(systemPromptPath); err == nil {
			body := stripFrontmatter(string(data))
			text, err := substitute(body, vars)
			if err != nil {
				return Resolution{}, err
			}
			return Resolution{Content: text, Source: SourceFile, Path: systemPromptPath}, nil
		}
	}
	fallback := r.loader.Load(SystemKey)
	if fallback == "" {
		return Resolution{}, &NotFoundError{StepID: "__system__"}
	}
	text, err := substitute(fallback, vars)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Content: text, Source: SourceFallback}, nil
}

// ResolveStep resolves a single step's prompt per §4.1: a direct path or a
// C3L reference is tried on disk first (relative to the registry's
// basePath), then the embedded fallback named by the step's prompt.fallback
// (defaulting to "<stepId>.md").
func (r *Resolver) ResolveStep(stepID string, step stepsregistry.StepDefinition, vars Vars) (Resolution, error) {
	diskPath := r.resolveDiskPath(step.Prompt)
	if diskPath != "" {
		if data, err := os.ReadFile(diskPath); err == nil {
			body := stripFrontmatter(string(data))
			text, err := substitute(body, vars)
			if err != nil {
				return Resolution{}, err
			}
			return Resolution{Content: text, Source: SourceFile, Path: diskPath}, nil
		}
	}

	fallbackKey := step.Prompt.Fallback
	if fallbackKey == "" {
		fallbackKey = stepID + ".md"
	}
	fallback := r.loader.Load(fallbackKey)
	if fallback == "" {
		return Resolution{}, &NotFoundError{StepID: stepID}
	}
	text, err := substitute(fallback, vars)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Content: text, Source: SourceFallback}, nil
}

// resolveDiskPath turns a PromptRef into an absolute-or-relative disk path,
// joined against the registry's basePath, using the C3L template when the
// ref is a C3L reference (§4.1 "C3L path template").
func (r *Resolver) resolveDiskPath(ref stepsregistry.PromptRef) string {
	var rel string
	switch {
	case ref.IsC3L():
		rel = r.registry.ResolvePath(ref)
	case ref.Path != "":
		rel = ref.Path
	default:
		return ""
	}
	if r.registry.BasePath == "" {
		return rel
	}
	return r.registry.BasePath + "/" + rel
}
