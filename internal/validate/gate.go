package validate

import (
	"context"
	"fmt"
	"strings"
)

// OnFailure is the policy applied when a gate check fails (§4.6 step 4).
type OnFailure string

const (
	OnFailureBlock OnFailure = "block"
	OnFailureWarn  OnFailure = "warn"
)

// GateConfig is the `preCloseValidation` section of an agent's declared
// terminal-action boundary.
type GateConfig struct {
	Enabled          bool
	RequiredFields   []string // declared fields that must be present in metadata.validation and not false
	Validators       []string // names run against the Registry, in order
	OnFailure        OnFailure
}

// Gate implements §4.6: the Pre-Close Validator Gate. It satisfies
// action.Gate's Check(ctx, a) signature via the Checker adapter in
// internal/runner, kept here dependency-free of the action package to
// avoid an import cycle (validate is a dependency of action, not the
// reverse).
type Gate struct {
	cfg      GateConfig
	registry *Registry
}

// NewGate binds a GateConfig to a Registry of validators.
func NewGate(cfg GateConfig, registry *Registry) *Gate {
	return &Gate{cfg: cfg, registry: registry}
}

// Check runs the full §4.6 sequence against one terminal action's metadata
// and optional evidence. Returns (ok, reason, warn) where warn=true means
// failures were recorded but the action may still proceed
// (onFailure="warn").
func (g *Gate) Check(ctx context.Context, metadata map[string]any) (ok bool, reason string, warn bool) {
	if !g.cfg.Enabled {
		return true, "", false
	}

	warnMode := g.cfg.OnFailure == OnFailureWarn

	// Step 1: self-report check.
	validationRaw, has := metadata["validation"]
	if !has {
		return fail(warnMode, "missing validation results")
	}
	validation, isMap := validationRaw.(map[string]any)
	if !isMap {
		return fail(warnMode, "missing validation results")
	}
	for _, field := range g.cfg.RequiredFields {
		v, present := validation[field]
		if !present {
			return fail(warnMode, fmt.Sprintf("missing validation results: %s", field))
		}
		if b, isBool := v.(bool); isBool && !b {
			return fail(warnMode, fmt.Sprintf("validation field %q reported false", field))
		}
	}

	// Step 2: evidence consistency.
	if evidenceRaw, has := metadata["evidence"]; has {
		if evidence, isMap := evidenceRaw.(map[string]any); isMap {
			if contradiction := findContradiction(validation, evidence); contradiction != "" {
				return fail(warnMode, fmt.Sprintf("evidence contradicts claims: %s", contradiction))
			}
		}
	}

	// Step 3: validator registry run.
	if len(g.cfg.Validators) > 0 {
		agg := g.registry.RunSequential(ctx, g.cfg.Validators)
		if !agg.AllValid() {
			var failed []string
			for name, r := range agg.Results {
				if !r.Valid {
					failed = append(failed, fmt.Sprintf("%s: %s", name, r.Error))
				}
			}
			return fail(warnMode, fmt.Sprintf("validator failures: %v", failed))
		}
	}

	return true, "", false
}

func fail(warnMode bool, reason string) (bool, string, bool) {
	if warnMode {
		return false, reason, true
	}
	return false, reason, false
}

// findContradiction cross-checks a self-reported git_clean-style boolean
// claim against raw evidence output. Covers the literal
// scenario: validation:{git_clean:true} + evidence:{git_status_output:" M
// foo.ts"} must contradict. Generalizes to any `*_clean` boolean claim: for
// a claim `<base>_clean`, a non-empty evidence value under `<base>_output`
// or `<base>_<anything>_output` contradicts it.
func findContradiction(validation, evidence map[string]any) string {
	for field, v := range validation {
		claimedClean, isBool := v.(bool)
		if !isBool || !claimedClean {
			continue
		}
		base := trimCleanSuffix(field)
		for outputKey, out := range evidence {
			if !strings.HasPrefix(outputKey, base+"_") || !strings.HasSuffix(outputKey, "_output") {
				continue
			}
			if s, ok := out.(string); ok && len(trimSpace(s)) > 0 {
				return fmt.Sprintf("%s=true but %s is non-empty", field, outputKey)
			}
		}
	}
	return ""
}

func trimCleanSuffix(field string) string {
	const suffix = "_clean"
	if len(field) > len(suffix) && field[len(field)-len(suffix):] == suffix {
		return field[:len(field)-len(suffix)]
	}
	return field
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }
