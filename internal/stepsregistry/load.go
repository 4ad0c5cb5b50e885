package stepsregistry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadError wraps a failure reading or validating steps_registry.json.
type LoadError struct {
	Op  string
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("stepsregistry: %s: %v", e.Op, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// Load reads `.agent/{name}/steps_registry.json` and validates the
// referential invariants from §3: every transition target and entry step
// must exist, and terminal steps must be reachable only via `closing`.
func Load(agentsDir, name string) (*Registry, error) {
	path := filepath.Join(agentsDir, name, "steps_registry.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Op: "read steps_registry.json", Err: err}
	}

	var reg Registry
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reg); err != nil {
		return nil, &LoadError{Op: "parse steps_registry.json", Err: err}
	}
	if reg.PathTemplate == "" {
		reg.PathTemplate = DefaultPathTemplate
	}

	if err := reg.validate(); err != nil {
		return nil, &LoadError{Op: "validate", Err: err}
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	if len(r.Steps) == 0 {
		return fmt.Errorf("no steps declared")
	}
	if r.EntryStep != "" {
		if _, ok := r.Steps[r.EntryStep]; !ok {
			return fmt.Errorf("entryStep %q not found among steps", r.EntryStep)
		}
	}
	for mode, id := range r.EntryByMode {
		if _, ok := r.Steps[id]; !ok {
			return fmt.Errorf("entryStep for mode %q (%q) not found among steps", mode, id)
		}
	}

	reachableByClosing := map[string]bool{}
	for id, step := range r.Steps {
		for intent, target := range step.Transitions {
			if _, ok := r.Steps[target]; !ok {
				return fmt.Errorf("step %q: transition %q targets unknown step %q", id, intent, target)
			}
			if intent == IntentClosing {
				reachableByClosing[target] = true
			}
		}
	}
	for id, step := range r.Steps {
		if step.IsTerminal() {
			// A terminal step must be the target of at least one `closing`
			// transition, or be the sole entry step of a single-step agent.
			isEntry := id == r.EntryStep
			for _, e := range r.EntryByMode {
				if e == id {
					isEntry = true
				}
			}
			if !reachableByClosing[id] && !isEntry {
				return fmt.Errorf("terminal step %q is unreachable except via a closing transition", id)
			}
		}
	}
	return nil
}
