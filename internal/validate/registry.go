package validate

import (
	"context"
	"fmt"
	"sync"
)

// Registry holds pluggable validators, keyed by name. Like
// tool.Registry, a Registry may have a parent for a per-run overlay
// (WithExtra), but — per Design Notes — it is always constructed fresh per
// Runner and passed in; the package keeps no process-global registry.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
	parent     *Registry
}

// NewRegistry constructs an empty, top-level Registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// Register adds a validator, keyed by its declared Name().
func (r *Registry) Register(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[v.Name()] = v
}

// Get resolves a validator by name, checking local entries before
// delegating to the parent registry.
func (r *Registry) Get(name string) (Validator, bool) {
	r.mu.RLock()
	v, ok := r.validators[name]
	r.mu.RUnlock()
	if ok {
		return v, true
	}
	if r.parent != nil {
		return r.parent.Get(name)
	}
	return nil, false
}

// WithExtra returns a view registry that prefers extras over the parent's
// entries, without mutating either.
func (r *Registry) WithExtra(extras ...Validator) *Registry {
	view := &Registry{validators: make(map[string]Validator, len(extras)), parent: r}
	for _, v := range extras {
		view.validators[v.Name()] = v
	}
	return view
}

// RunSequential runs the named validators in order, aggregating results.
// Each validator runs only after the previous one returns, matching §4.6
// step 3 ("Validators are sequential"). An unknown validator name is
// treated as a ValidatorException (§7) rather than a panic.
func (r *Registry) RunSequential(ctx context.Context, names []string) Aggregate {
	agg := Aggregate{Results: make(map[string]Result, len(names))}
	for _, name := range names {
		v, ok := r.Get(name)
		if !ok {
			agg.Results[name] = Result{Valid: false, Error: fmt.Sprintf("Validator error: unknown validator %q", name)}
			continue
		}
		agg.Results[name] = safeRun(ctx, v)
	}
	return agg
}

// safeRun recovers a validator panic into a ValidatorException-shaped
// Result, since validators may perform arbitrary I/O (§4.6 "ValidatorException").
func safeRun(ctx context.Context, v Validator) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Valid: false, Error: fmt.Sprintf("Validator error: %v", p)}
		}
	}()
	return v.Validate(ctx)
}
