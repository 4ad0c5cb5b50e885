// Package validate implements the Validator Registry (L5) and the
// Pre-Close Validator Gate (§4.6): the mechanism that blocks terminal
// actions unless declared invariants hold. Grounded in
// internal/tool/registry.go's parent/view pattern, generalized from tools to
// validators per Design Notes' "construct one registry per Runner".
package validate

import "context"

// Result is the outcome of one validator (§3 ValidatorResult).
type Result struct {
	Valid   bool     `json:"valid"`
	Error   string   `json:"error,omitempty"`
	Details []string `json:"details,omitempty"`
}

// Aggregate collects every validator's Result keyed by validator name
// (§3 AggregateValidationResult).
type Aggregate struct {
	Results map[string]Result `json:"results"`
}

// AllValid reports whether every validator in the aggregate passed.
func (a Aggregate) AllValid() bool {
	for _, r := range a.Results {
		if !r.Valid {
			return false
		}
	}
	return true
}

// Validator is one pluggable pre-close check, run sequentially (a later
// validator may depend on an earlier one's side effects — §4.6 step 3).
type Validator interface {
	Name() string
	Validate(ctx context.Context) Result
}
