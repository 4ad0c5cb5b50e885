package stepsregistry

import "strings"

// ResolvePath expands the registry's path template against a PromptRef's
// C3L fields. Kept configurable per Design Notes rather than hard-coded —
// callers may swap `r.PathTemplate` without touching this function.
func (r *Registry) ResolvePath(ref PromptRef) string {
	tmpl := r.PathTemplate
	if tmpl == "" {
		tmpl = DefaultPathTemplate
	}
	repl := strings.NewReplacer(
		"{c1}", ref.C1,
		"{c2}", ref.C2,
		"{c3}", ref.C3,
		"{edition}", ref.Edition,
		"{adaptation}", ref.Adaptation,
	)
	return repl.Replace(tmpl)
}
