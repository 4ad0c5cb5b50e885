package stepsregistry

import "testing"

func TestPromptRef_IsC3L(t *testing.T) {
	cases := []struct {
		name string
		ref  PromptRef
		want bool
	}{
		{"plain path is not C3L", PromptRef{Path: "foo.md"}, false},
		{"c1 only is C3L", PromptRef{C1: "domain"}, true},
		{"path wins over c-fields", PromptRef{Path: "foo.md", C1: "domain"}, false},
		{"neither path nor c-fields is not C3L", PromptRef{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.ref.IsC3L(); got != c.want {
				t.Fatalf("IsC3L() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestStepDefinition_IsTerminal(t *testing.T) {
	if !(StepDefinition{}).IsTerminal() {
		t.Fatal("expected a step with no transitions to be terminal")
	}
	step := StepDefinition{Transitions: map[string]string{"next": "other"}}
	if step.IsTerminal() {
		t.Fatal("expected a step with a transition to not be terminal")
	}
}

func TestRegistry_EntryPrefersModeSpecificOverDefault(t *testing.T) {
	r := &Registry{
		EntryStep:   "default-start",
		EntryByMode: map[string]string{"fast": "fast-start"},
	}
	if id, ok := r.Entry("fast"); !ok || id != "fast-start" {
		t.Fatalf("expected mode-specific entry, got (%q, %v)", id, ok)
	}
	if id, ok := r.Entry(""); !ok || id != "default-start" {
		t.Fatalf("expected default entry for empty mode, got (%q, %v)", id, ok)
	}
	if id, ok := r.Entry("unknown-mode"); !ok || id != "default-start" {
		t.Fatalf("expected fallback to default entry for an unrecognized mode, got (%q, %v)", id, ok)
	}
}

func TestRegistry_EntryFalseWhenNothingConfigured(t *testing.T) {
	r := &Registry{}
	if _, ok := r.Entry(""); ok {
		t.Fatal("expected no entry step to report ok=false")
	}
}
