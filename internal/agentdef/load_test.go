package agentdef

import (
	"os"
	"path/filepath"
	"testing"
)

const validAgentJSON = `{
	"name": "test-agent",
	"runner": {
		"flow": {"promptRegistryPath": "prompts/registry.json"},
		"completion": {"type": "iterationBudget", "config": {"maxIterations": 5}},
		"boundaries": {"allowedTools": []}
	}
}`

func writeAgent(t *testing.T, agentsDir, name, body string) {
	t.Helper()
	dir := filepath.Join(agentsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "agent.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_ValidDefinitionSucceeds(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "test-agent", validAgentJSON)
	def, err := Load(dir, "test-agent")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Name != "test-agent" || def.Runner.Completion.Type != CompletionIterationBudget {
		t.Fatalf("unexpected definition: %+v", def)
	}
}

func TestLoad_MissingAgentErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, "nope"); err == nil {
		t.Fatal("expected an error for a missing agent.json")
	}
}

func TestLoad_MalformedJSONErrors(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "broken", `{ not json`)
	if _, err := Load(dir, "broken"); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestLoad_UnknownTopLevelFieldRejected(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"name": "test-agent",
		"somethingMadeUp": true,
		"runner": {
			"flow": {"promptRegistryPath": "prompts/registry.json"},
			"completion": {"type": "iterationBudget", "config": {"maxIterations": 5}},
			"boundaries": {"allowedTools": []}
		}
	}`
	writeAgent(t, dir, "extra-field", body)
	if _, err := Load(dir, "extra-field"); err == nil {
		t.Fatal("expected an unknown top-level field to be rejected by the schema")
	}
}

func TestLoad_UnknownCompletionTypeRejected(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"name": "test-agent",
		"runner": {
			"flow": {"promptRegistryPath": "prompts/registry.json"},
			"completion": {"type": "madeUpType"},
			"boundaries": {"allowedTools": []}
		}
	}`
	writeAgent(t, dir, "bad-completion", body)
	if _, err := Load(dir, "bad-completion"); err == nil {
		t.Fatal("expected an unknown completion type to be rejected")
	}
}

func TestLoad_ExternalStateRequiresConfig(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"name": "test-agent",
		"runner": {
			"flow": {"promptRegistryPath": "prompts/registry.json"},
			"completion": {"type": "externalState"},
			"boundaries": {"allowedTools": []}
		}
	}`
	writeAgent(t, dir, "missing-config", body)
	if _, err := Load(dir, "missing-config"); err == nil {
		t.Fatal("expected externalState without config to be rejected")
	}
}

func TestLoad_MissingNameRejected(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"runner": {
			"flow": {"promptRegistryPath": "prompts/registry.json"},
			"completion": {"type": "iterationBudget", "config": {"maxIterations": 5}},
			"boundaries": {"allowedTools": []}
		}
	}`
	writeAgent(t, dir, "no-name", body)
	if _, err := Load(dir, "no-name"); err == nil {
		t.Fatal("expected a missing name to be rejected")
	}
}

func TestList_EnumeratesOnlyDirsWithAgentJSON(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "one", validAgentJSON)
	writeAgent(t, dir, "two", validAgentJSON)
	if err := os.MkdirAll(filepath.Join(dir, "not-an-agent"), 0o755); err != nil {
		t.Fatal(err)
	}
	names, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 agents, got %v", names)
	}
}
