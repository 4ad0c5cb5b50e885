package agentdef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// LoaderError is returned for any failure that happens before a run starts:
// a malformed or schema-invalid agent.json, a missing agents directory, or
// an unknown completion type. Per §7 this is fatal — the run never starts.
type LoaderError struct {
	Agent string
	Op    string
	Err   error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("agentdef: load %s: %s: %v", e.Agent, e.Op, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

var (
	schemaOnce    sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr     error
)

// definitionSchema builds and compiles a JSON Schema for Definition,
// generated from the Go struct via invopop/jsonschema and compiled for
// validation via santhosh-tekuri/jsonschema/v5, rejecting any field not
// declared on Definition (the §3 invariant: "unknown fields are rejected
// at load time").
func definitionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		raw := reflector.Reflect(&Definition{})
		buf, err := json.Marshal(raw)
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("agent.json", bytes.NewReader(buf)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile("agent.json")
	})
	return compiledSchema, schemaErr
}

// Load reads and validates `.agent/{name}/agent.json`.
func Load(agentsDir, name string) (*Definition, error) {
	path := filepath.Join(agentsDir, name, "agent.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoaderError{Agent: name, Op: "read agent.json", Err: err}
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &LoaderError{Agent: name, Op: "parse agent.json", Err: err}
	}

	schema, err := definitionSchema()
	if err != nil {
		return nil, &LoaderError{Agent: name, Op: "build schema", Err: err}
	}
	if err := schema.Validate(generic); err != nil {
		return nil, &LoaderError{Agent: name, Op: "validate agent.json", Err: err}
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, &LoaderError{Agent: name, Op: "decode agent.json", Err: err}
	}

	if err := def.validate(); err != nil {
		return nil, &LoaderError{Agent: name, Op: "validate", Err: err}
	}
	return &def, nil
}

// validate enforces the invariants in §3 that a JSON Schema cannot express:
// completion.type must be a known tag, and type/config must be consistent.
func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !IsKnownCompletionType(d.Runner.Completion.Type) {
		return fmt.Errorf("unknown completion type %q", d.Runner.Completion.Type)
	}
	if d.Runner.Completion.Type == CompletionExternalState && len(d.Runner.Completion.Config) == 0 {
		return fmt.Errorf("completion type externalState requires config")
	}
	return nil
}

// List enumerates agent names found under agentsDir, for the CLI's --list.
func List(agentsDir string) ([]string, error) {
	entries, err := os.ReadDir(agentsDir)
	if err != nil {
		return nil, &LoaderError{Agent: "", Op: "list agents dir", Err: err}
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(agentsDir, e.Name(), "agent.json")); err == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
