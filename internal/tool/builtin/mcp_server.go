package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agentrun/agentrun/internal/tool"
)

// mcpConfig mirrors the top-level structure of mcp.json for read/write access.
// This is used by the B-phase management tools (mcp_server_add/remove/list).
// It is a local copy to avoid circular dependency on the mcp package.
type mcpConfig struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

// mcpServerEntry is the JSON representation of a single server in mcp.json.
// Fields mirror mcp.ServerConfig plus _meta, so entries we don't modify keep
// those fields when the file is rewritten; any other field not declared here
// is dropped on rewrite.
type mcpServerEntry struct {
	Transport string            `json:"transport"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	URL       string            `json:"url,omitempty"`
	Env       []string          `json:"env,omitempty"`
	Lifecycle string            `json:"lifecycle,omitempty"`
	Meta      map[string]string `json:"_meta,omitempty"`
}

// readMCPConfig reads and parses mcp.json. Returns an empty MCPServers map if file
// doesn't exist yet. All callers must hold no locks (pure I/O helper).
func readMCPConfig(path string) (mcpConfig, error) {
	cfg := mcpConfig{MCPServers: make(map[string]mcpServerEntry)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read mcp.json: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse mcp.json: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]mcpServerEntry)
	}
	return cfg, nil
}

// writeMCPConfig serialises cfg to path with indentation.
func writeMCPConfig(path string, cfg mcpConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize mcp.json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write mcp.json: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// mcp_server_add
// ─────────────────────────────────────────────────────────────────────────────

// MCPServerAddTool registers a new MCP server entry in mcp.json.
type MCPServerAddTool struct {
	mcpConfigPath string
}

// NewMCPServerAddTool creates the mcp_server_add tool. mcpConfigPath is the
// absolute path to mcp.json. Typically injected from main.go.
func NewMCPServerAddTool(mcpConfigPath string) *MCPServerAddTool {
	return &MCPServerAddTool{mcpConfigPath: mcpConfigPath}
}

func (t *MCPServerAddTool) Name() string { return "mcp_server_add" }
func (t *MCPServerAddTool) Description() string {
	return "registers a new MCP server entry in mcp.json. Call mcp_reload afterward for the change to take effect." +
		"errors if the name already exists (never overwrites) — remove the old entry with mcp_server_remove first."
}

func (t *MCPServerAddTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "name", Type: "string", Required: true,
			Description: "server name, globally unique (the mcp.json map key). Example: excel-tool"},
		tool.SchemaParam{Name: "transport", Type: "string", Required: true,
			Description: `transport protocol: "stdio" (local process) or "sse" (HTTP SSE). Example: stdio`,
			Enum:        []string{"stdio", "sse"}},
		tool.SchemaParam{Name: "command", Type: "string", Required: false,
			Description: `stdio only: executable path or name. Example: node`},
		tool.SchemaParam{Name: "args", Type: "string", Required: false,
			Description: `stdio only: command-line arguments, a JSON array encoded as a string. Example: ["--import","tsx","skills/excel/server.ts"]`},
		tool.SchemaParam{Name: "url", Type: "string", Required: false,
			Description: `sse only: the SSE server URL. Example: http://localhost:8080`},
		tool.SchemaParam{Name: "env", Type: "string", Required: false,
			Description: `stdio only: extra environment variables, a JSON array encoded as a string, shaped like ["KEY=VALUE"]. Example: ["API_KEY=abc123"]`},
		tool.SchemaParam{Name: "lifecycle", Type: "string", Required: false,
			Description: `lifecycle: "persistent" (default, long-running process) or "per_call" (a fresh process each call). Example: persistent`,
			Enum:        []string{"persistent", "per_call"}},
	)
}

type mcpServerAddArgs struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Command   string `json:"command"`
	Args      string `json:"args"` // JSON-encoded []string
	URL       string `json:"url"`
	Env       string `json:"env"` // JSON-encoded []string
	Lifecycle string `json:"lifecycle"`
}

func (t *MCPServerAddTool) Execute(_ context.Context, raw json.RawMessage) (tool.ToolResult, error) {
	var a mcpServerAddArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("failed to parse arguments: %v", err)}, nil
	}

	// Validate required fields.
	if a.Name == "" {
		return tool.ToolResult{Error: "name cannot be empty"}, nil
	}
	if a.Transport != "stdio" && a.Transport != "sse" {
		return tool.ToolResult{Error: `transport must be "stdio" or "sse", got: ` + a.Transport}, nil
	}

	// Parse optional JSON-array strings.
	var args, env []string
	if a.Args != "" {
		if err := json.Unmarshal([]byte(a.Args), &args); err != nil {
			return tool.ToolResult{Error: fmt.Sprintf(`invalid args format (expected a JSON array encoded as a string, e.g. ["a","b"]): %v`, err)}, nil
		}
	}
	if a.Env != "" {
		if err := json.Unmarshal([]byte(a.Env), &env); err != nil {
			return tool.ToolResult{Error: fmt.Sprintf(`invalid env format (expected a JSON array encoded as a string, e.g. ["KEY=VAL"]): %v`, err)}, nil
		}
	}

	cfg, err := readMCPConfig(t.mcpConfigPath)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	// Refuse to silently overwrite an existing entry.
	if _, exists := cfg.MCPServers[a.Name]; exists {
		return tool.ToolResult{
			Error: fmt.Sprintf("server %q already exists — remove the old entry with mcp_server_remove before re-registering", a.Name),
		}, nil
	}

	entry := mcpServerEntry{
		Transport: a.Transport,
		Command:   a.Command,
		Args:      args,
		URL:       a.URL,
		Env:       env,
		Lifecycle: a.Lifecycle,
		Meta:      map[string]string{"origin": "agent"},
	}
	cfg.MCPServers[a.Name] = entry

	if err := writeMCPConfig(t.mcpConfigPath, cfg); err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	return tool.ToolResult{
		Output: fmt.Sprintf(
			"server %q written to mcp.json (transport=%s, lifecycle=%s).\nCall mcp_reload for the change to take effect.",
			a.Name, a.Transport, func() string {
				if a.Lifecycle == "" {
					return "persistent (default)"
				}
				return a.Lifecycle
			}(),
		),
	}, nil
}

func (t *MCPServerAddTool) Init(_ context.Context) error { return nil }
func (t *MCPServerAddTool) Close() error                 { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// mcp_server_remove
// ─────────────────────────────────────────────────────────────────────────────

// MCPServerRemoveTool removes an MCP server entry from mcp.json.
type MCPServerRemoveTool struct {
	mcpConfigPath string
}

func NewMCPServerRemoveTool(mcpConfigPath string) *MCPServerRemoveTool {
	return &MCPServerRemoveTool{mcpConfigPath: mcpConfigPath}
}

func (t *MCPServerRemoveTool) Name() string { return "mcp_server_remove" }
func (t *MCPServerRemoveTool) Description() string {
	return "removes an MCP server entry from mcp.json. Call mcp_reload afterward for the change to take effect." +
		"Dangerous operation: requires confirm=\"yes\" to run, to guard against accidental removal."
}

func (t *MCPServerRemoveTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "name", Type: "string", Required: true,
			Description: "server name to remove (the mcp.json map key). Example: excel-tool"},
		tool.SchemaParam{Name: "confirm", Type: "string", Required: true,
			Description: `safety confirmation field; must be set to "yes" for the removal to run, to guard against accidental removal.`},
	)
}

type mcpServerRemoveArgs struct {
	Name    string `json:"name"`
	Confirm string `json:"confirm"`
}

func (t *MCPServerRemoveTool) Execute(_ context.Context, raw json.RawMessage) (tool.ToolResult, error) {
	var a mcpServerRemoveArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("failed to parse arguments: %v", err)}, nil
	}
	if a.Name == "" {
		return tool.ToolResult{Error: "name cannot be empty"}, nil
	}
	if a.Confirm != "yes" {
		return tool.ToolResult{
			Error: fmt.Sprintf(
				"Dangerous operation: removing server %q unregisters every tool it contributed; call mcp_reload for it to take effect.\n"+
					"To confirm, set the confirm argument to \"yes\" and call again.", a.Name),
		}, nil
	}

	cfg, err := readMCPConfig(t.mcpConfigPath)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	if _, exists := cfg.MCPServers[a.Name]; !exists {
		return tool.ToolResult{
			Error: fmt.Sprintf("server %q does not exist in mcp.json — see the current list with mcp_server_list", a.Name),
		}, nil
	}

	delete(cfg.MCPServers, a.Name)
	if err := writeMCPConfig(t.mcpConfigPath, cfg); err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	return tool.ToolResult{
		Output: fmt.Sprintf("server %q removed from mcp.json.\nCall mcp_reload for the change to take effect (a running process is stopped on reload).", a.Name),
	}, nil
}

func (t *MCPServerRemoveTool) Init(_ context.Context) error { return nil }
func (t *MCPServerRemoveTool) Close() error                 { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// mcp_server_list
// ─────────────────────────────────────────────────────────────────────────────

// MCPServerListTool reads mcp.json and returns all registered server entries.
type MCPServerListTool struct {
	mcpConfigPath string
}

func NewMCPServerListTool(mcpConfigPath string) *MCPServerListTool {
	return &MCPServerListTool{mcpConfigPath: mcpConfigPath}
}

func (t *MCPServerListTool) Name() string { return "mcp_server_list" }
func (t *MCPServerListTool) Description() string {
	return "lists every MCP server entry registered in mcp.json (including lifecycle, origin, and other metadata)." +
		"call this before creating a new server to confirm the name doesn't collide with an existing one."
}

func (t *MCPServerListTool) InputSchema() json.RawMessage {
	return tool.BuildSchema() // no params
}

func (t *MCPServerListTool) Execute(_ context.Context, _ json.RawMessage) (tool.ToolResult, error) {
	cfg, err := readMCPConfig(t.mcpConfigPath)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	if len(cfg.MCPServers) == 0 {
		return tool.ToolResult{Output: "no servers are registered in mcp.json yet."}, nil
	}

	// Build a human-readable table.
	type row struct {
		name      string
		transport string
		lifecycle string
		origin    string
		scanRes   string
		scannedAt string
		command   string
	}
	rows := make([]row, 0, len(cfg.MCPServers))
	for name, e := range cfg.MCPServers {
		lc := e.Lifecycle
		if lc == "" {
			lc = "persistent"
		}
		origin := e.Meta["origin"]
		if origin == "" {
			origin = "user"
		}
		scanRes := e.Meta["scan_result"]
		if scanRes == "" {
			scanRes = "—"
		}
		scannedAt := e.Meta["scanned_at"]
		if scannedAt == "" {
			scannedAt = "—"
		}
		cmd := e.Command
		if len(e.Args) > 0 {
			argsBytes, _ := json.Marshal(e.Args)
			cmd += " " + string(argsBytes)
		}
		if e.URL != "" {
			cmd = e.URL
		}
		rows = append(rows, row{
			name:      name,
			transport: e.Transport,
			lifecycle: lc,
			origin:    origin,
			scanRes:   scanRes,
			scannedAt: scannedAt,
			command:   cmd,
		})
	}

	// Sort by name for deterministic output.
	for i := 0; i < len(rows)-1; i++ {
		for j := i + 1; j < len(rows); j++ {
			if rows[i].name > rows[j].name {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
	}

	out := fmt.Sprintf("mcp.json has %d registered servers (read at %s):\n\n",
		len(rows), time.Now().Format("2006-01-02 15:04:05"))
	for _, r := range rows {
		out += fmt.Sprintf("▶ %s\n  transport=%s  lifecycle=%s  origin=%s  scan=%s(%s)\n  cmd: %s\n\n",
			r.name, r.transport, r.lifecycle, r.origin, r.scanRes, r.scannedAt, r.command)
	}

	return tool.ToolResult{Output: out}, nil
}

func (t *MCPServerListTool) Init(_ context.Context) error { return nil }
func (t *MCPServerListTool) Close() error                 { return nil }
