package skill

import (
	"context"
	"encoding/json"

	"github.com/agentrun/agentrun/internal/tool"
)

// ReloadTool implements tool.Tool and exposes the "skill_reload" built-in command.
// When invoked by the agent, it re-scans <workspace>/skills/, adds new skills,
// removes deleted ones, and recompiles any Go skills whose code has changed.
//
// This tool is always registered, regardless of whether mcp.json exists.
type ReloadTool struct {
	manager  *Manager
	registry *tool.Registry
}

// NewReloadTool creates a ReloadTool wired to the given Manager and Registry.
func NewReloadTool(manager *Manager, registry *tool.Registry) *ReloadTool {
	return &ReloadTool{manager: manager, registry: registry}
}

func (t *ReloadTool) Name() string { return "skill_reload" }

func (t *ReloadTool) Description() string {
	return "rescans the workspace skills/ directory, hot-loading newly added skills, unloading deleted ones, " +
		"and recompiling any Go-implemented skill automatically. Call this after creating or editing a skill.yaml " +
		"for the change to take effect. Returns a summary of added/removed/reloaded counts."
}

// InputSchema returns an empty schema — skill_reload accepts no arguments.
func (t *ReloadTool) InputSchema() json.RawMessage {
	return tool.BuildSchema()
}

// Execute triggers the skill hot-reload and returns a change summary.
func (t *ReloadTool) Execute(ctx context.Context, _ json.RawMessage) (tool.ToolResult, error) {
	summary := t.manager.Reload(ctx, t.registry)
	return tool.ToolResult{Output: summary}, nil
}

// Init is a no-op.
func (t *ReloadTool) Init(_ context.Context) error { return nil }

// Close is a no-op.
func (t *ReloadTool) Close() error { return nil }
