package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/agentrun/agentrun/internal/tool"
	"github.com/agentrun/agentrun/internal/walkthrough"
)

// WalkthroughTool allows the agent to record or view execution memos.
// Each request gets its own instance (via NewWalkthroughTool) with session context.
type WalkthroughTool struct {
	store     *walkthrough.Store
	sessionID string
}

// NewWalkthroughTool creates a per-request instance with session context.
func NewWalkthroughTool(store *walkthrough.Store, sessionID string) *WalkthroughTool {
	return &WalkthroughTool{store: store, sessionID: sessionID}
}

func (t *WalkthroughTool) Name() string { return "walkthrough" }
func (t *WalkthroughTool) Description() string {
	return "Record or view execution memos. add: pin a key finding (survives FIFO eviction); list: view current memos"
}

func (t *WalkthroughTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "operation", Type: "string", Description: "add to pin a finding, list to view memos", Required: true},
		tool.SchemaParam{Name: "content", Type: "string", Description: "memo content (required for add, max 200 characters)", Required: false},
	)
}

func (t *WalkthroughTool) Init(_ context.Context) error { return nil }
func (t *WalkthroughTool) Close() error                 { return nil }

const maxContentRunes = 200

type walkthroughArgs struct {
	Operation string `json:"operation"`
	Content   string `json:"content"`
}

func (t *WalkthroughTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a walkthroughArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("failed to parse arguments: %v", err)}, nil
	}

	switch a.Operation {
	case "add":
		if a.Content == "" {
			return tool.ToolResult{Error: "add requires a non-empty content"}, nil
		}
		// Truncate to maxContentRunes
		content := a.Content
		if utf8.RuneCountInString(content) > maxContentRunes {
			runes := []rune(content)
			content = string(runes[:maxContentRunes]) + "…"
		}
		t.store.Append(t.sessionID, walkthrough.Entry{
			Source:  walkthrough.SourceManual,
			Content: content,
		})
		return tool.ToolResult{Output: "pinned"}, nil

	case "list":
		rendered := t.store.Render(t.sessionID)
		if rendered == "" {
			return tool.ToolResult{Output: "no memos recorded"}, nil
		}
		return tool.ToolResult{Output: rendered}, nil

	default:
		return tool.ToolResult{Error: fmt.Sprintf("unknown operation %q, expected add/list", a.Operation)}, nil
	}
}
