package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentrun/agentrun/internal/tool"
)

// TimeTool returns the current time with optional timezone support.
type TimeTool struct{}

func NewTimeTool() *TimeTool { return &TimeTool{} }

func (t *TimeTool) Name() string        { return "get_time" }
func (t *TimeTool) Description() string { return "returns the current time, optionally in a given timezone" }

func (t *TimeTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "timezone", Type: "string", Description: "IANA timezone name, e.g. Asia/Shanghai (optional)", Required: false},
	)
}

func (t *TimeTool) Init(_ context.Context) error { return nil }
func (t *TimeTool) Close() error                 { return nil }

type timeArgs struct {
	Timezone string `json:"timezone"`
}

func (t *TimeTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a timeArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return tool.ToolResult{Error: fmt.Sprintf("failed to parse arguments: %v", err)}, nil
		}
	}

	now := time.Now()

	if a.Timezone != "" {
		loc, err := time.LoadLocation(a.Timezone)
		if err != nil {
			return tool.ToolResult{Error: fmt.Sprintf("invalid timezone %q: %v", a.Timezone, err)}, nil
		}
		now = now.In(loc)
	}

	weekday := translateWeekday(now.Weekday())
	output := fmt.Sprintf("%s (%s)", now.Format("2006-01-02 15:04:05 MST"), weekday)

	return tool.ToolResult{Output: output}, nil
}

// weekdayNames maps time.Weekday (Sunday=0) to its English name.
// Defined at package level to avoid per-call slice allocation.
var weekdayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func translateWeekday(w time.Weekday) string {
	return weekdayNames[w]
}
