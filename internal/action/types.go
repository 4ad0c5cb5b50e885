package action

import "context"

// Result is the outcome of executing one DetectedAction (§3 ActionResult).
type Result struct {
	Action  DetectedAction `json:"action"`
	Success bool           `json:"success"`
	Result  string         `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Handler executes one action type. Like tool_node.go, a
// Handler never returns a Go error for a domain-level failure — it folds
// failures into Result.Error and returns Success=false, matching §7's
// ActionExecError policy ("Action's ActionResult.success=false; iteration
// continues"). A returned Go error here means something is wrong with the
// handler's own wiring (e.g. nil dependency) and is itself folded by the
// Executor into a Result with Success=false.
type Handler interface {
	// Type returns the action type this handler serves (e.g. "log").
	Type() string
	// Terminal reports whether this action's effect is irreversible and
	// therefore must pass the Pre-Close Validator Gate before Execute runs.
	Terminal(a DetectedAction) bool
	Execute(ctx context.Context, a DetectedAction) (Result, error)
}
