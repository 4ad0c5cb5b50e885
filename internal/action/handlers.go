package action

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// LogHandler implements the built-in `log` action (§4.5): append to the
// iteration summary and emit a log entry. Grounded in
// internal/agent/tool_node.go's auto-summary recording idiom.
type LogHandler struct {
	Emit func(message string)
}

func (h *LogHandler) Type() string                       { return "log" }
func (h *LogHandler) Terminal(a DetectedAction) bool      { return false }
func (h *LogHandler) Execute(ctx context.Context, a DetectedAction) (Result, error) {
	if h.Emit != nil {
		h.Emit(a.Content)
	} else {
		log.Printf("[Action:log] %s", a.Content)
	}
	return Result{Action: a, Success: true, Result: "logged"}, nil
}

// FileHandler implements the built-in `file` action: write or append
// Content to metadata.filename (append by default), creating parent
// directories as needed.
type FileHandler struct {
	// BaseDir roots relative filenames (normally the run's working directory).
	BaseDir string
}

func (h *FileHandler) Type() string                  { return "file" }
func (h *FileHandler) Terminal(a DetectedAction) bool { return false }

func (h *FileHandler) Execute(ctx context.Context, a DetectedAction) (Result, error) {
	name, _ := a.Metadata["filename"].(string)
	if name == "" {
		return Result{Action: a, Success: false, Error: "file action missing metadata.filename"}, nil
	}
	path := name
	if !filepath.IsAbs(path) && h.BaseDir != "" {
		path = filepath.Join(h.BaseDir, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{Action: a, Success: false, Error: fmt.Sprintf("mkdir: %v", err)}, nil
	}

	appendMode := true
	if v, ok := a.Metadata["append"]; ok {
		if b, ok := v.(bool); ok {
			appendMode = b
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return Result{Action: a, Success: false, Error: fmt.Sprintf("open: %v", err)}, nil
	}
	defer f.Close()
	if _, err := f.WriteString(a.Content); err != nil {
		return Result{Action: a, Success: false, Error: fmt.Sprintf("write: %v", err)}, nil
	}
	return Result{Action: a, Success: true, Result: "wrote " + path}, nil
}

// CompletionSignalHandler implements `completion-signal`: marks the
// iteration summary as "completion requested", for agents whose
// keywordSignal/structuredSignal completion type prefers an explicit
// signal over text scanning.
type CompletionSignalHandler struct {
	MarkRequested func()
}

func (h *CompletionSignalHandler) Type() string                  { return "completion-signal" }
func (h *CompletionSignalHandler) Terminal(a DetectedAction) bool { return false }
func (h *CompletionSignalHandler) Execute(ctx context.Context, a DetectedAction) (Result, error) {
	if h.MarkRequested != nil {
		h.MarkRequested()
	}
	return Result{Action: a, Success: true, Result: "completion requested"}, nil
}

// IssueTracker is the abstract external-tracker surface the `issue-action`
// handler depends on — the core never imports a concrete SDK (Design
// Notes: "do not leak backend SDK types into the Runner"). The concrete
// implementation lives in internal/integrations/github.
type IssueTracker interface {
	Comment(ctx context.Context, issue int, body string) error
	AddLabel(ctx context.Context, issue int, label string) error
	Close(ctx context.Context, issue int) error
}

// IssueActionHandler implements `issue-action`: {action, issue, body,
// label?}. The `close` subaction is terminal and gated by the Pre-Close
// Validator before Execute runs (the Executor checks Terminal() and routes
// accordingly; Execute itself assumes the gate already passed).
type IssueActionHandler struct {
	Tracker IssueTracker
}

func (h *IssueActionHandler) Type() string { return "issue-action" }

func (h *IssueActionHandler) Terminal(a DetectedAction) bool {
	sub, _ := a.Metadata["action"].(string)
	return sub == "close"
}

func (h *IssueActionHandler) Execute(ctx context.Context, a DetectedAction) (Result, error) {
	sub, _ := a.Metadata["action"].(string)
	issueF, ok := a.Metadata["issue"].(float64)
	if !ok {
		return Result{Action: a, Success: false, Error: "issue-action missing metadata.issue"}, nil
	}
	issue := int(issueF)
	label, _ := a.Metadata["label"].(string)

	var err error
	switch sub {
	case "progress", "question", "blocked":
		err = h.Tracker.Comment(ctx, issue, a.Content)
		if err == nil && label != "" {
			err = h.Tracker.AddLabel(ctx, issue, label)
		}
	case "close":
		err = h.Tracker.Close(ctx, issue)
	default:
		return Result{Action: a, Success: false, Error: fmt.Sprintf("unknown issue-action subaction %q", sub)}, nil
	}
	if err != nil {
		return Result{Action: a, Success: false, Error: err.Error()}, nil
	}
	return Result{Action: a, Success: true, Result: fmt.Sprintf("issue-action %s on #%d", sub, issue)}, nil
}
