package action

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLogHandler_EmitsViaCallback(t *testing.T) {
	var got string
	h := &LogHandler{Emit: func(m string) { got = m }}
	res, err := h.Execute(context.Background(), DetectedAction{Content: "progress note"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if got != "progress note" {
		t.Fatalf("expected Emit to receive the action content, got %q", got)
	}
}

func TestLogHandler_FallsBackToStdlibLogWithoutEmit(t *testing.T) {
	h := &LogHandler{}
	res, err := h.Execute(context.Background(), DetectedAction{Content: "no emit wired"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
}

func TestFileHandler_WritesRelativeToBaseDir(t *testing.T) {
	dir := t.TempDir()
	h := &FileHandler{BaseDir: dir}
	a := DetectedAction{Content: "hello file", Metadata: map[string]any{"filename": "out/notes.txt", "append": false}}
	res, err := h.Execute(context.Background(), a)
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	data, readErr := os.ReadFile(filepath.Join(dir, "out/notes.txt"))
	if readErr != nil {
		t.Fatalf("expected file to be written: %v", readErr)
	}
	if string(data) != "hello file" {
		t.Fatalf("unexpected file content: %q", data)
	}
}

func TestFileHandler_MissingFilenameFails(t *testing.T) {
	h := &FileHandler{BaseDir: t.TempDir()}
	res, _ := h.Execute(context.Background(), DetectedAction{Content: "x"})
	if res.Success {
		t.Fatal("expected failure without metadata.filename")
	}
}

func TestFileHandler_AppendModeDefaultTrue(t *testing.T) {
	dir := t.TempDir()
	h := &FileHandler{BaseDir: dir}
	a := DetectedAction{Content: "first\n", Metadata: map[string]any{"filename": "log.txt"}}
	if _, err := h.Execute(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	a.Content = "second\n"
	if _, err := h.Execute(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "log.txt"))
	if string(data) != "first\nsecond\n" {
		t.Fatalf("expected append-by-default, got %q", data)
	}
}

func TestCompletionSignalHandler_InvokesMarkRequested(t *testing.T) {
	called := false
	h := &CompletionSignalHandler{MarkRequested: func() { called = true }}
	res, err := h.Execute(context.Background(), DetectedAction{})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if !called {
		t.Fatal("expected MarkRequested to be invoked")
	}
}

type stubTracker struct {
	commented, labeled, closed bool
	err                        error
}

func (s *stubTracker) Comment(ctx context.Context, issue int, body string) error {
	s.commented = true
	return s.err
}
func (s *stubTracker) AddLabel(ctx context.Context, issue int, label string) error {
	s.labeled = true
	return s.err
}
func (s *stubTracker) Close(ctx context.Context, issue int) error {
	s.closed = true
	return s.err
}

func TestIssueActionHandler_ProgressCommentsAndLabels(t *testing.T) {
	tracker := &stubTracker{}
	h := &IssueActionHandler{Tracker: tracker}
	a := DetectedAction{Content: "working on it", Metadata: map[string]any{"action": "progress", "issue": float64(42), "label": "in-progress"}}
	res, err := h.Execute(context.Background(), a)
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if !tracker.commented || !tracker.labeled {
		t.Fatalf("expected both comment and label: %+v", tracker)
	}
}

func TestIssueActionHandler_CloseIsTerminal(t *testing.T) {
	h := &IssueActionHandler{}
	a := DetectedAction{Metadata: map[string]any{"action": "close"}}
	if !h.Terminal(a) {
		t.Fatal("expected close subaction to be terminal")
	}
	a.Metadata["action"] = "progress"
	if h.Terminal(a) {
		t.Fatal("expected progress subaction to be non-terminal")
	}
}

func TestIssueActionHandler_MissingIssueFails(t *testing.T) {
	h := &IssueActionHandler{Tracker: &stubTracker{}}
	res, _ := h.Execute(context.Background(), DetectedAction{Metadata: map[string]any{"action": "progress"}})
	if res.Success {
		t.Fatal("expected failure without metadata.issue")
	}
}
