package builtin

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// ── FileOpenTool Execute tests ────────────────────────────────────────────────

// nopOpenCmd is a test-only no-op command factory: exits immediately without
// popping any GUI window. Injected as openCmdFunc, it lets the full Execute
// code path be exercised without side effects.
func nopOpenCmd(_ string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/c", "exit", "0")
	}
	return exec.Command("sh", "-c", "exit 0")
}

func TestFileOpenTool_EmptyPath(t *testing.T) {
	tool := NewFileOpenTool(t.TempDir())
	args, _ := json.Marshal(fileOpenArgs{Path: ""})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error == "" || !strings.Contains(result.Error, "path cannot be empty") {
		t.Errorf("expected empty path error, got: %+v", result)
	}
}

func TestFileOpenTool_BlockedExtension(t *testing.T) {
	workspace := t.TempDir()
	blocked := []string{
		".exe", ".bat", ".cmd", ".ps1", ".vbs", ".sh", ".jar", ".py", ".msi", ".scr",
	}
	for _, ext := range blocked {
		t.Run(ext, func(t *testing.T) {
			// create the file first to confirm the extension check fires before stat
			fname := "payload" + ext
			os.WriteFile(filepath.Join(workspace, fname), []byte("x"), 0644)

			tool := NewFileOpenTool(workspace)
			args, _ := json.Marshal(fileOpenArgs{Path: fname})
			result, err := tool.Execute(context.Background(), args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Error == "" || !strings.Contains(result.Error, "boundary violation") {
				t.Errorf("expected blocked extension error for %s, got: %+v", ext, result)
			}
		})
	}
}

func TestFileOpenTool_FileNotExist(t *testing.T) {
	tool := NewFileOpenTool(t.TempDir())
	args, _ := json.Marshal(fileOpenArgs{Path: "ghost.txt"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error == "" || !strings.Contains(result.Error, "file does not exist") {
		t.Errorf("expected not-exist error, got: %+v", result)
	}
}

func TestFileOpenTool_IsDirectory(t *testing.T) {
	workspace := t.TempDir()
	os.MkdirAll(filepath.Join(workspace, "subdir"), 0755)

	tool := NewFileOpenTool(workspace)
	args, _ := json.Marshal(fileOpenArgs{Path: "subdir"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error == "" || !strings.Contains(result.Error, "directory") {
		t.Errorf("expected directory error, got: %+v", result)
	}
}

func TestFileOpenTool_PathTraversal(t *testing.T) {
	tool := NewFileOpenTool(t.TempDir())
	args, _ := json.Marshal(fileOpenArgs{Path: "../../etc/passwd"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error == "" {
		t.Errorf("expected traversal error, got success")
	}
}

func TestFileOpenTool_BadJSON(t *testing.T) {
	tool := NewFileOpenTool(t.TempDir())
	result, err := tool.Execute(context.Background(), []byte(`not json`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error == "" || !strings.Contains(result.Error, "failed to parse arguments") {
		t.Errorf("expected parse error, got: %+v", result)
	}
}

func TestFileOpenTool_Success(t *testing.T) {
	// swap openCmdFunc for a no-op to avoid popping a real GUI window or a
	// Windows "file not found" dialog once the temp dir is cleaned up.
	orig := openCmdFunc
	openCmdFunc = nopOpenCmd
	defer func() { openCmdFunc = orig }()

	workspace := t.TempDir()
	os.WriteFile(filepath.Join(workspace, "note.txt"), []byte("hello"), 0644)

	tool := NewFileOpenTool(workspace)
	args, _ := json.Marshal(fileOpenArgs{Path: "note.txt"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error != "" {
		t.Errorf("unexpected tool error: %s", result.Error)
	}
	if !strings.Contains(result.Output, "note.txt") {
		t.Errorf("output should mention file name, got: %q", result.Output)
	}
	if !strings.Contains(result.Output, "opened with the default program") {
		t.Errorf("output should confirm open, got: %q", result.Output)
	}
}

// ── openCmd unit test ─────────────────────────────────────────────────────────

func TestOpenCmd_ReturnsCmd(t *testing.T) {
	// Only verify openCmd does not panic and returns non-nil; do not actually run the command
	cmd := openCmd("/tmp/test.txt")
	if cmd == nil {
		t.Error("openCmd returned nil")
	}
	if cmd.Path == "" {
		t.Error("openCmd Path is empty")
	}
}

// ── blockedOpenExts coverage ──────────────────────────────────────────────────

func TestBlockedOpenExts_Completeness(t *testing.T) {
	// Make sure common dangerous extensions are in the list
	mustBlock := []string{".exe", ".bat", ".ps1", ".sh", ".py", ".jar", ".msi"}
	for _, ext := range mustBlock {
		if !blockedOpenExts[ext] {
			t.Errorf("extension %s should be in blockedOpenExts", ext)
		}
	}

	// Make sure normal media types are not in the list
	shouldAllow := []string{".txt", ".jpg", ".png", ".mp3", ".mp4", ".pdf", ".docx"}
	for _, ext := range shouldAllow {
		if blockedOpenExts[ext] {
			t.Errorf("extension %s should NOT be in blockedOpenExts", ext)
		}
	}
}
