package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/agentrun/agentrun/internal/tool"
)

// blockedOpenExts refuses to launch executable or script files via file_open.
// This keeps an agent from being tricked into running a malicious payload.
var blockedOpenExts = map[string]bool{
	// Windows executables / installers
	".exe": true, ".com": true, ".msi": true, ".msp": true,
	".scr": true, ".pif": true,
	// scripts
	".bat": true, ".cmd": true,
	".ps1": true, ".ps2": true,
	".vbs": true, ".vbe": true,
	".js":  true, ".jse": true,
	".wsf": true, ".wsh": true,
	".sh":  true, ".bash": true, ".zsh": true,
	// cross-platform runtime scripts
	".jar": true,
	".py":  true, ".pyw": true,
	".rb":  true,
	".pl":  true,
	".php": true,
}

// ── file_open ──

type FileOpenTool struct {
	workspaceDir string
}

func NewFileOpenTool(workspaceDir string) *FileOpenTool {
	return &FileOpenTool{workspaceDir: workspaceDir}
}

func (t *FileOpenTool) Name() string { return "file_open" }
func (t *FileOpenTool) Description() string {
	return "opens a file with the system's default program (images, audio, video, documents, etc.) — the OS picks the matching app. Only media/document files are supported; executables and scripts are refused."
}

func (t *FileOpenTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "file path to open (relative to the workspace)", Required: true},
	)
}

func (t *FileOpenTool) Init(_ context.Context) error { return nil }
func (t *FileOpenTool) Close() error                 { return nil }

type fileOpenArgs struct {
	Path string `json:"path"`
}

func (t *FileOpenTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a fileOpenArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("failed to parse arguments: %v", err)}, nil
	}

	if strings.TrimSpace(a.Path) == "" {
		return tool.ToolResult{Error: "path cannot be empty"}, nil
	}

	// boundary: refuse executable/script extensions
	ext := strings.ToLower(filepath.Ext(a.Path))
	if blockedOpenExts[ext] {
		return tool.ToolResult{Error: fmt.Sprintf("boundary violation: opening executable or script files is not allowed (%s)", ext)}, nil
	}

	absPath, err := safeResolvePath(a.Path, t.workspaceDir)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return tool.ToolResult{Error: fmt.Sprintf("file does not exist: %s — confirm the path with file_list first", a.Path)}, nil
		}
		return tool.ToolResult{Error: fmt.Sprintf("cannot access the file: %v", err)}, nil
	}
	if info.IsDir() {
		return tool.ToolResult{Error: "the given path is a directory, file_open only supports files"}, nil
	}

	cmd := openCmdFunc(absPath)
	if err := cmd.Start(); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("failed to launch the default program: %v", err)}, nil
	}
	// reap the child process asynchronously to avoid leaving a zombie
	go func() { _ = cmd.Wait() }()

	relPath := relOrAbs(absPath, t.workspaceDir)
	return tool.ToolResult{Output: fmt.Sprintf("opened with the default program: %s", relPath)}, nil
}

// openCmdFunc builds the actual "open with the default program" command.
// It's a package variable rather than a direct call so tests can swap in a
// no-op and avoid popping up a real GUI window.
var openCmdFunc = openCmd

// openCmd returns the "open with the default program" command for the current OS.
//
//   - Windows: cmd /c start "" "<path>"
//     (the empty string after start is a window-title placeholder, so a
//     quoted path is not taken as the title)
//   - macOS:   open "<path>"
//   - Linux:   xdg-open "<path>"
func openCmd(absPath string) *exec.Cmd {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("cmd", "/c", "start", "", absPath)
	case "darwin":
		return exec.Command("open", absPath)
	default:
		return exec.Command("xdg-open", absPath)
	}
}
