package builtin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agentrun/agentrun/internal/tool"
)

const (
	grepTimeout         = 15 * time.Second
	grepDefaultMax      = 50
	grepHardMax         = 200
	grepMaxLineLen      = 200 // truncate long lines to keep output tidy
	grepMaxContextLines = 3
)

// ── file_grep ──

type FileGrepTool struct {
	workspaceDir string
}

func NewFileGrepTool(workspaceDir string) *FileGrepTool {
	return &FileGrepTool{workspaceDir: workspaceDir}
}

func (t *FileGrepTool) Name() string { return "file_grep" }
func (t *FileGrepTool) Description() string {
	return "searches file contents in the workspace by regex or literal pattern, returning the file path, line number, and matching line. Supports a filename filter and surrounding context lines."
}

func (t *FileGrepTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "pattern", Type: "string", Description: "search pattern (regular expressions supported)", Required: true},
		tool.SchemaParam{Name: "path", Type: "string", Description: "directory or file to search, defaults to the workspace root", Required: false},
		tool.SchemaParam{Name: "case_sensitive", Type: "boolean", Description: "whether the search is case-sensitive (default false)", Required: false},
		tool.SchemaParam{Name: "file_glob", Type: "string", Description: "filename filter, e.g. *.go or *.{ts,tsx}", Required: false},
		tool.SchemaParam{Name: "context_lines", Type: "integer", Description: "show N lines of context before/after each match (default 0, max 3)", Required: false},
		tool.SchemaParam{Name: "max_results", Type: "integer", Description: "maximum number of matches returned (default 50, max 200)", Required: false},
	)
}

func (t *FileGrepTool) Init(_ context.Context) error { return nil }
func (t *FileGrepTool) Close() error                 { return nil }

type fileGrepArgs struct {
	Pattern       string `json:"pattern"`
	Path          string `json:"path"`
	CaseSensitive bool   `json:"case_sensitive"`
	FileGlob      string `json:"file_glob"`
	ContextLines  int    `json:"context_lines"`
	MaxResults    int    `json:"max_results"`
}

type grepMatch struct {
	File        string
	LineNum     int    // 1-based
	Line        string // the matched line
	BeforeStart int    // 1-based line number of first before-context line
	Before      []string
	After       []string // starts at LineNum+1
}

func (t *FileGrepTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a fileGrepArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("failed to parse arguments: %v", err)}, nil
	}

	if strings.TrimSpace(a.Pattern) == "" {
		return tool.ToolResult{Error: "pattern cannot be empty"}, nil
	}

	// Clamp context_lines and max_results
	contextLines := clamp(a.ContextLines, 0, grepMaxContextLines)
	maxResults := a.MaxResults
	if maxResults <= 0 {
		maxResults = grepDefaultMax
	}
	if maxResults > grepHardMax {
		maxResults = grepHardMax
	}

	// Compile regexp
	re, err := buildGrepRegexp(a.Pattern, a.CaseSensitive)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid regular expression: %v", err)}, nil
	}

	// Resolve search root
	searchRoot := t.workspaceDir
	if a.Path != "" {
		resolved, err := safeResolvePath(a.Path, t.workspaceDir)
		if err != nil {
			return tool.ToolResult{Error: err.Error()}, nil
		}
		searchRoot = resolved
	}

	// Apply timeout to the walk
	walkCtx, cancel := context.WithTimeout(ctx, grepTimeout)
	defer cancel()

	// Verify the search root exists before starting the walk;
	// WalkDir would silently return no results for a non-existent path.
	if _, err := os.Stat(searchRoot); err != nil {
		if os.IsNotExist(err) {
			return tool.ToolResult{Error: fmt.Sprintf("search path does not exist: %s — confirm the path with file_list first", a.Path)}, nil
		}
		return tool.ToolResult{Error: fmt.Sprintf("cannot access the search path: %v", err)}, nil
	}

	var matches []grepMatch
	limitReached := false

	_ = filepath.WalkDir(searchRoot, func(path string, d os.DirEntry, err error) error {
		select {
		case <-walkCtx.Done():
			return walkCtx.Err()
		default:
		}

		if err != nil {
			return nil // skip inaccessible paths
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		// File glob filter
		if a.FileGlob != "" {
			matched, _ := matchFileGlob(a.FileGlob, d.Name())
			if !matched {
				return nil
			}
		}

		fileMatches, err := searchInFile(walkCtx, path, re, contextLines)
		if err != nil {
			return nil // skip files that can't be read
		}
		for _, m := range fileMatches {
			if len(matches) >= maxResults {
				limitReached = true
				return fmt.Errorf("limit reached")
			}
			matches = append(matches, m)
		}
		return nil
	})

	if len(matches) == 0 {
		return tool.ToolResult{Output: "no matches found"}, nil
	}

	output := formatGrepResults(matches, t.workspaceDir, limitReached, maxResults)
	return tool.ToolResult{Output: output}, nil
}

// buildGrepRegexp compiles the search pattern.
// Go's regexp package uses the RE2 engine which guarantees linear-time
// execution, so ReDoS is not a concern and no special guard is needed.
func buildGrepRegexp(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	prefix := "(?i)"
	if caseSensitive {
		prefix = ""
	}
	return regexp.Compile(prefix + pattern)
}

// matchFileGlob supports simple glob patterns and brace expansion like *.{ts,tsx}.
func matchFileGlob(pattern, name string) (bool, error) {
	if strings.Contains(pattern, "{") && strings.Contains(pattern, "}") {
		start := strings.Index(pattern, "{")
		end := strings.Index(pattern, "}")
		if start < end {
			prefix := pattern[:start]
			suffix := pattern[end+1:]
			alternatives := strings.Split(pattern[start+1:end], ",")
			for _, alt := range alternatives {
				m, err := filepath.Match(prefix+strings.TrimSpace(alt)+suffix, name)
				if err != nil {
					return false, err
				}
				if m {
					return true, nil
				}
			}
			return false, nil
		}
	}
	return filepath.Match(pattern, name)
}

// searchInFile reads a file and returns all regex matches with optional context.
// Returns nil without error for binary files or files larger than 10MB (silently skipped).
func searchInFile(ctx context.Context, path string, re *regexp.Regexp, contextLines int) ([]grepMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Skip files larger than 10MB to prevent OOM on huge log files
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > 10<<20 {
		return nil, nil // silently skip oversized files
	}

	// Binary detection: sample first 512 bytes
	sample := make([]byte, 512)
	n, err := f.Read(sample)
	if err != nil && n == 0 {
		return nil, err
	}
	if isGrepBinary(sample[:n]) {
		return nil, nil // skip binary
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	// Read all lines into memory (needed for context window)
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var matches []grepMatch
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}

		m := grepMatch{
			File:    path,
			LineNum: i + 1,
			Line:    truncateLine(line, grepMaxLineLen),
		}

		// Before context
		if contextLines > 0 {
			beforeStart := i - contextLines
			if beforeStart < 0 {
				beforeStart = 0
			}
			m.BeforeStart = beforeStart + 1
			for j := beforeStart; j < i; j++ {
				m.Before = append(m.Before, truncateLine(lines[j], grepMaxLineLen))
			}
		}

		// After context
		if contextLines > 0 {
			end := i + contextLines + 1
			if end > len(lines) {
				end = len(lines)
			}
			for j := i + 1; j < end; j++ {
				m.After = append(m.After, truncateLine(lines[j], grepMaxLineLen))
			}
		}

		matches = append(matches, m)
	}
	return matches, nil
}

// isGrepBinary returns true when the byte slice looks like binary content.
func isGrepBinary(data []byte) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return true
	}
	if utf8.Valid(data) {
		return false
	}
	// Non-UTF-8: count non-printable control bytes
	nonPrintable := 0
	for _, b := range data {
		if b < 0x08 || (b >= 0x0E && b < 0x20 && b != 0x1B) {
			nonPrintable++
		}
	}
	return len(data) > 0 && nonPrintable*10 > len(data)
}

// truncateLine truncates a string to maxLen runes, appending "..." if truncated.
func truncateLine(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// formatGrepResults renders matches in a compact, annotated format.
// Match lines are prefixed with "> "; context lines with "  ".
func formatGrepResults(matches []grepMatch, workspaceDir string, limitReached bool, maxResults int) string {
	var sb strings.Builder
	currentFile := ""
	fileCount := 0
	totalMatches := 0

	for _, m := range matches {
		relFile := m.File
		if rel, err := filepath.Rel(workspaceDir, m.File); err == nil {
			relFile = rel
		}

		if relFile != currentFile {
			if currentFile != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("file: %s\n", relFile))
			currentFile = relFile
			fileCount++
		}

		// Before-context lines
		for i, line := range m.Before {
			sb.WriteString(fmt.Sprintf("  line %d:   %s\n", m.BeforeStart+i, line))
		}
		// Match line (marked with >)
		sb.WriteString(fmt.Sprintf("  line %d: > %s\n", m.LineNum, m.Line))
		// After-context lines
		for i, line := range m.After {
			sb.WriteString(fmt.Sprintf("  line %d:   %s\n", m.LineNum+1+i, line))
		}

		totalMatches++
	}

	suffix := ""
	if limitReached {
		suffix = fmt.Sprintf("(reached the limit of %d matches)", maxResults)
	}
	sb.WriteString(fmt.Sprintf("---\n%d files, %d matches%s (`>` marks the matching line, the rest is context)", fileCount, totalMatches, suffix))

	return sb.String()
}

// clamp returns v clamped to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
