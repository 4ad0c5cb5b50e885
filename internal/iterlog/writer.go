package iterlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// JSONLWriter appends one JSON object per line to a file — the default log
// format (§6). Mirrors exec_logger.go's truncate-on-create
// idiom for a fresh run.
type JSONLWriter struct {
	file *os.File
}

// NewJSONLWriter creates (truncating) the file at path and rotates older
// per-agent log files beyond keepMost (§6 "Rotation keeps the N most
// recent files per agent (default 100)").
func NewJSONLWriter(dir, agentName string, keepMost int) (*JSONLWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("iterlog: mkdir %s: %w", dir, err)
	}
	if keepMost <= 0 {
		keepMost = 100
	}
	seq := nextSeq(dir, agentName)
	// Leave room for the file created below so keepMost files remain in total.
	if err := rotate(dir, agentName, keepMost-1); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%d.jsonl", agentName, seq))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("iterlog: create %s: %w", path, err)
	}
	return &JSONLWriter{file: f}, nil
}

func (w *JSONLWriter) Write(e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = w.file.Write(append(b, '\n'))
	return err
}

func (w *JSONLWriter) Close() error { return w.file.Close() }

func logFilePrefix(agentName string) string { return agentName + "-" }

func nextSeq(dir, agentName string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 1
	}
	max := 0
	prefix := logFilePrefix(agentName)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(name[len(prefix):], "%d.jsonl", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// rotate keeps only the keepMost most recent log files for agentName in
// dir, deleting the oldest beyond that count by the monotonically
// increasing sequence number embedded in each name.
func rotate(dir, agentName string, keepMost int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil // nothing to rotate yet
	}
	prefix := logFilePrefix(agentName)
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keepMost {
		return nil
	}
	seqOf := func(name string) int {
		var n int
		_, _ = fmt.Sscanf(name[len(prefix):], "%d.jsonl", &n)
		return n
	}
	sort.Slice(names, func(i, j int) bool { return seqOf(names[i]) < seqOf(names[j]) })
	toRemove := names[:len(names)-keepMost]
	for _, n := range toRemove {
		_ = os.Remove(filepath.Join(dir, n))
	}
	return nil
}

// TextWriter is the alternative plain-text log format (§6).
type TextWriter struct {
	file *os.File
}

// NewTextWriter creates (truncating) a plain-text log file at path.
func NewTextWriter(path string) (*TextWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("iterlog: create %s: %w", path, err)
	}
	return &TextWriter{file: f}, nil
}

func (w *TextWriter) Write(e Entry) error {
	line := fmt.Sprintf("[%s] step=%d level=%s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Step, e.Level, e.Message)
	_, err := w.file.WriteString(line)
	return err
}

func (w *TextWriter) Close() error { return w.file.Close() }

// VerboseWriter writes one file per entry plus an index.jsonl (§6 "A
// verbose mode writes one file per SDK entry plus an index.jsonl").
type VerboseWriter struct {
	dir   string
	index *JSONLWriter
	seq   int
}

// NewVerboseWriter creates the per-entry directory and its index.jsonl.
func NewVerboseWriter(dir string) (*VerboseWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("iterlog: mkdir %s: %w", dir, err)
	}
	f, err := os.Create(filepath.Join(dir, "index.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("iterlog: create index.jsonl: %w", err)
	}
	return &VerboseWriter{dir: dir, index: &JSONLWriter{file: f}}, nil
}

func (w *VerboseWriter) Write(e Entry) error {
	w.seq++
	entryPath := filepath.Join(w.dir, fmt.Sprintf("entry-%06d.json", w.seq))
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(entryPath, b, 0o644); err != nil {
		return err
	}
	return w.index.Write(e)
}

func (w *VerboseWriter) Close() error { return w.index.Close() }
