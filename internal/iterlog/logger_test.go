package iterlog

import "testing"

type captureWriter struct {
	entries []Entry
	closed  bool
}

func (c *captureWriter) Write(e Entry) error {
	c.entries = append(c.entries, e)
	return nil
}
func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestLogger_StepCounterIsMonotonicFromOne(t *testing.T) {
	w := &captureWriter{}
	l := New(w)
	for i := 0; i < 3; i++ {
		if err := l.Log("info", "msg", "corr", nil); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	for i, e := range w.entries {
		if e.Step != i+1 {
			t.Fatalf("expected step %d, got %d", i+1, e.Step)
		}
	}
}

func TestLogger_EntryFieldsStamped(t *testing.T) {
	w := &captureWriter{}
	l := New(w)
	meta := map[string]any{"k": "v"}
	if err := l.Log("warn", "something happened", "run-1-iter-2", meta); err != nil {
		t.Fatal(err)
	}
	e := w.entries[0]
	if e.Level != "warn" || e.Message != "something happened" || e.CorrelationID != "run-1-iter-2" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Metadata["k"] != "v" {
		t.Fatalf("expected metadata to pass through, got %+v", e.Metadata)
	}
}

func TestLogger_CloseDelegatesToWriter(t *testing.T) {
	w := &captureWriter{}
	l := New(w)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Fatal("expected Close to delegate to the underlying writer")
	}
}
