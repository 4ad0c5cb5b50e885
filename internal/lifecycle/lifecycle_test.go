package lifecycle

import "testing"

func TestMachine_HappyPathToCompleted(t *testing.T) {
	m := New()
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Start(); err != nil { // initializing -> ready
		t.Fatalf("Start (1): %v", err)
	}
	if err := m.Start(); err != nil { // ready -> running
		t.Fatalf("Start (2): %v", err)
	}
	res, err := m.Complete("done", 5)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !res.Success || res.Reason != "done" || res.Iterations != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if m.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", m.State())
	}
}

func TestMachine_FailFromRunning(t *testing.T) {
	m := New()
	m.Initialize()
	m.Start()
	m.Start()
	res, err := m.Fail("backend error", 2)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if res.Success {
		t.Fatal("expected Success=false")
	}
	if m.State() != StateFailed {
		t.Fatalf("expected failed, got %s", m.State())
	}
}

func TestMachine_InvalidTransitionRejected(t *testing.T) {
	m := New()
	_, err := m.Complete("too soon", 0)
	if err == nil {
		t.Fatal("expected InvalidTransition calling Complete before running")
	}
	if _, ok := err.(*InvalidTransition); !ok {
		t.Fatalf("expected *InvalidTransition, got %T", err)
	}
}

func TestMachine_StopBeforeTerminalForcesFailed(t *testing.T) {
	m := New()
	m.Initialize()
	m.Start()
	m.Start()
	res := m.Stop()
	if res.Success {
		t.Fatal("expected Stop to force a failed result")
	}
	if res.Reason != "stopped" {
		t.Fatalf("expected reason \"stopped\", got %q", res.Reason)
	}
}

func TestMachine_StopAfterTerminalReturnsRecordedResult(t *testing.T) {
	m := New()
	m.Initialize()
	m.Start()
	m.Start()
	want, _ := m.Complete("done", 3)
	got := m.Stop()
	if got != want {
		t.Fatalf("expected Stop to return the recorded result %+v, got %+v", want, got)
	}
}
