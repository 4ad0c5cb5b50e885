package action

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Gate is the pre-close validation step a terminal action must pass before
// Execute runs (internal/validate.Gate implements this).
type Gate interface {
	Check(ctx context.Context, a DetectedAction) (ok bool, reason string, warn bool, err error)
}

// Executor dispatches detected actions to registered Handlers (§4.5).
// Handlers run in parallel per iteration; results are collected into a
// slice indexed by detection order, never by completion order (§5
// "Ordering").
type Executor struct {
	handlers map[string]Handler
	gate     Gate
}

// NewExecutor builds an Executor from a set of handlers keyed by their
// declared Type(). A nil gate means no terminal action can ever pass —
// callers must supply one to allow `issue-action:close` etc.
func NewExecutor(handlers []Handler, gate Gate) *Executor {
	m := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		m[h.Type()] = h
	}
	return &Executor{handlers: m, gate: gate}
}

// Execute runs every detected action concurrently and returns results in
// the same order as actions. A handler with no registered Type returns a
// Result with Success=false rather than aborting the batch (ActionExecError,
// §7).
func (e *Executor) Execute(ctx context.Context, actions []DetectedAction) []Result {
	results := make([]Result, len(actions))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range actions {
		i, a := i, a
		g.Go(func() error {
			results[i] = e.executeOne(gctx, a)
			return nil // handler failures are folded into Result, never propagated
		})
	}
	_ = g.Wait() // errors are never returned by the goroutines above; Wait only joins

	return results
}

func (e *Executor) executeOne(ctx context.Context, a DetectedAction) Result {
	h, ok := e.handlers[a.Type]
	if !ok {
		return Result{Action: a, Success: false, Error: fmt.Sprintf("no handler registered for action type %q", a.Type)}
	}

	if h.Terminal(a) {
		if e.gate == nil {
			return Result{Action: a, Success: false, Error: "terminal action blocked: no pre-close gate configured"}
		}
		ok, reason, warn, err := e.gate.Check(ctx, a)
		if err != nil {
			return Result{Action: a, Success: false, Error: fmt.Sprintf("Validator error: %v", err)}
		}
		if !ok && !warn {
			return Result{Action: a, Success: false, Error: reason}
		}
		// warn=true with ok=false still proceeds to Execute, recording the
		// warning in reason (preCloseValidation.onFailure="warn", §4.6 step 4).
		res, err := h.Execute(ctx, a)
		if err != nil {
			return Result{Action: a, Success: false, Error: err.Error()}
		}
		if warn && reason != "" {
			res.Result = res.Result + " (warning: " + reason + ")"
		}
		return res
	}

	res, err := h.Execute(ctx, a)
	if err != nil {
		return Result{Action: a, Success: false, Error: err.Error()}
	}
	return res
}
