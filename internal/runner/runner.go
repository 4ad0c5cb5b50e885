// Package runner implements the Iteration Loop / Runner (C2): the central
// orchestrator that wires the Prompt Resolver, Query Backend, Message
// Processor, Action Detector/Executor, Completion Handler, Step-Flow
// Engine and Lifecycle machine into one agent run (§4.7). Grounded in
// internal/agent/flow.go's main loop — generalized from a fixed
// think→tool→answer node graph into a registry-driven step loop.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentrun/agentrun/internal/action"
	"github.com/agentrun/agentrun/internal/agentdef"
	"github.com/agentrun/agentrun/internal/backend"
	"github.com/agentrun/agentrun/internal/completion"
	"github.com/agentrun/agentrun/internal/guard"
	"github.com/agentrun/agentrun/internal/iterlog"
	"github.com/agentrun/agentrun/internal/lifecycle"
	"github.com/agentrun/agentrun/internal/msgproc"
	"github.com/agentrun/agentrun/internal/prompt"
	"github.com/agentrun/agentrun/internal/stepflow"
	"github.com/agentrun/agentrun/internal/stepsregistry"
	"github.com/agentrun/agentrun/internal/validate"
)

// Checker adapts validate.Gate's 3-return Check(ctx, metadata) to the
// action.Gate interface's 4-return Check(ctx, DetectedAction) — kept here,
// not in internal/validate, so validate never imports internal/action
// (internal/action already imports internal/validate's Gate type
// indirectly through this adapter, never the reverse).
type Checker struct {
	Gate *validate.Gate
}

func (c *Checker) Check(ctx context.Context, a action.DetectedAction) (ok bool, reason string, warn bool, err error) {
	ok, reason, warn = c.Gate.Check(ctx, a.Metadata)
	return ok, reason, warn, nil
}

// Config bundles everything one Run needs: the loaded definition and
// registry, the resolver, backend, action executor, completion handler,
// and iteration logger. Assembled by cmd/agentrun from the on-disk agent
// directory; Runner itself never touches the filesystem.
type Config struct {
	Definition     *agentdef.Definition
	StepsRegistry  *stepsregistry.Registry
	Resolver       *prompt.Resolver
	Backend        backend.Backend
	Detector       *action.Detector
	Executor       *action.Executor
	CompletionKind completion.Handler
	Logger         *iterlog.Logger
	Vars           prompt.Vars

	// MaxIterations is the hard cap (§4.7 step 10) independent of any
	// completion handler's own budget — a last-resort safety net.
	MaxIterations int
	// Mode selects StepsRegistry.EntryByMode; "" uses the default entry step.
	Mode string

	// MaxTokenBudget and MaxDuration are optional safety nets on top of
	// MaxIterations (0 disables either check). Estimated from assistant
	// output text, not the backend's own token accounting.
	MaxTokenBudget int64
	MaxDuration    time.Duration
}

// Outcome is what Run returns once the lifecycle reaches a terminal state.
type Outcome struct {
	Lifecycle  lifecycle.Result
	Iterations int
	FlowState  *stepflow.State
	// SessionID is the backend session id carried across this run's
	// iterations, if any — callers persist it to resume the same backend
	// conversation on a later invocation (§4.7 "Session resume").
	SessionID string
}

// Runner drives one agent run to completion or failure.
type Runner struct {
	cfg       Config
	machine   *lifecycle.Machine
	engine    *stepflow.Engine
	proc      *msgproc.Processor
	loopGuard guard.LoopDetector
	costGuard *guard.CostGuard
	actionLog []guard.ActionRecord
	runID     string
}

// New constructs a Runner in the `created` lifecycle state. runID
// correlates every LogEntry this run produces (§3 LogEntry.correlationId)
// across iterations.
func New(cfg Config) *Runner {
	return &Runner{
		cfg:       cfg,
		machine:   lifecycle.New(),
		engine:    stepflow.NewEngine(cfg.StepsRegistry),
		proc:      msgproc.NewProcessor(),
		costGuard: guard.NewCostGuard(cfg.MaxTokenBudget, cfg.MaxDuration),
		runID:     uuid.NewString(),
	}
}

// Run executes the full iteration loop (§4.7) until completion, failure, or
// ctx cancellation, logging every iteration's key events.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	if err := r.machine.Initialize(); err != nil {
		return Outcome{}, err
	}
	if err := r.machine.Start(); err != nil { // initializing -> ready
		return Outcome{}, err
	}

	entryStep, ok := r.cfg.StepsRegistry.Entry(r.cfg.Mode)
	if !ok {
		_, _ = r.machine.Fail("no entry step configured", 0)
		return Outcome{}, fmt.Errorf("runner: steps registry has no entry step for mode %q", r.cfg.Mode)
	}
	flowState := stepflow.NewState(entryStep)

	if err := r.machine.Start(); err != nil { // ready -> running
		return Outcome{}, err
	}

	var lastSummary completion.Summary
	sessionID := ""

	for iteration := 1; ; iteration++ {
		select {
		case <-ctx.Done():
			res, _ := r.machine.Fail("cancelled", iteration-1)
			return Outcome{Lifecycle: res, Iterations: iteration - 1, FlowState: flowState, SessionID: sessionID}, ctx.Err()
		default:
		}

		flowState.TotalIterations = iteration

		if err := r.costGuard.CheckDuration(); err != nil {
			res, _ := r.machine.Fail(err.Error(), iteration-1)
			return Outcome{Lifecycle: res, Iterations: iteration - 1, FlowState: flowState, SessionID: sessionID}, nil
		}

		step, ok := r.cfg.StepsRegistry.Steps[flowState.CurrentStepID]
		if !ok {
			res, _ := r.machine.Fail(fmt.Sprintf("unknown step %q", flowState.CurrentStepID), iteration-1)
			return Outcome{Lifecycle: res, Iterations: iteration - 1, FlowState: flowState, SessionID: sessionID}, nil
		}

		// Step 2-3: resolve prompts.
		stepPrompt, err := r.resolvePrompt(iteration, flowState.CurrentStepID, step, lastSummary)
		if err != nil {
			res, _ := r.machine.Fail(fmt.Sprintf("prompt resolution failed: %v", err), iteration)
			return Outcome{Lifecycle: res, Iterations: iteration, FlowState: flowState, SessionID: sessionID}, err
		}
		systemPrompt, systemSource, err := r.resolveSystem()
		if err != nil {
			res, _ := r.machine.Fail(fmt.Sprintf("system prompt resolution failed: %v", err), iteration)
			return Outcome{Lifecycle: res, Iterations: iteration, FlowState: flowState, SessionID: sessionID}, err
		}
		r.logEvent(iteration, "info", "system prompt resolved", map[string]any{"source": systemSource})

		// Step 4: query backend.
		req := backend.Request{
			Prompt:         stepPrompt,
			SystemPrompt:   systemPrompt,
			SessionID:      sessionID,
			AllowedTools:   r.cfg.Definition.Runner.Boundaries.AllowedTools,
			PermissionMode: r.cfg.Definition.Runner.Boundaries.PermissionMode,
			Sandbox:        r.cfg.Definition.Runner.Boundaries.Sandbox,
		}
		msgs, err := r.cfg.Backend.Query(ctx, req)
		if err != nil {
			res, _ := r.machine.Fail(fmt.Sprintf("backend query failed: %v", err), iteration)
			return Outcome{Lifecycle: res, Iterations: iteration, FlowState: flowState, SessionID: sessionID}, err
		}

		// Step 5: process messages.
		out := r.proc.Process(msgs)
		if out.SessionID != "" {
			sessionID = out.SessionID
		}
		r.logEvent(iteration, "info", "iteration processed", map[string]any{
			"toolsUsed": out.ToolsUsed,
			"errors":    out.Errors,
		})
		if err := r.costGuard.RecordTokens(guard.EstimateTokens(out.AssistantText)); err != nil {
			res, _ := r.machine.Fail(err.Error(), iteration)
			return Outcome{Lifecycle: res, Iterations: iteration, FlowState: flowState, SessionID: sessionID}, nil
		}

		// Step 6: detect actions.
		detected := r.cfg.Detector.Detect(out.AssistantText)

		// Step 7: execute actions (terminal ones pass the Pre-Close Gate).
		results := r.cfg.Executor.Execute(ctx, detected)
		completionRequested := false
		for _, res := range results {
			if res.Action.Type == "completion-signal" && res.Success {
				completionRequested = true
			}
			r.logEvent(iteration, "info", "action executed", map[string]any{
				"type": res.Action.Type, "success": res.Success, "error": res.Error,
			})
			r.actionLog = append(r.actionLog, guard.ActionRecord{
				Type:   res.Action.Type,
				Input:  res.Action.Content,
				Failed: !res.Success,
			})
		}
		if dr := r.loopGuard.Check(r.actionLog); dr.Detected {
			r.logEvent(iteration, "warn", "loop detected", map[string]any{
				"rule": dr.Rule, "description": dr.Description, "actionType": dr.ActionType,
			})
		}

		structuredOutput := extractStructuredOutput(detected)

		// Step 8: advance step-flow engine.
		decision, err := r.engine.Advance(flowState, structuredOutput)
		flowTerminal := false
		if err != nil {
			r.logEvent(iteration, "warn", "step-flow advance error", map[string]any{"error": err.Error()})
		} else {
			flowTerminal = decision.Terminal
			if decision.PhaseError != nil {
				r.logEvent(iteration, "warn", "phase violation", map[string]any{"error": decision.PhaseError.Error()})
			}
			if decision.Escalate {
				res, _ := r.machine.Fail("repeat budget exceeded at step "+flowState.CurrentStepID, iteration)
				return Outcome{Lifecycle: res, Iterations: iteration, FlowState: flowState, SessionID: sessionID}, nil
			}
		}

		lastSummary = completion.Summary{
			Iteration:           iteration,
			AssistantResponses:  []string{out.AssistantText},
			ToolsUsed:           out.ToolsUsed,
			StructuredOutput:    structuredOutput,
			CompletionRequested: completionRequested,
			StepFlowTerminal:    flowTerminal,
		}

		// Step 9-10: completion check and hard cap.
		if r.cfg.CompletionKind.IsComplete(lastSummary) || flowTerminal {
			reason := r.cfg.CompletionKind.GetCompletionDescription(lastSummary)
			res, _ := r.machine.Complete(reason, iteration)
			return Outcome{Lifecycle: res, Iterations: iteration, FlowState: flowState, SessionID: sessionID}, nil
		}
		if r.cfg.MaxIterations > 0 && iteration >= r.cfg.MaxIterations {
			res, _ := r.machine.Fail("max iterations reached", iteration)
			return Outcome{Lifecycle: res, Iterations: iteration, FlowState: flowState, SessionID: sessionID}, nil
		}
	}
}

func (r *Runner) resolvePrompt(iteration int, stepID string, step stepsregistry.StepDefinition, last completion.Summary) (string, error) {
	res, err := r.cfg.Resolver.ResolveStep(stepID, step, r.cfg.Vars)
	if err != nil {
		return "", err
	}
	r.logEvent(iteration, "info", "prompt resolved", map[string]any{"step": stepID, "source": string(res.Source), "path": res.Path})

	var continuation string
	if iteration == 1 {
		continuation = r.cfg.CompletionKind.BuildInitialPrompt()
	} else {
		continuation = r.cfg.CompletionKind.BuildContinuationPrompt(iteration, last)
	}
	if continuation == "" {
		return res.Content, nil
	}
	return res.Content + "\n\n" + continuation, nil
}

func (r *Runner) resolveSystem() (string, string, error) {
	res, err := r.cfg.Resolver.ResolveSystem(r.cfg.Definition.Runner.Flow.SystemPromptPath, r.cfg.Vars)
	if err != nil {
		return "", "", err
	}
	return res.Content, string(res.Source), nil
}

func (r *Runner) logEvent(iteration int, level, message string, metadata map[string]any) {
	if r.cfg.Logger == nil {
		return
	}
	_ = r.cfg.Logger.Log(level, message, fmt.Sprintf("%s-iter-%d", r.runID, iteration), metadata)
}

// extractStructuredOutput pulls the single "structured-output" typed action
// (if any) out of this iteration's detected actions and returns its
// metadata as the map the Step-Flow Engine and structuredSignal handler
// read fields from (§4.2 step 1, §4.3 structuredSignal).
func extractStructuredOutput(detected []action.DetectedAction) map[string]any {
	for _, a := range detected {
		if a.Type == "structured-output" {
			out := map[string]any{}
			for k, v := range a.Metadata {
				out[k] = v
			}
			if a.Content != "" {
				out["content"] = a.Content
			}
			return out
		}
	}
	return nil
}
