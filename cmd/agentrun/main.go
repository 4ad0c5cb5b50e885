// Command agentrun is the CLI entry point for running a declared agent to
// completion. Bootstrap loads the agent definition and steps registry, then
// wires a prompt loader, a tool registry, skills, MCP-backed tools, the
// backend client, and a session store, in that order, on top of
// github.com/spf13/cobra's command tree.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentrun/agentrun/internal/action"
	"github.com/agentrun/agentrun/internal/agentdef"
	"github.com/agentrun/agentrun/internal/backend/openai"
	"github.com/agentrun/agentrun/internal/completion"
	"github.com/agentrun/agentrun/internal/config"
	"github.com/agentrun/agentrun/internal/hotreload"
	"github.com/agentrun/agentrun/internal/integrations/github"
	"github.com/agentrun/agentrun/internal/iterlog"
	"github.com/agentrun/agentrun/internal/mcp"
	"github.com/agentrun/agentrun/internal/plan"
	"github.com/agentrun/agentrun/internal/prompt"
	"github.com/agentrun/agentrun/internal/runner"
	"github.com/agentrun/agentrun/internal/session"
	"github.com/agentrun/agentrun/internal/skill"
	"github.com/agentrun/agentrun/internal/stepsregistry"
	"github.com/agentrun/agentrun/internal/tool"
	"github.com/agentrun/agentrun/internal/tool/builtin"
	"github.com/agentrun/agentrun/internal/validate"
	"github.com/agentrun/agentrun/internal/walkthrough"
)

var (
	agentName string
	cwd       string
	mode      string
	resume    bool
	listFlag  bool
	initFlag  bool
)

func main() {
	config.LoadEnv()

	root := &cobra.Command{
		Use:   "agentrun",
		Short: "Run a declared agent to completion",
		RunE:  runAgent,
	}
	root.PersistentFlags().StringVar(&agentName, "agent", "", "agent name (directory under the agents dir)")
	root.PersistentFlags().StringVar(&cwd, "cwd", "", "working directory for the run (default: current directory)")
	root.PersistentFlags().StringVar(&mode, "mode", "", "entry-step mode (uses the agent's default entry step if omitted)")
	root.PersistentFlags().BoolVar(&resume, "resume", false, "resume the agent's last recorded backend session id")
	root.Flags().BoolVar(&listFlag, "list", false, "list available agents and exit")
	root.Flags().BoolVar(&initFlag, "init", false, "scaffold a new agent directory named by --agent and exit")

	root.PreRunE = func(cmd *cobra.Command, args []string) error {
		if listFlag || initFlag {
			return nil
		}
		if agentName == "" {
			return fmt.Errorf("--agent is required")
		}
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentrun:", err)
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	rt, err := config.LoadRuntimeConfig()
	if err != nil {
		return err
	}
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	if listFlag {
		return listAgents(rt.AgentsDir)
	}
	if initFlag {
		return scaffoldAgent(rt.AgentsDir, agentName)
	}

	def, err := agentdef.Load(rt.AgentsDir, agentName)
	if err != nil {
		return fmt.Errorf("load agent %q: %w", agentName, err)
	}
	registry, err := stepsregistry.Load(rt.AgentsDir, agentName)
	if err != nil {
		return fmt.Errorf("load steps registry for %q: %w", agentName, err)
	}

	promptsDir := filepath.Join(rt.AgentsDir, agentName, "prompts")
	rulesPath := filepath.Join(cwd, "rules.md")
	soulPath := filepath.Join(cwd, "soul.md")
	loader := prompt.NewPromptLoader(promptsDir, rulesPath, soulPath)
	resolver := prompt.NewResolver(loader, registry)

	toolRegistry := buildToolRegistry(def, cwd)
	defer toolRegistry.CloseAll()

	skillMgr := skill.NewManager(cwd)
	if _, errs := skillMgr.LoadAll(context.Background(), toolRegistry); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "agentrun: skill load: %v\n", e)
		}
	}
	toolRegistry.Register(skill.NewReloadTool(skillMgr, toolRegistry))

	if it := def.Runner.Integrations; it != nil && it.MCP != nil && it.MCP.ManifestPath != "" {
		mcpMgr := mcp.NewManager(it.MCP.ManifestPath)
		mcpMgr.SetPromptLoader(loader)
		mcpMgr.AddReloadHook(skillMgr.Reload)
		toolRegistry.Register(mcp.NewReloadTool(mcpMgr, toolRegistry))
		if n, errs := mcpMgr.ConnectAll(context.Background()); n > 0 {
			if err := mcpMgr.RegisterTools(context.Background(), toolRegistry); err != nil {
				fmt.Fprintf(os.Stderr, "agentrun: mcp register tools: %v\n", err)
			}
		} else {
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "agentrun: mcp connect: %v\n", e)
			}
		}
		defer mcpMgr.CloseAll()
	}

	backendCfg, err := openai.NewConfigFromEnv()
	if err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	if def.Runner.Flow.DefaultModel != "" {
		backendCfg.Model = def.Runner.Flow.DefaultModel
	}
	backendClient, err := openai.New(backendCfg)
	if err != nil {
		return fmt.Errorf("backend init: %w", err)
	}
	backendClient.WithTools(toolRegistry)

	sessionStore := session.NewStore(30 * time.Minute)
	defer sessionStore.Close()
	backendSessionID := ""
	if resume {
		backendSessionID = sessionStore.Get(agentName)
	}

	walkStore := walkthrough.NewStore()
	currentIteration := 0
	toolRegistry.Register(builtin.NewWalkthroughTool(walkStore, agentName))

	gate := buildGate(def)
	detector := action.NewDetector(def.Runner.Flow.OutputFormat, def.Runner.Flow.AllowedActionTypes)
	executor := buildExecutor(def, gate, walkStore, agentName, func() int { return currentIteration })

	completionHandler, err := completion.Build(def.Runner.Completion, buildProbe(def), nil)
	if err != nil {
		return fmt.Errorf("completion handler: %w", err)
	}

	logWriter, err := iterlog.NewJSONLWriter(rt.LogDir, agentName, 100)
	if err != nil {
		return fmt.Errorf("iteration logger: %w", err)
	}
	logger := iterlog.New(logWriter)
	defer logger.Close()

	r := runner.New(runner.Config{
		Definition:     def,
		StepsRegistry:  registry,
		Resolver:       resolver,
		Backend:        backendClient,
		Detector:       detector,
		Executor:       executor,
		CompletionKind: completionHandler,
		Logger:         logger,
		Vars:           prompt.Vars{Context: map[string]string{"cwd": cwd, "sessionId": backendSessionID}, AllowMissing: true},
		MaxIterations:  rt.MaxIterations,
		Mode:           mode,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if watcher, werr := hotreload.New(filepath.Join(rt.AgentsDir, agentName), func() (string, error) {
		loader.Reload()
		return "prompts reloaded", nil
	}); werr == nil {
		go watcher.Run(ctx, func(summary string, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "agentrun: hot reload: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "agentrun: hot reload: %s\n", summary)
		})
	}

	outcome, runErr := r.Run(ctx)
	if outcome.SessionID != "" {
		sessionStore.Put(agentName, outcome.SessionID)
	}
	if runErr != nil {
		return runErr
	}
	state := "completed"
	if !outcome.Lifecycle.Success {
		state = "failed"
	}
	fmt.Printf("agentrun: %s after %d iterations (%s)\n", state, outcome.Iterations, outcome.Lifecycle.Reason)
	if !outcome.Lifecycle.Success {
		return fmt.Errorf("run failed: %s", outcome.Lifecycle.Reason)
	}
	return nil
}

func buildToolRegistry(def *agentdef.Definition, workspaceDir string) *tool.Registry {
	registry := tool.NewRegistry()
	shellEnabled := os.Getenv("AGENTRUN_TOOL_SHELL_ENABLED") != "false"
	registry.Register(builtin.NewShellTool(workspaceDir, shellEnabled))
	registry.Register(builtin.NewFileReadTool(workspaceDir))
	registry.Register(builtin.NewFileWriteTool(workspaceDir))
	registry.Register(builtin.NewFileListTool(workspaceDir))
	registry.Register(builtin.NewFileFindTool(workspaceDir))
	registry.Register(builtin.NewFileGrepTool(workspaceDir))
	registry.Register(builtin.NewFileMoveTool(workspaceDir))
	registry.Register(builtin.NewFileOpenTool(workspaceDir))
	registry.Register(builtin.NewFileDeleteTool(workspaceDir))
	registry.Register(builtin.NewFilePatchTool(workspaceDir))
	registry.Register(builtin.NewGitInfoTool(workspaceDir))
	registry.Register(builtin.NewTimeTool())
	registry.Register(builtin.NewWebReaderTool())
	if os.Getenv("AGENTRUN_TOOL_HTTP_ENABLED") != "false" {
		registry.Register(builtin.NewHTTPRequestTool(os.Getenv("AGENTRUN_TOOL_HTTP_ALLOW_INTERNAL") == "true"))
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		registry.Register(builtin.NewTavilySearchTool(key))
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		registry.Register(builtin.NewBraveSearchTool(key))
	}
	if it := def.Runner.Integrations; it != nil && it.MCP != nil && it.MCP.ManifestPath != "" {
		registry.Register(builtin.NewMCPServerAddTool(it.MCP.ManifestPath))
		registry.Register(builtin.NewMCPServerRemoveTool(it.MCP.ManifestPath))
		registry.Register(builtin.NewMCPServerListTool(it.MCP.ManifestPath))
	}

	planStore := plan.NewPlanStore()
	registry.Register(builtin.NewUpdatePlanTool(planStore, def.Name, nil))

	if err := registry.InitAll(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "agentrun: tool init: %v\n", err)
	}
	return registry
}

func buildGate(def *agentdef.Definition) *validate.Gate {
	cfg := validate.GateConfig{}
	if pcv := def.Runner.Boundaries.PreCloseValidation; pcv != nil {
		cfg.Enabled = pcv.Enabled
		cfg.RequiredFields = pcv.RequiredFields
		cfg.Validators = pcv.Validators
		if pcv.OnFailure == "warn" {
			cfg.OnFailure = validate.OnFailureWarn
		} else {
			cfg.OnFailure = validate.OnFailureBlock
		}
	}
	return validate.NewGate(cfg, validate.NewRegistry())
}

func buildExecutor(def *agentdef.Definition, gate *validate.Gate, walkStore *walkthrough.Store, sessionID string, iteration func() int) *action.Executor {
	checker := &runner.Checker{Gate: gate}
	handlers := []action.Handler{
		&action.LogHandler{Emit: walkStore.EmitFunc(sessionID, iteration)},
		&action.FileHandler{BaseDir: cwd},
		&action.CompletionSignalHandler{},
	}
	if it := def.Runner.Integrations; it != nil && it.IssueTracker != nil && it.IssueTracker.Enabled {
		token := os.Getenv("GITHUB_TOKEN")
		tracker := github.New(token, it.IssueTracker.Owner, it.IssueTracker.Repo)
		handlers = append(handlers, &action.IssueActionHandler{Tracker: tracker})
	}
	return action.NewExecutor(handlers, checker)
}

func buildProbe(def *agentdef.Definition) completion.Probe {
	if it := def.Runner.Integrations; it != nil && it.IssueTracker != nil && it.IssueTracker.Enabled {
		token := os.Getenv("GITHUB_TOKEN")
		return github.New(token, it.IssueTracker.Owner, it.IssueTracker.Repo)
	}
	return nil
}

func listAgents(agentsDir string) error {
	names, err := agentdef.List(agentsDir)
	if err != nil {
		return fmt.Errorf("list agents in %q: %w", agentsDir, err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func scaffoldAgent(agentsDir, name string) error {
	if name == "" {
		return fmt.Errorf("--init requires --agent")
	}
	dir := filepath.Join(agentsDir, name)
	if err := os.MkdirAll(filepath.Join(dir, "prompts"), 0o755); err != nil {
		return err
	}
	defPath := filepath.Join(dir, "agent.json")
	if _, err := os.Stat(defPath); err == nil {
		return fmt.Errorf("agent %q already exists at %s", name, dir)
	}
	skeleton := fmt.Sprintf(`{
  "name": %q,
  "runner": {
    "flow": {"promptRegistryPath": "steps_registry.json", "outputFormat": "action"},
    "completion": {"type": "iterationBudget", "config": {"maxIterations": 20}},
    "boundaries": {"allowedTools": []}
  }
}
`, name)
	if err := os.WriteFile(defPath, []byte(skeleton), 0o644); err != nil {
		return err
	}
	registrySkeleton := `{
  "version": "1",
  "basePath": "prompts",
  "entryStep": "start",
  "steps": {
    "start": {"id": "start", "promptRef": {"path": "start.md"}}
  }
}
`
	if err := os.WriteFile(filepath.Join(dir, "steps_registry.json"), []byte(registrySkeleton), 0o644); err != nil {
		return err
	}
	startPrompt := "# Start\n\nDescribe the task here.\n"
	if err := os.WriteFile(filepath.Join(dir, "prompts", "start.md"), []byte(startPrompt), 0o644); err != nil {
		return err
	}
	fmt.Println("scaffolded agent at", dir)
	return nil
}
