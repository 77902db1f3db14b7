package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/brahmanda-ai/Parishad/internal/api"
	"github.com/brahmanda-ai/Parishad/internal/config"
	"github.com/brahmanda-ai/Parishad/internal/events"
	"github.com/brahmanda-ai/Parishad/internal/handshake"
	"github.com/brahmanda-ai/Parishad/internal/journal"
	"github.com/brahmanda-ai/Parishad/internal/log"
	"github.com/brahmanda-ai/Parishad/internal/poller"
	"github.com/brahmanda-ai/Parishad/internal/supervisor"
	"github.com/brahmanda-ai/Parishad/internal/tui/chat"
	"github.com/brahmanda-ai/Parishad/internal/worker"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "chat":
		if hasHelpFlag(args) {
			printChatHelp()
			return 0
		}
		return runChat(args)
	case "ask":
		if hasHelpFlag(args) {
			printAskHelp()
			return 0
		}
		return runAsk(args)

	// --- NOUNS ---
	case "worker":
		return runWorkerNoun(args)
	case "job":
		return runJobNoun(args)
	case "config":
		return runConfigNoun(args)
	case "system":
		return runSystemNoun(args)

	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

// --- NOUN DISPATCHERS ---

func runWorkerNoun(args []string) int {
	if len(args) < 1 {
		printWorkerNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printWorkerNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "run":
		if hasHelpFlag(actionArgs) {
			printWorkerRunHelp()
			return 0
		}
		return runWorkerRun(actionArgs)
	case "help":
		printWorkerNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown worker action: %s\n", action)
		return 1
	}
}

func runJobNoun(args []string) int {
	if len(args) < 1 {
		printJobNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJobNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printJobListHelp()
			return 0
		}
		return runJobList(actionArgs)
	case "inspect":
		if hasHelpFlag(actionArgs) {
			printJobInspectHelp()
			return 0
		}
		return runJobInspect(actionArgs)
	case "prune":
		if hasHelpFlag(actionArgs) {
			printJobPruneHelp()
			return 0
		}
		return runJobPrune(actionArgs)
	case "help":
		printJobNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "init":
		if hasHelpFlag(actionArgs) {
			printConfigInitHelp()
			return 0
		}
		return runConfigInit(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "sweep":
		if hasHelpFlag(actionArgs) {
			printSystemSweepHelp()
			return 0
		}
		return runSystemSweep(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

// --- COMMANDS ---

func runChat(args []string) int {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Runtime.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("parishad starting", "version", version)

	deps, err := buildRuntime(cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer deps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.APIKey,
		}, deps.journal, deps.hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("status API failed", "error", err)
			}
		}()
		logger.Info("status API enabled", "listen", cfg.API.Listen)
	}

	if err := chat.Run(deps.sup, deps.hub, cfg.Runtime.PollInterval, cfg.Runtime.DefaultTimeout); err != nil {
		logger.Error("chat failed", "error", err)
		return 1
	}
	return 0
}

func runAsk(args []string) int {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	prompt := fs.String("prompt", "", "Prompt text (or pass as positional argument)")
	timeout := fs.Duration("timeout", 0, "Override the task timeout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *prompt == "" && fs.NArg() > 0 {
		*prompt = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(*prompt) == "" {
		fmt.Fprintln(os.Stderr, "Usage: parishad ask [--config PATH] [--timeout D] --prompt TEXT")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *timeout <= 0 {
		*timeout = cfg.Runtime.DefaultTimeout
	}

	log.Setup(cfg.Runtime.LogLevel)
	logger := log.WithComponent("ask")

	deps, err := buildRuntime(cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer deps.Close()

	ctx := context.Background()
	h, err := deps.sup.Submit(ctx, supervisor.Request{Prompt: *prompt}, *timeout)
	if err != nil {
		logger.Error("submit failed", "error", err)
		return 1
	}

	// All polling and cancellation runs on the loop goroutine, so task
	// state is only ever touched from one thread of control.
	loop := poller.NewSerialLoop()
	pol := poller.New(deps.sup, cfg.Runtime.PollInterval, loop.ScheduleAfter)

	var outcome supervisor.Outcome
	pol.Start(ctx, h, func(o supervisor.Outcome) {
		outcome = o
		loop.Quit()
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		loop.ScheduleAfter(0, func() {
			deps.sup.Cancel(ctx, h)
		})
	}()

	loop.Run()
	signal.Stop(sigCh)

	defer func() {
		if err := deps.sup.Cleanup(ctx, h); err != nil {
			logger.Warn("cleanup failed", "task_id", h.ID(), "error", err)
		}
	}()

	switch outcome.Kind {
	case supervisor.OutcomeSuccess:
		fmt.Println(outcome.Result.Answer)
		return 0
	case supervisor.OutcomeTimeout:
		fmt.Fprintf(os.Stderr, "Task timed out: %s\n", outcome.Reason)
		return 1
	case supervisor.OutcomeCancelled:
		fmt.Fprintln(os.Stderr, "Task cancelled")
		return 1
	default:
		fmt.Fprintf(os.Stderr, "Task failed: %s\n", outcome.Reason)
		return 1
	}
}

// stringSliceFlag collects repeated flag values.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return strings.Join(*s, ",") }

func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runWorkerRun(args []string) int {
	fs := flag.NewFlagSet("worker run", flag.ExitOnError)
	requestPath := fs.String("request", "", "Path to the request file")
	resultPath := fs.String("result", "", "Path to the result file")
	engine := fs.String("engine", "", "Engine command (prompt on stdin, answer on stdout)")
	logLevel := fs.String("log-level", "INFO", "Log level")
	var engineArgs stringSliceFlag
	fs.Var(&engineArgs, "engine-arg", "Argument passed to the engine command (repeatable)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *requestPath == "" || *resultPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: parishad worker run --request PATH --result PATH [--engine CMD]")
		return 1
	}

	log.Setup(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := worker.Run(ctx, worker.Options{
		RequestPath: *requestPath,
		ResultPath:  *resultPath,
		Engine:      *engine,
		EngineArgs:  engineArgs,
	})
	if err != nil {
		log.WithComponent("worker").Error("task did not complete", "error", err)
		return 1
	}
	return 0
}

func runJobList(args []string) int {
	fs := flag.NewFlagSet("job list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Maximum entries to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, cfg.Paths.JournalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	entries, err := j.List(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list tasks: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No tasks recorded.")
		return 0
	}
	fmt.Printf("%-38s %-10s %-20s %s\n", "ID", "STATUS", "SUBMITTED", "PROMPT")
	for _, e := range entries {
		prompt := e.Prompt
		if len(prompt) > 40 {
			prompt = prompt[:37] + "..."
		}
		fmt.Printf("%-38s %-10s %-20s %s\n",
			e.ID, e.Status, e.SubmittedAt.Local().Format("2006-01-02 15:04:05"), prompt)
	}
	return 0
}

func runJobInspect(args []string) int {
	fs := flag.NewFlagSet("job inspect", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: parishad job inspect <task-id>")
		return 1
	}
	taskID := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, cfg.Paths.JournalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	entry, err := j.Get(ctx, taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to inspect task: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("ID:            %s\n", entry.ID)
	fmt.Printf("Status:        %s\n", entry.Status)
	fmt.Printf("Prompt:        %s\n", entry.Prompt)
	fmt.Printf("Prompt digest: %s\n", entry.PromptDigest)
	fmt.Printf("Submitted:     %s\n", entry.SubmittedAt.Local().Format(time.RFC3339))
	if entry.CompletedAt != nil {
		fmt.Printf("Completed:     %s\n", entry.CompletedAt.Local().Format(time.RFC3339))
		fmt.Printf("Duration:      %s\n", entry.CompletedAt.Sub(entry.SubmittedAt).Round(time.Millisecond))
	}
	if entry.Reason != nil {
		fmt.Printf("Reason:        %s\n", *entry.Reason)
	}
	if entry.Stderr != nil && *entry.Stderr != "" {
		fmt.Printf("Worker stderr:\n%s\n", *entry.Stderr)
	}
	return 0
}

func runJobPrune(args []string) int {
	fs := flag.NewFlagSet("job prune", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	retention := fs.Duration("retention", 7*24*time.Hour, "Remove terminal tasks older than this")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, cfg.Paths.JournalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	removed, err := j.Prune(ctx, *retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prune journal: %v\n", err)
		return 1
	}
	fmt.Printf("Pruned %d task(s) older than %s.\n", removed, *retention)
	return 0
}

func runSystemSweep(args []string) int {
	fs := flag.NewFlagSet("system sweep", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	olderThan := fs.Duration("older-than", 24*time.Hour, "Remove handshake directories older than this")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	hs, err := handshake.NewManager(cfg.Paths.HandshakeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open handshake dir: %v\n", err)
		return 1
	}

	report, err := hs.Sweep(context.Background(), *olderThan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		return 1
	}
	fmt.Printf("Swept %d stale handshake dir(s).\n", report.DeletedDirs)
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path := *configPath
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return 1
	}

	fmt.Printf("✓ %s\n", path)
	fmt.Printf("  handshake dir: %s\n", cfg.Paths.HandshakeDir)
	fmt.Printf("  journal:       %s\n", cfg.Paths.JournalPath)
	if cfg.Worker.Engine == "" && cfg.Worker.Entrypoint == "" {
		fmt.Println("  engine:        (builtin echo — set worker.engine for real inference)")
	} else if cfg.Worker.Engine != "" {
		fmt.Printf("  engine:        %s\n", cfg.Worker.Engine)
	}
	if cfg.API.Enabled {
		fmt.Printf("  status API:    %s\n", cfg.API.Listen)
	}
	return 0
}

const configTemplate = `# parishad configuration
runtime:
  log_level: INFO
  poll_interval: 500ms
  default_timeout: 120s
  grace_period: 5s

worker:
  # Command producing the answer: prompt on stdin, answer on stdout.
  # Empty uses the builtin echo engine.
  engine: ""
  # engine_args: []

paths:
  handshake_dir: %s
  journal_path: %s

api:
  enabled: false
  listen: 127.0.0.1:7457
  # api_key: ${PARISHAD_API_KEY}
`

func runConfigInit(args []string) int {
	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path := defaultConfigPath()
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Config already exists: %s (use --force to overwrite)\n", path)
		return 1
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create config dir: %v\n", err)
		return 1
	}

	defaults := config.Defaults()
	content := fmt.Sprintf(configTemplate, defaults.Paths.HandshakeDir, defaults.Paths.JournalPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s\n", path)
	return 0
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("parishad %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

// --- WIRING ---

// runtimeDeps is everything a foreground session needs: the supervisor and
// the stores behind it.
type runtimeDeps struct {
	sup     *supervisor.Supervisor
	journal *journal.Journal
	hub     *events.Hub
}

func (d *runtimeDeps) Close() {
	if d.journal != nil {
		_ = d.journal.Close()
	}
}

func buildRuntime(cfg *config.Config) (*runtimeDeps, error) {
	hs, err := handshake.NewManager(cfg.Paths.HandshakeDir)
	if err != nil {
		return nil, fmt.Errorf("handshake dir: %w", err)
	}

	ctx := context.Background()
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.JournalPath), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	j, err := journal.Open(ctx, cfg.Paths.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	spec, err := workerSpec(cfg)
	if err != nil {
		_ = j.Close()
		return nil, err
	}

	hub := events.NewHub(256)
	sup := supervisor.New(hs, spec, cfg.Runtime.GracePeriod, j, hub)

	return &runtimeDeps{sup: sup, journal: j, hub: hub}, nil
}

// workerSpec resolves the worker command. With no configured entrypoint the
// current binary re-execs itself as `parishad worker run`, carrying the
// engine settings along as flags.
func workerSpec(cfg *config.Config) (supervisor.WorkerSpec, error) {
	if cfg.Worker.Entrypoint != "" {
		return supervisor.WorkerSpec{
			Entrypoint: cfg.Worker.Entrypoint,
			Args:       cfg.Worker.Args,
			Dir:        cfg.Worker.Dir,
			Env:        cfg.Worker.Env,
		}, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return supervisor.WorkerSpec{}, fmt.Errorf("resolve own executable: %w", err)
	}

	args := []string{"worker", "run", "--log-level", cfg.Runtime.LogLevel}
	if cfg.Worker.Engine != "" {
		args = append(args, "--engine", cfg.Worker.Engine)
		for _, a := range cfg.Worker.EngineArgs {
			args = append(args, "--engine-arg", a)
		}
	}

	return supervisor.WorkerSpec{
		Entrypoint: exe,
		Args:       args,
		Dir:        cfg.Worker.Dir,
		Env:        cfg.Worker.Env,
	}, nil
}

func defaultConfigPath() string {
	base := ".parishad"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".parishad")
	}
	return filepath.Join(base, "config.yaml")
}

// loadConfig resolves configuration: an explicit path must exist; otherwise
// the default file is used when present and built-in defaults when not.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	path := defaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.Defaults(), nil
}

// --- VERSION ---

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	builtAt := strings.TrimSpace(buildDate)
	if builtAt == "" || builtAt == "unknown" {
		builtAt = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, builtAt); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// --- HELP ---

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`parishad - Interactive chat with process-isolated inference workers

Usage:
  parishad <command> [flags]

Sessions:
  chat              Start the interactive chat TUI
  ask               One-shot prompt from the command line

Worker Commands:
  worker run        Execute one task (spawned internally per task)

Job Commands:
  job list          Show recorded tasks
  job inspect <id>  Show one task's full record
  job prune         Remove old terminal tasks from the journal

Config Commands:
  config check      Validate the configuration file
  config init       Write a starter configuration file

System Commands:
  system sweep      Remove stale handshake directories

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'parishad <noun> help' for resource-specific flags.
`)
}

func printChatHelp() {
	fmt.Println("Usage: parishad chat [--config PATH]")
	fmt.Println("Start the interactive chat TUI. Prompts run in isolated worker processes;")
	fmt.Println("the UI stays responsive and esc cancels the running task.")
}

func printAskHelp() {
	fmt.Println("Usage: parishad ask [--config PATH] [--timeout D] [--prompt] TEXT")
	fmt.Println("Run one prompt to completion and print the answer to stdout.")
}

func printWorkerNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: parishad worker <action>")
	fmt.Fprintln(w, "Actions: run")
}

func printWorkerRunHelp() {
	fmt.Println("Usage: parishad worker run --request PATH --result PATH [--engine CMD] [--engine-arg ARG]...")
	fmt.Println("Execute one task: read the request file, run the engine, write the result file.")
	fmt.Println("Normally invoked by the supervisor, not by hand.")
}

func printJobNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: parishad job <action>")
	fmt.Fprintln(w, "Actions: list, inspect, prune")
}

func printJobListHelp() {
	fmt.Println("Usage: parishad job list [--config PATH] [--limit N] [--json]")
}

func printJobInspectHelp() {
	fmt.Println("Usage: parishad job inspect [--config PATH] [--json] <task-id>")
}

func printJobPruneHelp() {
	fmt.Println("Usage: parishad job prune [--config PATH] [--retention D]")
	fmt.Println("Remove terminal tasks older than the retention window (default 168h).")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: parishad config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, init")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: parishad config check [--config PATH]")
	fmt.Println("Validate syntax and internal consistency of the configuration file.")
}

func printConfigInitHelp() {
	fmt.Println("Usage: parishad config init [--force]")
	fmt.Println("Write a starter configuration file to ~/.parishad/config.yaml.")
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: parishad system <action>")
	fmt.Fprintln(w, "Actions: sweep")
}

func printSystemSweepHelp() {
	fmt.Println("Usage: parishad system sweep [--config PATH] [--older-than D]")
	fmt.Println("Remove leftover handshake directories from crashed or killed sessions.")
}
