// Kestrel is a tool-using LLM agent.
//
// It runs a turn-taking loop against an OpenAI-compatible model API,
// dispatching the tool calls the model requests to built-in tools and
// to remote MCP servers, and feeding results back until the model
// produces a final answer. Configuration is loaded from a single YAML
// file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	kestrel ask <question>   Run one question to completion
//	kestrel chat             Interactive streaming chat
//	kestrel version          Print version and build information
//	kestrel -o json version  Output version information as JSON
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kestrelhq/kestrel/internal/agent"
	"github.com/kestrelhq/kestrel/internal/buildinfo"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/events"
	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/mcp"
	"github.com/kestrelhq/kestrel/internal/permission"
	"github.com/kestrelhq/kestrel/internal/session"
	"github.com/kestrelhq/kestrel/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full lifecycle can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the kestrel command. All OS-level
// dependencies are injected as parameters so tests can drive the whole
// lifecycle. Arguments are parsed by hand: the flag package relies on
// package-level globals (flag.CommandLine), which makes it impossible
// to call run() concurrently from tests, and the argument surface is
// small enough that manual parsing is clearer than a CLI framework.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: kestrel ask <question>")
		}
		return runAsk(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "chat":
		return runChat(ctx, stdin, stdout, stderr, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Kestrel - Tool-Using LLM Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: kestrel [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  ask          Run one question to completion")
	fmt.Fprintln(w, "  chat         Interactive streaming chat")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/kestrel/config.yaml, /etc/kestrel/config.yaml")
	return nil
}

// engine bundles the wired-up run dependencies so ask and chat share
// one bootstrap path.
type engine struct {
	agent   *agent.Agent
	sess    *session.Session
	bridge  *mcp.Bridge
	archive *session.Archive
	logger  *slog.Logger
}

// close tears the engine down in reverse construction order.
func (e *engine) close() {
	if e.bridge != nil {
		e.bridge.Close()
	}
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			e.logger.Warn("error closing session archive", "error", err)
		}
	}
}

// buildEngine loads config and wires up the full agent: tool registry
// with builtins, permission rules, MCP bridges, SQLite session archive,
// and the model client.
func buildEngine(ctx context.Context, stdout io.Writer, configPath string) (*engine, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		if level, err = config.ParseLogLevel(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	logger := newLogger(stdout, level)
	logger.Info("config loaded", "path", cfgPath, "model", cfg.Model.Name)

	bus := events.New()

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	execOpts := []tools.ExecutorOption{
		tools.WithBus(bus),
		tools.WithLogger(logger),
	}
	if len(cfg.Permissions) > 0 {
		execOpts = append(execOpts, tools.WithGuard(permission.NewManager(cfg.Permissions)))
	}
	executor := tools.NewExecutor(registry, execOpts...)

	e := &engine{logger: logger}

	if len(cfg.MCPServers) > 0 {
		e.bridge = mcp.NewBridge(registry, bus, logger)
		e.bridge.ConnectAll(ctx, cfg.MCPServers)
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
		}
		archive, err := session.OpenArchive(filepath.Join(cfg.DataDir, "kestrel.db"))
		if err != nil {
			e.close()
			return nil, fmt.Errorf("open session archive: %w", err)
		}
		e.archive = archive
	}

	store := session.NewStore(logger, e.archive)
	sess := store.Create(session.ModelConfig{
		Name:        cfg.Model.Name,
		MaxTokens:   cfg.Model.MaxTokens,
		Temperature: cfg.Model.Temperature,
	}, cfg.SystemPrompt)
	e.sess = sess

	clientOpts := []llm.OpenAIOption{llm.WithLogger(logger)}
	if cfg.LLM.BaseURL != "" {
		clientOpts = append(clientOpts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	if cfg.LLM.Timeout > 0 {
		clientOpts = append(clientOpts, llm.WithTimeout(cfg.LLM.Timeout))
	}
	client := llm.NewOpenAIClient(cfg.LLM.APIKey, clientOpts...)

	agentOpts := []agent.Option{
		agent.WithBus(bus),
		agent.WithLogger(logger),
	}
	if cfg.MaxSteps > 0 {
		agentOpts = append(agentOpts, agent.WithMaxSteps(cfg.MaxSteps))
	}
	e.agent = agent.New(sess, client, executor, agentOpts...)
	return e, nil
}

// runAsk handles "kestrel ask <question>": one batch run, final
// assistant text printed to stdout.
func runAsk(ctx context.Context, stdout io.Writer, configPath, question string) error {
	e, err := buildEngine(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer e.close()

	messages, err := e.agent.Run(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == session.RoleAssistant {
			fmt.Fprintln(stdout, messages[i].Text())
			break
		}
	}
	return nil
}

// runChat handles "kestrel chat": a line-oriented interactive loop
// where each turn streams assistant text as it arrives. Ctrl-D or
// /quit exits.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	e, err := buildEngine(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer e.close()

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		err := e.agent.Stream(ctx, line, func(ev agent.Event) {
			switch ev.Kind {
			case agent.EventTextDelta:
				fmt.Fprint(stdout, ev.Text)
			case agent.EventToolCallStart:
				fmt.Fprintf(stderr, "\n[tool: %s]\n", ev.ToolName)
			case agent.EventMessageEnd:
				fmt.Fprintln(stdout)
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(stderr, "error: %s\n", err)
		}
	}
}

// newLogger builds the process logger. Trace-level entries render as
// "TRACE" instead of slog's default "DEBUG-4".
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise, [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
