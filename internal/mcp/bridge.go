package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kestrelhq/kestrel/internal/events"
	"github.com/kestrelhq/kestrel/internal/tools"
)

// ServerConfig describes one MCP server to bridge.
type ServerConfig struct {
	// Name identifies the server in logs and events.
	Name string `yaml:"name"`

	// Transport selects the strategy: "stdio", "http", or "sse".
	Transport string `yaml:"transport"`

	// Command, Args, and Env configure a stdio server.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`

	// URL and Headers configure an http or sse server.
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds each request to the server. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`

	// Include and Exclude filter which advertised tools get
	// registered. Patterns are glob-matched against tool names.
	// An empty Include list admits everything; Exclude wins.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// NewTransport builds the transport named by the config.
func NewTransport(cfg ServerConfig, logger *slog.Logger) (Transport, error) {
	switch cfg.Transport {
	case KindStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("server %s: stdio transport requires a command", cfg.Name)
		}
		return NewStdioTransport(StdioConfig{
			Command: cfg.Command,
			Args:    cfg.Args,
			Env:     cfg.Env,
			Logger:  logger,
		}), nil
	case KindHTTP:
		return NewHTTPTransport(HTTPConfig{
			BaseURL: cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}), nil
	case KindSSE:
		return NewSSETransport(HTTPConfig{
			BaseURL: cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}), nil
	default:
		return nil, fmt.Errorf("server %s: unknown transport %q", cfg.Name, cfg.Transport)
	}
}

// Bridge connects MCP servers and registers their tools into a
// registry, making remote tools indistinguishable from local ones to
// the executor.
type Bridge struct {
	registry *tools.Registry
	bus      *events.Bus
	logger   *slog.Logger

	clients []*Client
}

// NewBridge creates a bridge that registers into the given registry.
// The bus may be nil.
func NewBridge(registry *tools.Registry, bus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		registry: registry,
		bus:      bus,
		logger:   logger,
	}
}

// Connect dials one server, discovers its tools, and registers the
// ones that pass the config's include/exclude filters. Returns the
// number of tools registered.
func (b *Bridge) Connect(ctx context.Context, cfg ServerConfig) (int, error) {
	transport, err := NewTransport(cfg, b.logger)
	if err != nil {
		return 0, err
	}

	client := NewClient(cfg.Name, transport, b.logger)
	if err := client.Connect(ctx); err != nil {
		return 0, err
	}
	b.clients = append(b.clients, client)

	b.bus.Emit(events.SourceMCP, events.KindServerConnected, map[string]any{
		"server":    cfg.Name,
		"transport": transport.Kind(),
	})

	defs, err := client.ListTools(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing tools on %s: %w", cfg.Name, err)
	}

	registered := 0
	for _, def := range defs {
		if !admitted(def.Name, cfg.Include, cfg.Exclude) {
			b.logger.Debug("skipping filtered MCP tool",
				"server", cfg.Name, "tool", def.Name)
			continue
		}
		b.registry.Register(NewTool(client, def))
		registered++
	}

	b.logger.Info("bridged MCP server tools",
		"server", cfg.Name,
		"advertised", len(defs),
		"registered", registered,
	)
	b.bus.Emit(events.SourceMCP, events.KindToolsBridged, map[string]any{
		"server": cfg.Name,
		"tools":  registered,
	})
	return registered, nil
}

// ConnectAll bridges every configured server. A server that fails to
// connect is logged and skipped; the rest still come up.
func (b *Bridge) ConnectAll(ctx context.Context, configs []ServerConfig) {
	for _, cfg := range configs {
		if _, err := b.Connect(ctx, cfg); err != nil {
			b.logger.Error("failed to bridge MCP server",
				"server", cfg.Name, "error", err)
		}
	}
}

// Close disconnects every bridged server.
func (b *Bridge) Close() {
	for _, client := range b.clients {
		if err := client.Disconnect(); err != nil {
			b.logger.Warn("error disconnecting MCP server",
				"server", client.Name(), "error", err)
		}
	}
	b.clients = nil
}

// admitted applies include/exclude glob filters to a tool name.
func admitted(name string, include, exclude []string) bool {
	for _, pat := range exclude {
		if ok, _ := doublestar.Match(pat, name); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pat := range include {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}
