package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// StdioConfig configures a stdio MCP transport that communicates with
// a spawned subprocess over stdin/stdout using newline-delimited
// JSON-RPC.
type StdioConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments passed to the executable.
	Args []string

	// Env are additional environment variables for the subprocess
	// (format: "KEY=VALUE"). These are appended to the current
	// process environment.
	Env []string

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// StdioTransport communicates with an MCP server running as a
// subprocess. One JSON document per line in both directions. The
// framing carries no response correlation: the next parseable JSON
// line after a request is taken to be that request's response, so
// callers must keep at most one request in flight.
type StdioTransport struct {
	config StdioConfig
	logger *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
}

// NewStdioTransport creates a stdio transport for the given config.
// The subprocess is not started until Connect.
func NewStdioTransport(cfg StdioConfig) *StdioTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioTransport{
		config: cfg,
		logger: logger,
	}
}

// Kind reports the transport strategy name.
func (t *StdioTransport) Kind() string { return KindStdio }

// Connect spawns the subprocess and wires its pipes. Stderr is drained
// in the background for diagnostics; it is not part of the protocol.
func (t *StdioTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != nil {
		return nil
	}

	t.logger.Info("starting MCP subprocess",
		"command", t.config.Command,
		"args", t.config.Args,
	)

	cmd := exec.Command(t.config.Command, t.config.Args...)
	cmd.Env = append(os.Environ(), t.config.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ConnectionError{Reason: "create stdin pipe", Err: err}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &ConnectionError{Reason: "create stdout pipe", Err: err}
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return &ConnectionError{Reason: "create stderr pipe", Err: err}
	}

	if err := cmd.Start(); err != nil {
		stderrPipe.Close()
		stdout.Close()
		stdin.Close()
		return &ConnectionError{Reason: "start subprocess " + t.config.Command, Err: err}
	}

	t.cmd = cmd
	t.stdin = stdin
	t.reader = bufio.NewReaderSize(stdout, 1<<20) // 1 MiB buffer for large responses

	go t.drainStderr(stderrPipe)

	t.logger.Info("MCP subprocess started", "pid", cmd.Process.Pid)
	return nil
}

// drainStderr reads stderr lines and logs them at debug level.
func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.Debug("MCP subprocess stderr", "line", scanner.Text())
	}
}

// readResult is the outcome of a single line read from stdout.
type readResult struct {
	resp *Response
	err  error
}

// Send writes one request line to the subprocess and reads lines back
// until one parses as a JSON-RPC response. The mutex serializes access
// since the framing is inherently sequential. The blocking read runs
// on its own goroutine so the caller can honor context cancellation;
// cancelling kills the subprocess, because the pending read cannot be
// handed back. Without a context deadline, a hung subprocess blocks
// this call indefinitely.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd == nil {
		return nil, &ConnectionError{Reason: "not connected"}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("marshal request: %v", err)}
	}

	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		t.cleanup()
		return nil, &ConnectionError{Reason: "write to subprocess stdin", Err: err}
	}

	ch := make(chan readResult, 1)
	reader := t.reader
	logger := t.logger
	go func() {
		resp, readErr := readResponse(reader, logger)
		ch <- readResult{resp: resp, err: readErr}
	}()

	select {
	case <-ctx.Done():
		// The read goroutine still owns the reader; kill the
		// subprocess so it unblocks, and start over on reconnect.
		t.cleanup()
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			t.cleanup()
			return nil, res.err
		}
		return res.resp, nil
	}
}

// readResponse reads lines until one parses as a JSON-RPC response.
// Lines that are not JSON are incidental diagnostic noise from the
// subprocess and are discarded, not treated as protocol errors.
func readResponse(reader *bufio.Reader, logger *slog.Logger) (*Response, error) {
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return nil, &ConnectionError{Reason: "read from subprocess stdout", Err: err}
		}

		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}

		var resp Response
		if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
			logger.Debug("skipping non-JSON line from MCP subprocess", "line", trimmed)
			continue
		}

		return &resp, nil
	}
}

// Close terminates the subprocess and waits for it to exit.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop()
}

// stop terminates the subprocess. Caller must hold t.mu.
func (t *StdioTransport) stop() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}

	t.logger.Info("stopping MCP subprocess", "pid", t.cmd.Process.Pid)

	// Close stdin to signal the subprocess to exit.
	if t.stdin != nil {
		t.stdin.Close()
	}

	// Wait briefly for graceful exit, then force kill.
	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	select {
	case err := <-done:
		t.cmd = nil
		t.reader = nil
		return err
	case <-time.After(5 * time.Second):
		t.logger.Warn("MCP subprocess did not exit gracefully, killing",
			"pid", t.cmd.Process.Pid,
		)
		_ = t.cmd.Process.Kill()
		<-done
		t.cmd = nil
		t.reader = nil
		return nil
	}
}

// cleanup resets the process state after a failure. Caller must hold t.mu.
func (t *StdioTransport) cleanup() {
	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	t.cmd = nil
	t.stdin = nil
	t.reader = nil
}
