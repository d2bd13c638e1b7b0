package mcp

import "context"

// Transport kind names, as they appear in configuration and logs.
const (
	KindStdio = "stdio"
	KindHTTP  = "http"
	KindSSE   = "sse"
)

// Transport is the channel carrying JSON-RPC envelopes to one MCP
// server. Implementations handle framing and delivery for a specific
// strategy (spawned process pipes, HTTP request/response, or the
// SSE-labelled HTTP variant). The transport kind is fixed at
// construction and never changes within one session.
type Transport interface {
	// Connect establishes the channel: the stdio transport spawns its
	// subprocess, the HTTP transports construct their client. The
	// protocol handshake itself is the Client's job.
	Connect(ctx context.Context) error

	// Send delivers one JSON-RPC request and returns its response.
	// Callers must serialize Send calls; transports assume at most one
	// in-flight request.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Close tears the channel down. For the stdio transport this
	// terminates and waits on the subprocess; for HTTP transports it
	// drops the client handle.
	Close() error

	// Kind reports the transport strategy name.
	Kind() string
}
