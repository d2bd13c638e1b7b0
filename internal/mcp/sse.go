package mcp

// SSETransport handles servers advertised with the SSE transport
// label. Requests still travel as HTTP POSTs to the /rpc endpoint and
// replies come back in the response body, so the mechanics are shared
// with HTTPTransport; the distinct kind keeps the server's advertised
// transport visible in logs and diagnostics.
type SSETransport struct {
	HTTPTransport
}

// NewSSETransport creates an SSE-labelled transport for the given
// config.
func NewSSETransport(cfg HTTPConfig) *SSETransport {
	return &SSETransport{HTTPTransport: *NewHTTPTransport(cfg)}
}

// Kind reports the transport strategy name.
func (t *SSETransport) Kind() string { return KindSSE }
