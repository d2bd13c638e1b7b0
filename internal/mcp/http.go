package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelhq/kestrel/internal/httpkit"
)

// HTTPConfig configures an HTTP MCP transport.
type HTTPConfig struct {
	// BaseURL is the server root. Requests POST to {BaseURL}/rpc.
	BaseURL string

	// Headers are added to every request (e.g. Authorization).
	Headers map[string]string

	// Timeout bounds each request. Zero means no limit.
	Timeout time.Duration

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// HTTPTransport speaks JSON-RPC to an MCP server over plain HTTP.
// Each request is a POST to the server's /rpc endpoint carrying one
// JSON-RPC request in the body; the body of the 2xx reply is the
// JSON-RPC response.
type HTTPTransport struct {
	config HTTPConfig
	logger *slog.Logger
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport for the given config.
// No connection is made until Connect.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		config: cfg,
		logger: logger,
	}
}

// Kind reports the transport strategy name.
func (t *HTTPTransport) Kind() string { return KindHTTP }

// Connect builds the HTTP client. HTTP is connectionless, so this
// performs no network I/O; failures surface on the first Send.
func (t *HTTPTransport) Connect(_ context.Context) error {
	if t.client != nil {
		return nil
	}
	if t.config.BaseURL == "" {
		return &ConnectionError{Reason: "base URL is empty"}
	}
	t.client = httpkit.NewClient(
		httpkit.WithTimeout(t.config.Timeout),
		httpkit.WithLogger(t.logger),
	)
	t.logger.Info("MCP HTTP transport ready", "base_url", t.config.BaseURL)
	return nil
}

// Send POSTs the request to {base}/rpc and decodes the reply body.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if t.client == nil {
		return nil, &ConnectionError{Reason: "not connected"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("marshal request: %v", err)}
	}

	url := strings.TrimRight(t.config.BaseURL, "/") + "/rpc"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ConnectionError{Reason: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{Reason: "POST " + url, Err: err}
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &HTTPError{
			Status: httpResp.StatusCode,
			Body:   httpkit.ReadErrorBody(httpResp.Body, 4096),
		}
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("decode response: %v", err)}
	}
	return &resp, nil
}

// Close releases the client. Idle connections are left to the shared
// transport's keep-alive handling.
func (t *HTTPTransport) Close() error {
	t.client = nil
	return nil
}
