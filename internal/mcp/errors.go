package mcp

import "fmt"

// ConnectionError reports a failure to establish or keep the transport
// channel (spawn failure, broken pipe, unreachable server).
type ConnectionError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or unexpected JSON-RPC shape, such
// as a response carrying neither result nor error.
type ProtocolError struct {
	Reason string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// ExecutionError reports a JSON-RPC error envelope returned by the
// remote server for an otherwise well-formed exchange.
type ExecutionError struct {
	Method string
	RPC    *RPCError
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error in %s: %v", e.Method, e.RPC)
}

// Unwrap returns the JSON-RPC error object.
func (e *ExecutionError) Unwrap() error { return e.RPC }

// HTTPError reports a non-2xx status from an HTTP or SSE transport.
type HTTPError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.Status, e.Body)
}
