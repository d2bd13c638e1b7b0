package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Client is the interface the agent loop consumes. Implementations
// translate Input into a vendor wire format and back.
type Client interface {
	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, in Input) (*Output, error)

	// Stream sends a streaming request, delivering events to fn in
	// order. It returns after the stream ends (KindFinish delivered)
	// or on the first adapter-level error, in which case no further
	// events are delivered.
	Stream(ctx context.Context, in Input, fn StreamFunc) error

	// Ping checks whether the provider is reachable.
	Ping(ctx context.Context) error
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("authentication failed (%d): %s", e.Status, e.Body)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("rate limit exceeded: %s", e.Body)
	default:
		return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
	}
}
