package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTransport_PostsToRPCEndpoint(t *testing.T) {
	var gotPath, gotContentType, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Response{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Result:  json.RawMessage(`{}`),
		})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{
		BaseURL: srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token123"},
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := tr.Send(context.Background(), NewRequest(5, "initialize", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != 5 {
		t.Errorf("expected id 5, got %d", resp.ID)
	}
	if gotPath != "/rpc" {
		t.Errorf("expected POST /rpc, got %q", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected application/json, got %q", gotContentType)
	}
	if gotAuth != "Bearer token123" {
		t.Errorf("expected auth header to pass through, got %q", gotAuth)
	}
}

func TestHTTPTransport_TrailingSlashBaseURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(Response{JSONRPC: jsonrpcVersion, ID: 1, Result: json.RawMessage(`{}`)})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: srv.URL + "/"})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Send(context.Background(), NewRequest(1, "initialize", nil)); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/rpc" {
		t.Errorf("expected /rpc, got %q", gotPath)
	}
}

func TestHTTPTransport_Non2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: srv.URL})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := tr.Send(context.Background(), NewRequest(1, "tools/list", nil))
	if err == nil {
		t.Fatal("expected error for 500 status")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %T", err)
	}
	if httpErr.Status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Status)
	}
}

func TestHTTPTransport_ConnectRequiresBaseURL(t *testing.T) {
	tr := NewHTTPTransport(HTTPConfig{})
	err := tr.Connect(context.Background())
	if err == nil {
		t.Fatal("expected error for empty base URL")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("expected ConnectionError, got %T", err)
	}
}

func TestHTTPTransport_SendBeforeConnect(t *testing.T) {
	tr := NewHTTPTransport(HTTPConfig{BaseURL: "http://localhost:1"})
	_, err := tr.Send(context.Background(), NewRequest(1, "tools/list", nil))
	if err == nil {
		t.Fatal("expected error before connect")
	}
}

func TestHTTPTransport_MalformedResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not json"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: srv.URL})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := tr.Send(context.Background(), NewRequest(1, "tools/list", nil))
	if err == nil {
		t.Fatal("expected error for non-JSON body")
	}
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Errorf("expected ProtocolError, got %T", err)
	}
}

func TestSSETransport_Kind(t *testing.T) {
	tr := NewSSETransport(HTTPConfig{BaseURL: "http://localhost:1"})
	if tr.Kind() != KindSSE {
		t.Errorf("expected %q, got %q", KindSSE, tr.Kind())
	}
}
