package mcp

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestReadResponse_SkipsNoiseLines(t *testing.T) {
	input := "server starting up\n" +
		"WARNING: something happened\n" +
		`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}` + "\n"

	resp, err := readResponse(bufio.NewReader(strings.NewReader(input)), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != 1 {
		t.Errorf("expected id 1, got %d", resp.ID)
	}
	if resp.Result == nil {
		t.Error("expected result to be set")
	}
}

func TestReadResponse_SkipsBlankLines(t *testing.T) {
	input := "\n\n" + `{"jsonrpc":"2.0","id":7,"result":{}}` + "\n"

	resp, err := readResponse(bufio.NewReader(strings.NewReader(input)), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != 7 {
		t.Errorf("expected id 7, got %d", resp.ID)
	}
}

func TestReadResponse_EOF(t *testing.T) {
	input := "diagnostic noise only\n"

	_, err := readResponse(bufio.NewReader(strings.NewReader(input)), slog.Default())
	if err == nil {
		t.Fatal("expected error at stream end")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("expected ConnectionError, got %T", err)
	}
}

func TestReadResponse_ErrorEnvelope(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"method not found"}}` + "\n"

	resp, err := readResponse(bufio.NewReader(strings.NewReader(input)), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil {
		t.Fatal("expected error envelope")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("expected code -32601, got %d", resp.Error.Code)
	}
}

func TestStdioTransport_SendBeforeConnect(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "true"})
	_, err := tr.Send(context.Background(), NewRequest(1, "tools/list", nil))
	if err == nil {
		t.Fatal("expected error when not connected")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("expected ConnectionError, got %T", err)
	}
}

func TestStdioTransport_Kind(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "true"})
	if tr.Kind() != KindStdio {
		t.Errorf("expected %q, got %q", KindStdio, tr.Kind())
	}
}

func TestStdioTransport_CloseWithoutConnect(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "true"})
	if err := tr.Close(); err != nil {
		t.Errorf("close on unconnected transport: %v", err)
	}
}
