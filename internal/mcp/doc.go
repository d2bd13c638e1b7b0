// Package mcp implements MCP (Model Context Protocol) client support,
// allowing Kestrel to connect to external MCP servers and expose their
// tools to the agent loop.
//
// MCP uses JSON-RPC 2.0 over three transports: stdio (a spawned
// subprocess with newline-delimited JSON on its pipes), plain HTTP
// (each call is a POST to {base}/rpc), and an SSE-labelled variant that
// reuses the same HTTP request/response path. The client discovers
// tools via tools/list and invokes them via tools/call. Discovered
// tools are bridged into Kestrel's tool registry so they appear as
// native tools to the model.
//
// One client maintains one conversation with one server; requests are
// serialized, since the stdio framing carries no id-based response
// correlation. This implementation covers the client/host side only —
// Kestrel does not act as an MCP server.
package mcp
