// Package mcptest runs in-process MCP servers over streamable HTTP for tests.
package mcptest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool is a server-side tool definition.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Handler     sdkmcp.ToolHandler
}

// Options tunes the test server.
type Options struct {
	// PageSize limits tools per tools/list page. Zero uses the SDK default.
	PageSize int
}

// Server is an httptest server speaking MCP.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	headers  []http.Header
	sessions atomic.Int32
}

// NewServer starts a server exposing tools. It is shut down when the test ends.
func NewServer(t testing.TB, opts Options, tools ...Tool) *Server {
	t.Helper()

	s := &Server{}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "mcptest", Version: "1"}, &sdkmcp.ServerOptions{
		PageSize: opts.PageSize,
		HasTools: true,
		InitializedHandler: func(context.Context, *sdkmcp.InitializedRequest) {
			s.sessions.Add(1)
		},
	})
	for _, tl := range tools {
		schema := tl.Schema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		handler := tl.Handler
		if handler == nil {
			handler = Text("ok")
		}
		server.AddTool(&sdkmcp.Tool{Name: tl.Name, Description: tl.Description, InputSchema: schema}, handler)
	}

	mcpHandler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return server }, nil)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()
		mcpHandler.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		s.CloseClientConnections()
		s.Close()
	})
	return s
}

// Headers returns the headers of every request received so far.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

// Sessions reports how many clients completed initialization.
func (s *Server) Sessions() int {
	return int(s.sessions.Load())
}

// Text returns a handler that always answers with text.
func Text(text string) sdkmcp.ToolHandler {
	return func(context.Context, *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}}}, nil
	}
}

// Fail returns a handler that reports a tool-level error carrying text.
func Fail(text string) sdkmcp.ToolHandler {
	return func(context.Context, *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		return &sdkmcp.CallToolResult{IsError: true, Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}}}, nil
	}
}
