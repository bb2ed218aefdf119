// Package mcp builds toolkits from remote MCP tool providers.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/toolbridge/catalog"
	"github.com/sweetpotato0/toolbridge/pkg/observe"
	"github.com/sweetpotato0/toolbridge/schema"
	"github.com/sweetpotato0/toolbridge/tool"
)

// DefaultCallTimeout bounds a single tool call when Builder.CallTimeout is zero.
const DefaultCallTimeout = 30 * time.Second

// Conn is the part of a connection the builder needs. Tools built from it
// call through it but never close it.
type Conn interface {
	catalog.PageSource
	CallTool(ctx context.Context, name string, args map[string]any) (*sdkmcp.CallToolResult, error)
}

// InvocationError is returned when a tool call fails. Err is set for
// transport failures and timeouts; otherwise the server reported the error.
type InvocationError struct {
	Tool    string
	Message string
	// Opaque is true when the server flagged an error without any message.
	Opaque bool
	Err    error
}

func (e *InvocationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("mcp tool %s: %v", e.Tool, e.Err)
	case e.Opaque:
		return fmt.Sprintf("mcp tool %s: tool returned error without message", e.Tool)
	default:
		return fmt.Sprintf("mcp tool %s: %s", e.Tool, e.Message)
	}
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Builder turns a connection's catalogue into a toolkit.
type Builder struct {
	// Provider labels the toolkit and emitted events.
	Provider string
	// CallTimeout bounds each call. It is derived from the caller's context,
	// so it never outlives an outer deadline.
	CallTimeout time.Duration
	Selection   catalog.Selection
	Observer    observe.Observer
}

// Build lists every capability on conn, applies the selection and compiles
// each input schema. Capabilities with unsupported schemas are recorded in
// Toolkit.Rejected instead of failing the build. An empty toolkit is not an
// error here.
func (b Builder) Build(ctx context.Context, conn Conn) (*tool.Toolkit, error) {
	obs := observe.OrNop(b.Observer)

	start := time.Now()
	caps, err := catalog.ListAll(ctx, conn)
	if err != nil {
		return nil, err
	}
	obs.Observe(ctx, observe.Event{Kind: observe.CatalogListed, Provider: b.Provider, Count: len(caps), Duration: time.Since(start)})

	caps = catalog.Select(b.Selection, caps)
	kit := &tool.Toolkit{
		Provider: b.Provider,
		Tools:    make([]*tool.Tool, 0, len(caps)),
	}
	for _, c := range caps {
		validator, err := schema.Compile(c.InputSchema)
		if err != nil {
			kit.Rejected = append(kit.Rejected, tool.Rejection{Name: c.Name, Err: err})
			obs.Observe(ctx, observe.Event{Kind: observe.SchemaRejected, Provider: b.Provider, Tool: c.Name, Err: err})
			continue
		}
		kit.Tools = append(kit.Tools, b.newTool(conn, c, validator, obs))
	}
	return kit, nil
}

func (b Builder) newTool(conn Conn, c catalog.Capability, validator *schema.Validator, obs observe.Observer) *tool.Tool {
	name := c.Name
	return &tool.Tool{
		Name:        name,
		Description: c.Description,
		InputSchema: c.InputSchema,
		Validator:   validator,
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			return b.invoke(ctx, conn, name, args, obs)
		},
	}
}

func (b Builder) invoke(ctx context.Context, conn Conn, name string, args map[string]any, obs observe.Observer) (*tool.Result, error) {
	timeout := b.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := conn.CallTool(callCtx, name, args)
	if err == nil && res == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		invErr := &InvocationError{Tool: name, Err: err}
		obs.Observe(ctx, observe.Event{Kind: observe.ToolFailed, Provider: b.Provider, Tool: name, Err: invErr, Duration: time.Since(start)})
		return nil, invErr
	}
	if res.IsError {
		msg := errorMessage(res)
		invErr := &InvocationError{Tool: name, Message: msg, Opaque: msg == ""}
		obs.Observe(ctx, observe.Event{Kind: observe.ToolFailed, Provider: b.Provider, Tool: name, Err: invErr, Duration: time.Since(start)})
		return nil, invErr
	}

	obs.Observe(ctx, observe.Event{Kind: observe.ToolInvoked, Provider: b.Provider, Tool: name, Duration: time.Since(start)})
	return &tool.Result{
		Text:       normalizeContent(res.Content),
		Structured: res.StructuredContent,
	}, nil
}

// errorMessage picks the text of a tool-level error: the content text first,
// then the structured "result", then the structured "message".
func errorMessage(res *sdkmcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if text, ok := c.(*sdkmcp.TextContent); ok && strings.TrimSpace(text.Text) != "" {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) > 0 {
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}

	structured := structuredMap(res.StructuredContent)
	for _, key := range []string{"result", "message"} {
		if s, ok := structured[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func structuredMap(v any) map[string]any {
	switch value := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return value
	case json.RawMessage:
		var out map[string]any
		if err := json.Unmarshal(value, &out); err != nil {
			return nil
		}
		return out
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	}
}

func normalizeContent(content []sdkmcp.Content) string {
	if len(content) == 0 {
		return ""
	}

	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := c.MarshalJSON(); err == nil {
				parts = append(parts, string(data))
			}
		}
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}
