package mcp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/toolbridge/catalog"
	"github.com/sweetpotato0/toolbridge/pkg/observe"
	"github.com/sweetpotato0/toolbridge/schema"
)

type stubConn struct {
	tools []catalog.Capability
	call  func(ctx context.Context, name string, args map[string]any) (*sdkmcp.CallToolResult, error)
	calls atomic.Int32
}

func (s *stubConn) ListToolsPage(context.Context, string) (*catalog.Page, error) {
	return &catalog.Page{Tools: s.tools}, nil
}

func (s *stubConn) CallTool(ctx context.Context, name string, args map[string]any) (*sdkmcp.CallToolResult, error) {
	s.calls.Add(1)
	return s.call(ctx, name, args)
}

func textResult(isError bool, text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{IsError: isError, Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}}}
}

func TestNormalizeContent(t *testing.T) {
	content := []sdkmcp.Content{
		&sdkmcp.TextContent{Text: "hello"},
		&sdkmcp.ResourceLink{URI: "file://foo", Name: "foo.txt"},
	}

	got := normalizeContent(content)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), got)
	}
	if lines[0] != "hello" {
		t.Fatalf("expected first line to be 'hello', got %q", lines[0])
	}
	if !strings.Contains(lines[1], "\"resource_link\"") {
		t.Fatalf("expected JSON output to include resource link type: %q", lines[1])
	}
}

func TestBuildDropsUnsupportedSchema(t *testing.T) {
	conn := &stubConn{tools: []catalog.Capability{
		{Name: "search", Description: "find things", InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
		}},
		{Name: "legacy", InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"limit": map[string]any{"type": "integer", "default": 10}},
		}},
	}}

	var rejected []observe.Event
	obs := observe.ObserverFunc(func(_ context.Context, ev observe.Event) {
		if ev.Kind == observe.SchemaRejected {
			rejected = append(rejected, ev)
		}
	})

	kit, err := Builder{Provider: "search", Observer: obs}.Build(context.Background(), conn)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if kit.Len() != 1 || kit.Tools[0].Name != "search" {
		t.Fatalf("expected only the supported tool, got %v", kit.Names())
	}
	if len(kit.Rejected) != 1 || kit.Rejected[0].Name != "legacy" {
		t.Fatalf("expected legacy to be rejected, got %v", kit.Rejected)
	}
	var unsupported *schema.UnsupportedSchemaError
	if !errors.As(kit.Rejected[0].Err, &unsupported) || unsupported.Keyword != "default" {
		t.Fatalf("unexpected rejection %v", kit.Rejected[0].Err)
	}
	if len(rejected) != 1 || rejected[0].Tool != "legacy" {
		t.Fatalf("expected one schema.rejected event, got %v", rejected)
	}
}

func TestBuildAppliesSelection(t *testing.T) {
	conn := &stubConn{tools: []catalog.Capability{{Name: "a"}, {Name: "b"}, {Name: "c"}}}
	kit, err := Builder{Selection: catalog.Selection{Mode: catalog.ModeExcept, Exclude: []string{"b"}}}.Build(context.Background(), conn)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := strings.Join(kit.Names(), ","); got != "a,c" {
		t.Fatalf("unexpected tools %s", got)
	}
}

func TestInvokeErrorMessages(t *testing.T) {
	cases := []struct {
		name   string
		result *sdkmcp.CallToolResult
		want   string
		opaque bool
	}{
		{"content text", textResult(true, "quota exceeded"), "quota exceeded", false},
		{"content wins over structured", &sdkmcp.CallToolResult{
			IsError:           true,
			Content:           []sdkmcp.Content{&sdkmcp.TextContent{Text: "from content"}},
			StructuredContent: map[string]any{"result": "from result"},
		}, "from content", false},
		{"structured result", &sdkmcp.CallToolResult{IsError: true, StructuredContent: map[string]any{"result": "bad input", "message": "ignored"}}, "bad input", false},
		{"structured message", &sdkmcp.CallToolResult{IsError: true, StructuredContent: map[string]any{"message": "try later"}}, "try later", false},
		{"opaque", &sdkmcp.CallToolResult{IsError: true}, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &stubConn{
				tools: []catalog.Capability{{Name: "op"}},
				call: func(context.Context, string, map[string]any) (*sdkmcp.CallToolResult, error) {
					return tc.result, nil
				},
			}
			kit, err := Builder{}.Build(context.Background(), conn)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			_, err = kit.Tools[0].Execute(context.Background(), nil)
			var invErr *InvocationError
			if !errors.As(err, &invErr) {
				t.Fatalf("expected InvocationError, got %v", err)
			}
			if invErr.Message != tc.want || invErr.Opaque != tc.opaque {
				t.Fatalf("got message %q opaque %v", invErr.Message, invErr.Opaque)
			}
		})
	}
}

func TestInvokeSuccess(t *testing.T) {
	conn := &stubConn{
		tools: []catalog.Capability{{Name: "op"}},
		call: func(_ context.Context, name string, args map[string]any) (*sdkmcp.CallToolResult, error) {
			res := textResult(false, name+":"+args["q"].(string))
			res.StructuredContent = map[string]any{"hits": 2.0}
			return res, nil
		},
	}
	kit, _ := Builder{}.Build(context.Background(), conn)
	res, err := kit.Tools[0].Execute(context.Background(), map[string]any{"q": "go"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Text != "op:go" || res.Structured.(map[string]any)["hits"] != 2.0 {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestInvokeTimeoutIsBoundedInsideOuterContext(t *testing.T) {
	conn := &stubConn{
		tools: []catalog.Capability{{Name: "hang"}},
		call: func(ctx context.Context, _ string, _ map[string]any) (*sdkmcp.CallToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	kit, _ := Builder{CallTimeout: 50 * time.Millisecond}.Build(context.Background(), conn)

	outer, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	start := time.Now()
	_, err := kit.Tools[0].Execute(outer, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("call timeout not applied")
	}
	if outer.Err() != nil {
		t.Fatalf("outer context must be unaffected")
	}
}

func TestInvokeHonoursOuterCancellation(t *testing.T) {
	conn := &stubConn{
		tools: []catalog.Capability{{Name: "hang"}},
		call: func(ctx context.Context, _ string, _ map[string]any) (*sdkmcp.CallToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	kit, _ := Builder{CallTimeout: time.Hour}.Build(context.Background(), conn)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := kit.Tools[0].Execute(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestInvalidArgumentsNeverReachServer(t *testing.T) {
	conn := &stubConn{
		tools: []catalog.Capability{{Name: "op", InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"q"},
		}}},
		call: func(context.Context, string, map[string]any) (*sdkmcp.CallToolResult, error) {
			return textResult(false, "ok"), nil
		},
	}
	kit, _ := Builder{}.Build(context.Background(), conn)
	if _, err := kit.Tools[0].Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected validation error")
	}
	if conn.calls.Load() != 0 {
		t.Fatalf("server was called %d times", conn.calls.Load())
	}
}

func TestTransportErrorIsWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	var mu sync.Mutex
	var kinds []observe.Kind
	conn := &stubConn{
		tools: []catalog.Capability{{Name: "op"}},
		call: func(context.Context, string, map[string]any) (*sdkmcp.CallToolResult, error) {
			return nil, boom
		},
	}
	obs := observe.ObserverFunc(func(_ context.Context, ev observe.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	kit, _ := Builder{Observer: obs}.Build(context.Background(), conn)
	_, err := kit.Tools[0].Execute(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if kinds[len(kinds)-1] != observe.ToolFailed {
		t.Fatalf("expected tool.failed event, got %v", kinds)
	}
}
