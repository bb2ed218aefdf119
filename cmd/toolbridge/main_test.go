package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/toolbridge/mcp/mcptest"
)

func echoHandler(_ context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	var args struct {
		Q string `json:"q"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, err
	}
	return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "echo:" + args.Q}}}, nil
}

func writeConfig(t *testing.T, address string, extra ...string) string {
	t.Helper()
	cfg := fmt.Sprintf(`
client:
  name: toolbridge-test
providers:
  - key: search
    address: %s
log:
  level: error
%s`, address, strings.Join(extra, "\n"))
	path := filepath.Join(t.TempDir(), "toolbridge.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newTestServer(t *testing.T) *mcptest.Server {
	return mcptest.NewServer(t, mcptest.Options{},
		mcptest.Tool{
			Name:        "echo",
			Description: "Echo the query",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"q": map[string]any{"type": "string"}},
				"required":   []any{"q"},
			},
			Handler: echoHandler,
		},
		mcptest.Tool{
			Name:   "broken",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"limit": map[string]any{"type": "integer", "default": 10}},
			},
		},
	)
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestToolsCommand(t *testing.T) {
	srv := newTestServer(t)
	path := writeConfig(t, srv.URL)

	out, err := runCLI(t, "", "tools", "--config", path)
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	if !strings.Contains(out, "echo") || !strings.Contains(out, "Echo the query") {
		t.Fatalf("missing echo tool in output:\n%s", out)
	}
	if !strings.Contains(out, "broken") || !strings.Contains(out, "rejected") {
		t.Fatalf("missing rejected capability in output:\n%s", out)
	}
}

func TestCallCommand(t *testing.T) {
	srv := newTestServer(t)
	path := writeConfig(t, srv.URL)

	out, err := runCLI(t, "", "call", "search", "echo", `{"q":"hello"}`, "--config", path)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if strings.TrimSpace(out) != "echo:hello" {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := runCLI(t, "", "call", "search", "echo", `{}`, "--config", path); err == nil {
		t.Fatalf("expected validation error for missing q")
	}
	if _, err := runCLI(t, "", "call", "search", "nope", "--config", path); err == nil {
		t.Fatalf("expected error for unknown tool")
	}
}

func TestCallCommandHonoursDenyList(t *testing.T) {
	srv := newTestServer(t)
	path := writeConfig(t, srv.URL, "execution:\n  deny_tools: [search.echo]\n")

	_, err := runCLI(t, "", "call", "search", "echo", `{"q":"hello"}`, "--config", path)
	if err == nil || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("expected denied call, got %v", err)
	}
}

func TestBatchCommandUsesOneConnection(t *testing.T) {
	srv := newTestServer(t)
	path := writeConfig(t, srv.URL)

	input := strings.Join([]string{
		`{"id":"a","provider":"search","tool":"echo","args":{"q":"one"}}`,
		`{"id":"b","provider":"search","tool":"echo","args":{"q":"two"}}`,
		``,
		`{"id":"c","provider":"search","tool":"missing"}`,
	}, "\n")
	out, err := runCLI(t, input, "batch", "-", "--config", path)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	got := map[string]batchOutput{}
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var o batchOutput
		if err := dec.Decode(&o); err != nil {
			t.Fatalf("decode output: %v\n%s", err, out)
		}
		got[o.ID] = o
	}
	if got["a"].Result == nil || got["a"].Result.Text != "echo:one" {
		t.Fatalf("unexpected result a: %+v", got["a"])
	}
	if got["b"].Result == nil || got["b"].Result.Text != "echo:two" {
		t.Fatalf("unexpected result b: %+v", got["b"])
	}
	if got["c"].Error == "" {
		t.Fatalf("expected error for c: %+v", got["c"])
	}
	if srv.Sessions() != 1 {
		t.Fatalf("expected one connection for the batch, got %d", srv.Sessions())
	}
}

func TestReadBatchRejectsIncompleteLines(t *testing.T) {
	if _, err := readBatch(strings.NewReader(`{"provider":"search"}`)); err == nil {
		t.Fatalf("expected error for missing tool")
	}
	if _, err := readBatch(strings.NewReader(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
