package tool

import (
	"context"
	"errors"
	"testing"

	errs "github.com/sweetpotato0/toolbridge/errors"
	"github.com/sweetpotato0/toolbridge/schema"
)

func mustCompile(t *testing.T, raw any) *schema.Validator {
	t.Helper()
	v, err := schema.Compile(raw)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return v
}

func TestToolExecution(t *testing.T) {
	ctx := context.Background()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Validator: mustCompile(t, map[string]any{
			"type":       "object",
			"properties": map[string]any{"input": map[string]any{"type": "string"}},
			"required":   []any{"input"},
		}),
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			return &Result{Text: args["input"].(string) + "_processed"}, nil
		},
	}

	result, err := tool.Execute(ctx, map[string]any{"input": "test"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Text != "test_processed" {
		t.Errorf("Expected 'test_processed', got '%s'", result.Text)
	}
}

func TestToolValidation(t *testing.T) {
	ctx := context.Background()
	called := false

	tool := &Tool{
		Name: "test_tool",
		Validator: mustCompile(t, map[string]any{
			"type":     "object",
			"required": []any{"required_param"},
		}),
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			called = true
			return &Result{Text: "ok"}, nil
		},
	}

	_, err := tool.Execute(ctx, map[string]any{})
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("Expected invalid input error, got %v", err)
	}
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected wrapped validation error, got %v", err)
	}
	if called {
		t.Fatal("handler must not run when validation fails")
	}

	if _, err = tool.Execute(ctx, map[string]any{"required_param": "value"}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestExecuteJSON(t *testing.T) {
	ctx := context.Background()
	tool := &Tool{
		Name: "count",
		Validator: mustCompile(t, map[string]any{
			"type":       "object",
			"properties": map[string]any{"n": map[string]any{"type": "integer", "minimum": 1}},
		}),
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			return &Result{Structured: args}, nil
		},
	}

	if _, err := tool.ExecuteJSON(ctx, []byte(`{"n": 0}`)); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected minimum violation, got %v", err)
	}
	if _, err := tool.ExecuteJSON(ctx, []byte(`{"n": `)); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected malformed JSON to be rejected, got %v", err)
	}
	if _, err := tool.ExecuteJSON(ctx, nil); err != nil {
		t.Fatalf("expected empty args to be accepted, got %v", err)
	}

	permissive := &Tool{Name: "any", Handler: tool.Handler}
	if _, err := permissive.ExecuteJSON(ctx, []byte(`[1,2]`)); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected non-object arguments to be rejected, got %v", err)
	}
}

func TestToolWithoutHandler(t *testing.T) {
	if _, err := (&Tool{Name: "empty"}).Execute(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing handler")
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	tool1 := &Tool{Name: "tool1", Description: "First tool"}
	tool2 := &Tool{Name: "tool2", Description: "Second tool"}

	if err := registry.Register(tool1); err != nil {
		t.Fatalf("Failed to register tool1: %v", err)
	}
	if err := registry.Register(tool2); err != nil {
		t.Fatalf("Failed to register tool2: %v", err)
	}

	if err := registry.Register(tool1); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("Expected duplicate registration error, got %v", err)
	}

	retrieved, err := registry.Get("tool1")
	if err != nil {
		t.Fatalf("Failed to get tool1: %v", err)
	}
	if retrieved.Name != "tool1" {
		t.Errorf("Expected tool name 'tool1', got '%s'", retrieved.Name)
	}
	if _, err := registry.Get("missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	tools := registry.List()
	if len(tools) != 2 || tools[0].Name != "tool1" {
		t.Errorf("Expected 2 sorted tools, got %d", len(tools))
	}

	schemas := registry.ToJSONSchemas()
	fn := schemas[1]["function"].(map[string]any)
	if fn["name"] != "tool2" {
		t.Errorf("unexpected schema %v", schemas[1])
	}
}

func TestToolkitRegisterWithPrefix(t *testing.T) {
	kit := &Toolkit{
		Provider: "search",
		Tools:    []*Tool{{Name: "find"}, {Name: "fetch"}},
		Rejected: []Rejection{{Name: "bad", Err: errors.New("unsupported")}},
	}
	registry := NewRegistry()
	if err := kit.Register(registry, "search"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Get("search.find"); err != nil {
		t.Fatalf("expected prefixed tool: %v", err)
	}
	if kit.Tools[0].Name != "find" {
		t.Fatalf("toolkit tools must not be renamed, got %s", kit.Tools[0].Name)
	}
	if got, ok := kit.Get("fetch"); !ok || got.Name != "fetch" {
		t.Fatalf("expected to find fetch")
	}
	if kit.RejectionSummary() != "bad: unsupported" {
		t.Fatalf("unexpected summary %q", kit.RejectionSummary())
	}
}
