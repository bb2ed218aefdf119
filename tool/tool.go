package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	errs "github.com/sweetpotato0/toolbridge/errors"
	"github.com/sweetpotato0/toolbridge/schema"
)

// Result is the successful outcome of a tool invocation.
type Result struct {
	Text       string `json:"text,omitempty"`
	Structured any    `json:"structured,omitempty"`
}

// Handler performs the invocation once arguments have been validated.
type Handler func(ctx context.Context, args map[string]any) (*Result, error)

// Tool represents a callable remote tool
type Tool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	InputSchema any               `json:"input_schema,omitempty"`
	Validator   *schema.Validator `json:"-"`
	Handler     Handler           `json:"-"`
}

// Execute validates args and runs the tool. A nil Validator accepts anything.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	if t.Handler == nil {
		return nil, fmt.Errorf("tool %s has no handler", t.Name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := t.ValidateArgs(args); err != nil {
		return nil, err
	}
	return t.Handler(ctx, args)
}

// ExecuteJSON decodes raw JSON arguments and runs the tool. Empty input means
// no arguments.
func (t *Tool) ExecuteJSON(ctx context.Context, raw []byte) (*Result, error) {
	var v any
	if t.Validator != nil {
		parsed, err := t.Validator.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w: %w", t.Name, errs.ErrInvalidInput, err)
		}
		v = parsed
	} else if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("tool %s: %w: %w", t.Name, errs.ErrInvalidInput, err)
		}
	}
	if v == nil {
		return t.Execute(ctx, nil)
	}
	args, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool %s: %w: arguments must be a JSON object", t.Name, errs.ErrInvalidInput)
	}
	return t.Execute(ctx, args)
}

// ValidateArgs checks args against the tool's compiled input schema.
func (t *Tool) ValidateArgs(args map[string]any) error {
	if t.Validator == nil {
		return nil
	}
	if err := t.Validator.Validate(args); err != nil {
		return fmt.Errorf("tool %s: %w: %w", t.Name, errs.ErrInvalidInput, err)
	}
	return nil
}

// ToJSONSchema returns the tool definition in function-calling format.
func (t *Tool) ToJSONSchema() map[string]any {
	params := t.InputSchema
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  params,
		},
	}
}

// Registry manages a collection of tools
// All operations are thread-safe using RWMutex protection
type Registry struct {
	mu    sync.RWMutex // Protects tools map
	tools map[string]*Tool
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("%w: tool name cannot be empty", errs.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s: %w", tool.Name, errs.ErrAlreadyExists)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", name, errs.ErrNotFound)
	}
	return tool, nil
}

// List returns all registered tools sorted by name
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// ToJSONSchemas returns all tools in JSON schema format
func (r *Registry) ToJSONSchemas() []map[string]any {
	tools := r.List()
	schemas := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		schemas = append(schemas, tool.ToJSONSchema())
	}
	return schemas
}

// Execute runs a tool by name with given arguments
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return tool.Execute(ctx, args)
}

// MarshalJSON customizes JSON marshaling for Registry
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToJSONSchemas())
}
