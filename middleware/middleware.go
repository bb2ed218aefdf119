// Package middleware intercepts tool calls made through a session.
package middleware

import (
	"context"

	"github.com/sweetpotato0/toolbridge/tool"
)

// Context represents the middleware execution context of one tool call
type Context struct {
	// Provider and Tool identify the call
	Provider string
	Tool     string

	// Validated arguments
	Args map[string]any

	// Result of the call, set once the final handler returns
	Result *tool.Result

	// Error from execution
	Error error

	// Metadata for passing data between middlewares
	Metadata map[string]any

	// Internal state
	context context.Context
}

// NewContext creates a new middleware context
func NewContext(ctx context.Context) *Context {
	return &Context{
		Metadata: make(map[string]any),
		context:  ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// Middleware defines the interface for middleware components
// Middlewares can intercept and modify tool calls before and after they reach the provider
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic
	// It receives the current context and a next handler to continue the chain
	// Returning error will stop the middleware chain
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// MiddlewareChain represents a sequence of middleware to be executed
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{
		middlewares: middlewares,
	}
}

// Add appends a middleware to the chain
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Len returns the number of middlewares
func (c *MiddlewareChain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.middlewares)
}

// Execute runs all middlewares in the chain
func (c *MiddlewareChain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

// executeMiddleware recursively executes middlewares in sequence
func (c *MiddlewareChain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		// All middlewares executed, call the final handler
		return finalHandler(ctx)
	}

	// Create a handler for the next middleware
	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}

	// Execute current middleware
	return c.middlewares[index].Execute(ctx, nextHandler)
}

// Wrap returns a copy of t whose handler runs through the chain. Argument
// validation still happens before the chain is entered.
func (c *MiddlewareChain) Wrap(provider string, t *tool.Tool) *tool.Tool {
	if c.Len() == 0 || t == nil || t.Handler == nil {
		return t
	}
	inner := t.Handler
	wrapped := *t
	wrapped.Handler = func(ctx context.Context, args map[string]any) (*tool.Result, error) {
		mc := NewContext(ctx)
		mc.Provider = provider
		mc.Tool = t.Name
		mc.Args = args
		err := c.Execute(mc, func(mc *Context) error {
			mc.Result, mc.Error = inner(mc.Context(), mc.Args)
			return mc.Error
		})
		if err != nil {
			return nil, err
		}
		return mc.Result, nil
	}
	return &wrapped
}

// WrapToolkit returns a toolkit whose tools all run through the chain.
func (c *MiddlewareChain) WrapToolkit(kit *tool.Toolkit) *tool.Toolkit {
	if c.Len() == 0 || kit == nil {
		return kit
	}
	out := &tool.Toolkit{
		Provider: kit.Provider,
		Tools:    make([]*tool.Tool, 0, len(kit.Tools)),
		Rejected: kit.Rejected,
	}
	for _, t := range kit.Tools {
		out.Tools = append(out.Tools, c.Wrap(kit.Provider, t))
	}
	return out
}
