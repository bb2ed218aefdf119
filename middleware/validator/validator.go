package validator

import (
	"fmt"

	"github.com/sweetpotato0/toolbridge/middleware"
	"github.com/sweetpotato0/toolbridge/tool"
)

// FilterFunc transforms or filters results
type FilterFunc func(*tool.Result) error

// ToolFilter refuses calls to denied tools. Entries match either the bare
// tool name or "<provider>.<tool>".
type ToolFilter struct {
	deny map[string]bool
}

// NewToolFilter creates a tool filtering middleware
func NewToolFilter(deny ...string) *ToolFilter {
	m := &ToolFilter{deny: make(map[string]bool, len(deny))}
	for _, d := range deny {
		m.deny[d] = true
	}
	return m
}

// Name returns the middleware name
func (m *ToolFilter) Name() string {
	return "ToolFilter"
}

// Execute rejects denied tools
func (m *ToolFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.deny[ctx.Tool] || m.deny[ctx.Provider+"."+ctx.Tool] {
		return fmt.Errorf("%w: %s.%s", middleware.ErrToolDenied, ctx.Provider, ctx.Tool)
	}
	return next(ctx)
}

// ResultFilter filters or transforms the result
type ResultFilter struct {
	filter FilterFunc
}

// NewResultFilter creates a result filtering middleware
func NewResultFilter(filter FilterFunc) *ResultFilter {
	return &ResultFilter{filter: filter}
}

// Name returns the middleware name
func (m *ResultFilter) Name() string {
	return "ResultFilter"
}

// Execute filters the result
func (m *ResultFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil {
		return err
	}
	if ctx.Result != nil && m.filter != nil {
		return m.filter(ctx.Result)
	}
	return nil
}
