package errorhandler

import (
	"fmt"

	"github.com/sweetpotato0/toolbridge/middleware"
)

// ErrorHandlerFunc handles errors
type ErrorHandlerFunc func(error) error

// ErrorHandler handles errors in the middleware chain
type ErrorHandler struct {
	handler ErrorHandlerFunc
}

// NewErrorHandler creates an error handling middleware
func NewErrorHandler(handler ErrorHandlerFunc) *ErrorHandler {
	return &ErrorHandler{handler: handler}
}

// Name returns the middleware name
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute handles errors from downstream middlewares
func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil && m.handler != nil {
		return m.handler(err)
	}
	return err
}

// Recoverer turns a panic further down the chain into an error.
type Recoverer struct{}

// NewRecoverer creates a panic recovering middleware
func NewRecoverer() *Recoverer {
	return &Recoverer{}
}

// Name returns the middleware name
func (m *Recoverer) Name() string {
	return "Recoverer"
}

// Execute runs next and recovers any panic
func (m *Recoverer) Execute(ctx *middleware.Context, next middleware.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s.%s panicked: %v", ctx.Provider, ctx.Tool, r)
			ctx.Error = err
		}
	}()
	return next(ctx)
}
