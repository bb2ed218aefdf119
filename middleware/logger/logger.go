package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/toolbridge/middleware"
)

// CallLogger logs every tool call and its outcome
type CallLogger struct {
	logger *slog.Logger
}

// NewCallLogger creates a call logging middleware. A nil logger uses slog.Default.
func NewCallLogger(logger *slog.Logger) *CallLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallLogger{logger: logger}
}

// Name returns the middleware name
func (m *CallLogger) Name() string {
	return "CallLogger"
}

// Execute logs the call before and after it runs
func (m *CallLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	attrs := []any{"provider", ctx.Provider, "tool", ctx.Tool}
	for k, v := range ctx.Metadata {
		attrs = append(attrs, k, v)
	}
	m.logger.DebugContext(ctx.Context(), "tool call started", append(attrs, "args", len(ctx.Args))...)

	start := time.Now()
	err := next(ctx)
	attrs = append(attrs, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		m.logger.WarnContext(ctx.Context(), "tool call failed", append(attrs, "error", err)...)
		return err
	}
	if ctx.Result != nil {
		attrs = append(attrs, "result_bytes", len(ctx.Result.Text))
	}
	m.logger.InfoContext(ctx.Context(), "tool call completed", attrs...)
	return nil
}
