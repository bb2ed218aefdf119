package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NewLogObserver renders events through slog. Failures are logged at error
// level, rejected schemas and missing credentials at warn, everything else at debug.
func NewLogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		return Nop()
	}
	return ObserverFunc(func(ctx context.Context, ev Event) {
		logger.LogAttrs(ctx, level(ev), string(ev.Kind), attrs(ev)...)
	})
}

func level(ev Event) slog.Level {
	switch ev.Kind {
	case ConnectFailed, FactoryFailed, CloseFailed, ToolFailed:
		return slog.LevelError
	case SchemaRejected, CredentialMissing:
		return slog.LevelWarn
	case Connected, EntryReady, EntryClosed:
		return slog.LevelInfo
	}
	if ev.Err != nil {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

func attrs(ev Event) []slog.Attr {
	out := make([]slog.Attr, 0, 5+len(ev.Attrs))
	if ev.Provider != "" {
		out = append(out, slog.String("provider", ev.Provider))
	}
	if ev.Tool != "" {
		out = append(out, slog.String("tool", ev.Tool))
	}
	if ev.Count != 0 {
		out = append(out, slog.Int("count", ev.Count))
	}
	if ev.Duration != 0 {
		out = append(out, slog.Int64("duration_ms", ev.Duration.Milliseconds()))
	}
	if ev.Err != nil {
		out = append(out, slog.String("error", ev.Err.Error()))
	}
	for k, v := range ev.Attrs {
		out = append(out, slog.Any(k, v))
	}
	return out
}

// NewTraceObserver records events on the span active in the event's context.
// Events observed outside a recording span are dropped.
func NewTraceObserver() Observer {
	return ObserverFunc(func(ctx context.Context, ev Event) {
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		kv := []attribute.KeyValue{}
		if ev.Provider != "" {
			kv = append(kv, attribute.String("toolbridge.provider", ev.Provider))
		}
		if ev.Tool != "" {
			kv = append(kv, attribute.String("toolbridge.tool", ev.Tool))
		}
		if ev.Count != 0 {
			kv = append(kv, attribute.Int("toolbridge.count", ev.Count))
		}
		if ev.Err != nil {
			kv = append(kv, attribute.String("error.message", ev.Err.Error()))
		}
		span.AddEvent(string(ev.Kind), trace.WithAttributes(kv...))
	})
}
