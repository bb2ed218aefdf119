package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogObserverLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	obs := NewLogObserver(logger)

	obs.Observe(context.Background(), Event{Kind: ToolInvoked, Provider: "search", Tool: "find"})
	if buf.Len() != 0 {
		t.Fatalf("expected debug event to be filtered, got %s", buf.String())
	}

	obs.Observe(context.Background(), Event{Kind: SchemaRejected, Provider: "search", Tool: "bad", Err: errors.New("default")})
	out := buf.String()
	if !strings.Contains(out, `"msg":"schema.rejected"`) || !strings.Contains(out, `"tool":"bad"`) {
		t.Fatalf("unexpected log output %s", out)
	}
}

func TestMultiSkipsNil(t *testing.T) {
	var got []Kind
	obs := Multi(nil, ObserverFunc(func(_ context.Context, ev Event) {
		got = append(got, ev.Kind)
	}), nil)
	obs.Observe(context.Background(), Event{Kind: EntryReady})
	obs.Observe(context.Background(), Event{Kind: EntryClosed})
	if len(got) != 2 || got[0] != EntryReady || got[1] != EntryClosed {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestTraceObserverAddsSpanEvents(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	NewTraceObserver().Observe(ctx, Event{Kind: Connected, Provider: "search"})
	span.End()

	// Outside any span the event is dropped without panicking.
	NewTraceObserver().Observe(context.Background(), Event{Kind: Connected})

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected one span, got %d", len(ended))
	}
	events := ended[0].Events()
	if len(events) != 1 || events[0].Name != string(Connected) {
		t.Fatalf("unexpected span events %v", events)
	}
}
