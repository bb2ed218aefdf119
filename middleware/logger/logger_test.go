package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/sweetpotato0/toolbridge/middleware"
	"github.com/sweetpotato0/toolbridge/tool"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestCallLogger(t *testing.T) {
	t.Run("logs completed calls", func(t *testing.T) {
		l, buf := newBufferLogger()
		ctx := &middleware.Context{Provider: "search", Tool: "find", Metadata: map[string]any{"session": "s1"}}

		err := NewCallLogger(l).Execute(ctx, func(c *middleware.Context) error {
			c.Result = &tool.Result{Text: "found"}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		for _, want := range []string{"tool call started", "tool call completed", "provider=search", "tool=find", "session=s1", "result_bytes=5"} {
			if !strings.Contains(out, want) {
				t.Errorf("log output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("logs failures and returns the error", func(t *testing.T) {
		l, buf := newBufferLogger()
		boom := errors.New("boom")
		err := NewCallLogger(l).Execute(&middleware.Context{Tool: "find"}, func(*middleware.Context) error {
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected error to pass through, got %v", err)
		}
		if !strings.Contains(buf.String(), "tool call failed") {
			t.Errorf("failure not logged:\n%s", buf.String())
		}
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		if NewCallLogger(nil).logger == nil {
			t.Fatal("expected default logger")
		}
	})
}
