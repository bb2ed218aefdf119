package enricher

import (
	"errors"
	"testing"

	"github.com/sweetpotato0/toolbridge/middleware"
)

func TestContextEnricher(t *testing.T) {
	t.Run("enriches context with metadata", func(t *testing.T) {
		enricher := NewContextEnricher(func(ctx *middleware.Context) error {
			ctx.Metadata["key"] = "value"
			return nil
		})

		ctx := &middleware.Context{Metadata: map[string]any{}}
		err := enricher.Execute(ctx, func(c *middleware.Context) error { return nil })

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if ctx.Metadata["key"] != "value" {
			t.Error("metadata not enriched")
		}
	})

	t.Run("returns error if enricher fails", func(t *testing.T) {
		enricher := NewContextEnricher(func(ctx *middleware.Context) error {
			return errors.New("enrichment failed")
		})

		ctx := &middleware.Context{Metadata: map[string]any{}}
		err := enricher.Execute(ctx, func(c *middleware.Context) error { return nil })

		if err == nil {
			t.Error("expected error from enricher")
		}
	})

	t.Run("handles nil enricher function", func(t *testing.T) {
		enricher := NewContextEnricher(nil)

		ctx := &middleware.Context{Metadata: map[string]any{}}
		err := enricher.Execute(ctx, func(c *middleware.Context) error { return nil })

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestStaticEnricherKeepsExistingKeys(t *testing.T) {
	enricher := NewStaticEnricher(map[string]any{"client": "toolbridge", "session": "static"})

	ctx := &middleware.Context{}
	ctx.Metadata = map[string]any{"session": "s1"}
	if err := enricher.Execute(ctx, func(*middleware.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Metadata["client"] != "toolbridge" || ctx.Metadata["session"] != "s1" {
		t.Fatalf("unexpected metadata %v", ctx.Metadata)
	}

	bare := &middleware.Context{}
	if err := enricher.Execute(bare, func(*middleware.Context) error { return nil }); err != nil || bare.Metadata["client"] != "toolbridge" {
		t.Fatalf("expected metadata on a bare context, got %v (err %v)", bare.Metadata, err)
	}
}
