package enricher

import (
	"github.com/sweetpotato0/toolbridge/middleware"
)

// EnricherFunc enriches the context
type EnricherFunc func(*middleware.Context) error

// ContextEnricher adds additional data to the middleware context
type ContextEnricher struct {
	enricher EnricherFunc
}

// NewContextEnricher creates a context enriching middleware
func NewContextEnricher(enricher EnricherFunc) *ContextEnricher {
	return &ContextEnricher{enricher: enricher}
}

// NewStaticEnricher stamps the same metadata on every call. Keys already set
// by earlier middlewares are kept.
func NewStaticEnricher(attrs map[string]any) *ContextEnricher {
	return NewContextEnricher(func(ctx *middleware.Context) error {
		for k, v := range attrs {
			if _, ok := ctx.Metadata[k]; !ok {
				ctx.Metadata[k] = v
			}
		}
		return nil
	})
}

// Name returns the middleware name
func (m *ContextEnricher) Name() string {
	return "ContextEnricher"
}

// Execute enriches the context
func (m *ContextEnricher) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if ctx.Metadata == nil {
		ctx.Metadata = make(map[string]any)
	}
	if m.enricher != nil {
		if err := m.enricher(ctx); err != nil {
			return err
		}
	}
	return next(ctx)
}
