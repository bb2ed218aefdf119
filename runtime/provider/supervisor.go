package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	errs "github.com/sweetpotato0/toolbridge/errors"
	"github.com/sweetpotato0/toolbridge/pkg/observe"
	"github.com/sweetpotato0/toolbridge/tool"
	"golang.org/x/sync/errgroup"
)

// AcquireError aggregates per-provider failures from AcquireToolkits.
// Providers that succeeded are unaffected.
type AcquireError struct {
	Failures map[Key]error
}

func (e *AcquireError) Error() string {
	keys := make([]string, 0, len(e.Failures))
	for k := range e.Failures {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failures[Key(k)]))
	}
	return "runtime/provider: acquire toolkits: " + strings.Join(parts, "; ")
}

// Unwrap exposes every per-provider cause to errors.Is and errors.As.
func (e *AcquireError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		out = append(out, err)
	}
	return out
}

// ToolSupervisor is the execution boundary over a Cache: it knows each
// provider's factory, hands out toolkits during the loop and releases every
// connection at the end.
type ToolSupervisor struct {
	cache      *Cache
	observer   observe.Observer
	errHandler func(Key, error)
	limit      int

	mu        sync.Mutex
	factories map[Key]Factory
	order     []Key
}

// Option configures a ToolSupervisor.
type Option func(*ToolSupervisor)

// WithErrorHandler registers a callback for per-provider acquisition failures.
func WithErrorHandler(handler func(Key, error)) Option {
	return func(s *ToolSupervisor) {
		s.errHandler = handler
	}
}

// WithObserver sets the event sink shared with the underlying cache.
func WithObserver(o observe.Observer) Option {
	return func(s *ToolSupervisor) {
		s.observer = o
	}
}

// WithConnectLimit bounds how many providers are connected concurrently.
func WithConnectLimit(n int) Option {
	return func(s *ToolSupervisor) {
		s.limit = n
	}
}

// NewToolSupervisor constructs a ToolSupervisor with a fresh cache.
func NewToolSupervisor(opts ...Option) *ToolSupervisor {
	s := &ToolSupervisor{
		factories: make(map[Key]Factory),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	s.observer = observe.OrNop(s.observer)
	s.cache = NewCache(WithCacheObserver(s.observer))
	return s
}

// Register associates key with the factory that connects to it.
func (s *ToolSupervisor) Register(key Key, factory Factory) error {
	if key == "" || factory == nil {
		return fmt.Errorf("runtime/provider: %w: provider key and factory are required", errs.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.factories[key]; exists {
		return fmt.Errorf("runtime/provider: provider %s: %w", key, errs.ErrAlreadyExists)
	}
	s.factories[key] = factory
	s.order = append(s.order, key)
	return nil
}

// Keys returns the registered provider keys in registration order.
func (s *ToolSupervisor) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]Key, len(s.order))
	copy(copied, s.order)
	return copied
}

// Cache exposes the underlying lifecycle cache.
func (s *ToolSupervisor) Cache() *Cache {
	return s.cache
}

// Toolkit returns the cached toolkit for key, connecting on first use.
func (s *ToolSupervisor) Toolkit(ctx context.Context, key Key) (*tool.Toolkit, error) {
	s.mu.Lock()
	factory, ok := s.factories[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("runtime/provider: provider %s: %w", key, errs.ErrNotFound)
	}
	entry, err := s.cache.GetOrCreate(ctx, key, factory)
	if err != nil {
		return nil, err
	}
	return entry.Toolkit, nil
}

// AcquireToolkits connects to every requested provider in parallel, or to all
// registered providers when keys is empty. It returns the toolkits that were
// acquired; if any provider failed, the error is an *AcquireError and the
// other providers are still returned.
func (s *ToolSupervisor) AcquireToolkits(ctx context.Context, keys ...Key) (map[Key]*tool.Toolkit, error) {
	if len(keys) == 0 {
		keys = s.Keys()
	}

	var (
		mu       sync.Mutex
		toolkits = make(map[Key]*tool.Toolkit, len(keys))
		failures = make(map[Key]error)
		g        errgroup.Group
	)
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for _, key := range keys {
		g.Go(func() error {
			kit, err := s.Toolkit(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[key] = err
				return nil
			}
			toolkits[key] = kit
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return toolkits, nil
	}
	for key, err := range failures {
		s.handleError(key, err)
	}
	return toolkits, &AcquireError{Failures: failures}
}

// ReleaseAll closes every connection opened through this supervisor. It is
// safe to call more than once.
func (s *ToolSupervisor) ReleaseAll() []CloseOutcome {
	return s.cache.CloseAll()
}

// LateOutcomes drains close outcomes of connections that finished opening
// after ReleaseAll.
func (s *ToolSupervisor) LateOutcomes() []CloseOutcome {
	return s.cache.LateOutcomes()
}

func (s *ToolSupervisor) handleError(key Key, err error) {
	if err == nil || s.errHandler == nil {
		return
	}
	s.errHandler(key, err)
}
