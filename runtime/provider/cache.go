package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	errs "github.com/sweetpotato0/toolbridge/errors"
	"github.com/sweetpotato0/toolbridge/pkg/observe"
	"github.com/sweetpotato0/toolbridge/tool"
	"golang.org/x/sync/singleflight"
)

// ErrCacheClosed is returned by GetOrCreate once CloseAll has run.
var ErrCacheClosed = fmt.Errorf("runtime/provider: cache %w", errs.ErrClosed)

// Key identifies a tool provider within one execution.
type Key string

// State is the lifecycle state of one key.
type State int

const (
	StateAbsent State = iota
	StatePopulating
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePopulating:
		return "populating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "absent"
	}
}

// Entry is the toolkit built from one connection together with the function
// that releases that connection.
type Entry struct {
	Toolkit *tool.Toolkit
	Closer  func() error
}

// Factory opens a connection and builds its toolkit.
type Factory func(ctx context.Context) (*Entry, error)

// CloseOutcome reports the result of closing one entry.
type CloseOutcome struct {
	Key Key
	Err error
}

// CloseError joins the failures in outcomes, or returns nil if every close succeeded.
func CloseError(outcomes []CloseOutcome) error {
	var failures []error
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, fmt.Errorf("close %s: %w", o.Key, o.Err))
		}
	}
	return errors.Join(failures...)
}

// Cache holds at most one entry per key for the lifetime of one execution.
// Entries are created lazily, never replaced, and closed together by CloseAll.
type Cache struct {
	group    singleflight.Group
	observer observe.Observer

	mu         sync.Mutex
	entries    map[Key]*Entry
	order      []Key
	populating map[Key]struct{}
	closedKeys map[Key]struct{}
	closed     bool
	late       []CloseOutcome
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheObserver sets the sink for entry lifecycle events.
func WithCacheObserver(o observe.Observer) CacheOption {
	return func(c *Cache) {
		c.observer = o
	}
}

// NewCache returns an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:    make(map[Key]*Entry),
		populating: make(map[Key]struct{}),
		closedKeys: make(map[Key]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.observer = observe.OrNop(c.observer)
	return c
}

// State reports the current lifecycle state of key.
func (c *Cache) State(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.hasKey(c.closedKeys, key):
		return StateClosed
	case c.entries[key] != nil:
		return StateReady
	case c.hasKey(c.populating, key):
		return StatePopulating
	default:
		return StateAbsent
	}
}

func (c *Cache) hasKey(m map[Key]struct{}, key Key) bool {
	_, ok := m[key]
	return ok
}

// GetOrCreate returns the entry for key, calling factory if none exists.
// Concurrent callers for the same key share a single factory call, which runs
// under the first caller's ctx. A caller whose ctx ends while waiting returns
// ctx.Err(); the shared call keeps running and still caches its entry. A failed
// call leaves the key absent so a later call may retry. The lock is never
// held while factory runs.
func (c *Cache) GetOrCreate(ctx context.Context, key Key, factory Factory) (*Entry, error) {
	if factory == nil {
		return nil, fmt.Errorf("runtime/provider: %w: nil factory for %s", errs.ErrInvalidInput, key)
	}
	if entry, err := c.lookup(key); entry != nil || err != nil {
		return entry, err
	}

	ch := c.group.DoChan(string(key), func() (any, error) {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrCacheClosed
		}
		// A previous flight may have finished between lookup and Do.
		if entry := c.entries[key]; entry != nil {
			c.mu.Unlock()
			return entry, nil
		}
		c.populating[key] = struct{}{}
		c.mu.Unlock()

		return c.populate(ctx, key, factory)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) lookup(key Key) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCacheClosed
	}
	return c.entries[key], nil
}

func (c *Cache) populate(ctx context.Context, key Key, factory Factory) (*Entry, error) {
	start := time.Now()
	entry, err := callFactory(ctx, key, factory)

	c.mu.Lock()
	delete(c.populating, key)
	if err != nil {
		c.mu.Unlock()
		c.observer.Observe(ctx, observe.Event{Kind: observe.FactoryFailed, Provider: string(key), Err: err, Duration: time.Since(start)})
		return nil, err
	}
	if c.closed {
		c.closedKeys[key] = struct{}{}
		c.mu.Unlock()
		closeErr := c.closeEntry(context.WithoutCancel(ctx), key, entry)
		c.mu.Lock()
		c.late = append(c.late, CloseOutcome{Key: key, Err: closeErr})
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	c.entries[key] = entry
	c.order = append(c.order, key)
	c.mu.Unlock()

	c.observer.Observe(ctx, observe.Event{Kind: observe.EntryReady, Provider: string(key), Count: entry.Toolkit.Len(), Duration: time.Since(start)})
	return entry, nil
}

func callFactory(ctx context.Context, key Key, factory Factory) (entry *Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entry, err = nil, fmt.Errorf("runtime/provider: factory for %s panicked: %v", key, r)
		}
	}()
	entry, err = factory(ctx)
	if err == nil && entry == nil {
		err = fmt.Errorf("runtime/provider: factory for %s returned no entry", key)
	}
	return entry, err
}

// CloseAll closes every ready entry exactly once, in creation order. Each
// closer runs even if an earlier one fails or panics. Later calls return nil.
// Keys still populating are closed by their own flight once it completes;
// those outcomes are reported by LateOutcomes.
func (c *Cache) CloseAll() []CloseOutcome {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	keys := c.order
	entries := make([]*Entry, len(keys))
	for i, key := range keys {
		entries[i] = c.entries[key]
		c.closedKeys[key] = struct{}{}
	}
	c.order = nil
	c.mu.Unlock()

	ctx := context.Background()
	outcomes := make([]CloseOutcome, 0, len(keys))
	for i, key := range keys {
		outcomes = append(outcomes, CloseOutcome{Key: key, Err: c.closeEntry(ctx, key, entries[i])})
	}
	return outcomes
}

// LateOutcomes returns and clears the outcomes of entries that finished
// populating after CloseAll and were closed by their own flight.
func (c *Cache) LateOutcomes() []CloseOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	late := c.late
	c.late = nil
	return late
}

func (c *Cache) closeEntry(ctx context.Context, key Key, entry *Entry) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("closer panicked: %v", r)
		}
		if err != nil {
			c.observer.Observe(ctx, observe.Event{Kind: observe.CloseFailed, Provider: string(key), Err: err, Duration: time.Since(start)})
			return
		}
		c.observer.Observe(ctx, observe.Event{Kind: observe.EntryClosed, Provider: string(key), Duration: time.Since(start)})
	}()
	if entry == nil || entry.Closer == nil {
		return nil
	}
	return entry.Closer()
}
