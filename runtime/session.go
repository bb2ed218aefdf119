package runtime

import (
	"context"
	"sort"
	"sync"

	"github.com/sweetpotato0/toolbridge/middleware"
	"github.com/sweetpotato0/toolbridge/runtime/provider"
	"github.com/sweetpotato0/toolbridge/tool"
)

// Session is the loop's view of one execution. Toolkits come from the
// execution's cache; the loop never closes them. When the executor has
// middleware, every tool the session hands out runs through it.
type Session struct {
	ID string

	sup   *provider.ToolSupervisor
	chain *middleware.MiddlewareChain

	mu       sync.RWMutex
	toolkits map[provider.Key]*tool.Toolkit
	registry *tool.Registry
}

func newSession(id string, sup *provider.ToolSupervisor, chain *middleware.MiddlewareChain, toolkits map[provider.Key]*tool.Toolkit) (*Session, error) {
	s := &Session{
		ID:       id,
		sup:      sup,
		chain:    chain,
		toolkits: make(map[provider.Key]*tool.Toolkit, len(toolkits)),
		registry: tool.NewRegistry(),
	}
	for _, key := range sortedKeys(toolkits) {
		if err := s.add(key, toolkits[key]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) add(key provider.Key, kit *tool.Toolkit) error {
	kit = s.chain.WrapToolkit(kit)
	s.toolkits[key] = kit
	return kit.Register(s.registry, string(key))
}

// Toolkit returns the toolkit for key, connecting lazily if it was not
// acquired up front.
func (s *Session) Toolkit(ctx context.Context, key provider.Key) (*tool.Toolkit, error) {
	s.mu.RLock()
	kit, ok := s.toolkits[key]
	s.mu.RUnlock()
	if ok {
		return kit, nil
	}

	kit, err := s.sup.Toolkit(ctx, key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.toolkits[key]; ok {
		return existing, nil
	}
	if err := s.add(key, kit); err != nil {
		return nil, err
	}
	return s.toolkits[key], nil
}

// Toolkits returns a snapshot of the toolkits held so far.
func (s *Session) Toolkits() map[provider.Key]*tool.Toolkit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[provider.Key]*tool.Toolkit, len(s.toolkits))
	for k, v := range s.toolkits {
		out[k] = v
	}
	return out
}

// Registry holds every acquired tool as "<provider>.<tool>".
func (s *Session) Registry() *tool.Registry {
	return s.registry
}

// Tool resolves one tool of a provider.
func (s *Session) Tool(ctx context.Context, key provider.Key, name string) (*tool.Tool, error) {
	if _, err := s.Toolkit(ctx, key); err != nil {
		return nil, err
	}
	return s.registry.Get(string(key) + "." + name)
}

// Call validates args and invokes a provider's tool.
func (s *Session) Call(ctx context.Context, key provider.Key, name string, args map[string]any) (*tool.Result, error) {
	t, err := s.Tool(ctx, key, name)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, args)
}

func sortedKeys(m map[provider.Key]*tool.Toolkit) []provider.Key {
	keys := make([]provider.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
