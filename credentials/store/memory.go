package store

import (
	"context"
	"fmt"
	"sync"

	errs "github.com/sweetpotato0/toolbridge/errors"
)

// MemoryStore keeps credentials in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore creates a store seeded with secrets
func NewMemoryStore(secrets map[string]string) *MemoryStore {
	s := &MemoryStore{secrets: make(map[string]string, len(secrets))}
	for k, v := range secrets {
		s.secrets[k] = v
	}
	return s
}

// Put stores or replaces a secret
func (s *MemoryStore) Put(ref, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = secret
}

// Lookup returns the secret stored under ref
func (s *MemoryStore) Lookup(_ context.Context, ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[ref]
	if !ok {
		return "", fmt.Errorf("credential %q: %w", ref, errs.ErrNotFound)
	}
	return secret, nil
}
