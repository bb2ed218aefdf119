package store

import (
	"context"
	"fmt"
	"os"
	"strings"

	errs "github.com/sweetpotato0/toolbridge/errors"
)

// DefaultEnvPrefix is prepended to references by NewEnvStore("").
const DefaultEnvPrefix = "TOOLBRIDGE_CREDENTIAL_"

// EnvStore reads credentials from environment variables. The reference
// "search-api" maps to TOOLBRIDGE_CREDENTIAL_SEARCH_API; a reference of the
// form "env:NAME" reads NAME verbatim.
type EnvStore struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvStore creates an environment-backed store
func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvStore{prefix: prefix, lookup: os.LookupEnv}
}

// Lookup returns the value of the variable ref maps to
func (s *EnvStore) Lookup(_ context.Context, ref string) (string, error) {
	name := s.VarName(ref)
	value, ok := s.lookup(name)
	if !ok {
		return "", fmt.Errorf("credential %q ($%s): %w", ref, name, errs.ErrNotFound)
	}
	return value, nil
}

// VarName returns the environment variable consulted for ref
func (s *EnvStore) VarName(ref string) string {
	if name, ok := strings.CutPrefix(ref, "env:"); ok {
		return name
	}
	upper := strings.ToUpper(ref)
	upper = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return s.prefix + upper
}
