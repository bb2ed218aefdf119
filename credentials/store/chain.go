package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweetpotato0/toolbridge/credentials"
	errs "github.com/sweetpotato0/toolbridge/errors"
)

// Chain tries each store in order and returns the first secret found.
// Errors other than not-found stop the search.
type Chain []credentials.Store

// Lookup implements credentials.Store
func (c Chain) Lookup(ctx context.Context, ref string) (string, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		secret, err := s.Lookup(ctx, ref)
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("credential %q: %w", ref, errs.ErrNotFound)
}
