package runtime

import (
	"fmt"

	errs "github.com/sweetpotato0/toolbridge/errors"
	"github.com/sweetpotato0/toolbridge/runtime/provider"
)

// ProviderSpec pairs a provider key with the factory that connects to it.
type ProviderSpec struct {
	Key     provider.Key
	Factory provider.Factory
}

// Validate ensures the spec is well formed before building an executor.
func (s ProviderSpec) Validate() error {
	if s.Key == "" {
		return fmt.Errorf("runtime: %w: provider key is required", errs.ErrInvalidInput)
	}
	if s.Factory == nil {
		return fmt.Errorf("runtime: %w: provider %s has no factory", errs.ErrInvalidInput, s.Key)
	}
	return nil
}

// ValidateProviders checks every spec and rejects duplicate keys.
func ValidateProviders(specs []ProviderSpec) error {
	seen := make(map[provider.Key]struct{}, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Key]; dup {
			return fmt.Errorf("runtime: provider %s: %w", s.Key, errs.ErrAlreadyExists)
		}
		seen[s.Key] = struct{}{}
	}
	return nil
}
