// Package credentials turns a provider's auth settings into request headers.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	errs "github.com/sweetpotato0/toolbridge/errors"
	"github.com/sweetpotato0/toolbridge/pkg/observe"
)

// AuthMode selects how a credential is presented to the provider.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthHeader AuthMode = "header"
	AuthBearer AuthMode = "bearer"
)

// DefaultHeaderName is used by AuthHeader when no header name is configured.
const DefaultHeaderName = "X-API-Key"

// ParseAuthMode accepts the canonical names plus the headerAuth/bearerAuth
// spellings. An empty string means AuthNone.
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AuthNone, nil
	case "header", "headerauth", "api_key", "apikey":
		return AuthHeader, nil
	case "bearer", "bearerauth", "token":
		return AuthBearer, nil
	default:
		return "", fmt.Errorf("credentials: %w: unknown auth mode %q", errs.ErrInvalidInput, s)
	}
}

// UnmarshalText lets config decoders accept every spelling ParseAuthMode does.
func (m *AuthMode) UnmarshalText(text []byte) error {
	mode, err := ParseAuthMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Auth describes how to authenticate against one provider.
type Auth struct {
	Mode          AuthMode `yaml:"mode" json:"mode"`
	HeaderName    string   `yaml:"header_name,omitempty" json:"header_name,omitempty"`
	CredentialRef string   `yaml:"credential_ref,omitempty" json:"credential_ref,omitempty"`
}

// Store looks up a secret by reference. Lookup returns an error wrapping
// errors.ErrNotFound when the reference is unknown.
type Store interface {
	Lookup(ctx context.Context, ref string) (string, error)
}

// Resolver builds auth headers from a Store.
type Resolver struct {
	store    Store
	observer observe.Observer
}

// NewResolver returns a resolver backed by store. A nil store resolves nothing.
func NewResolver(store Store, observer observe.Observer) *Resolver {
	return &Resolver{store: store, observer: observe.OrNop(observer)}
}

// Headers returns the headers to send to provider, or nil. A credential that
// cannot be resolved yields nil headers and a CredentialMissing event; the
// remote side decides whether the unauthenticated connection is acceptable.
func (r *Resolver) Headers(ctx context.Context, provider string, auth Auth) map[string]string {
	if r == nil || auth.Mode == "" || auth.Mode == AuthNone {
		return nil
	}

	secret, err := r.lookup(ctx, auth.CredentialRef)
	if err != nil || secret == "" {
		if err == nil {
			err = fmt.Errorf("credential %q is empty", auth.CredentialRef)
		}
		r.observer.Observe(ctx, observe.Event{
			Kind:     observe.CredentialMissing,
			Provider: provider,
			Err:      err,
			Attrs:    map[string]any{"mode": string(auth.Mode)},
		})
		return nil
	}

	switch auth.Mode {
	case AuthBearer:
		return map[string]string{"Authorization": "Bearer " + secret}
	case AuthHeader:
		name := auth.HeaderName
		if name == "" {
			name = DefaultHeaderName
		}
		return map[string]string{name: secret}
	default:
		r.observer.Observe(ctx, observe.Event{
			Kind:     observe.CredentialMissing,
			Provider: provider,
			Err:      fmt.Errorf("unknown auth mode %q", auth.Mode),
		})
		return nil
	}
}

func (r *Resolver) lookup(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", errors.New("no credential reference configured")
	}
	if r.store == nil {
		return "", fmt.Errorf("credential %q: %w", ref, errs.ErrNotFound)
	}
	return r.store.Lookup(ctx, ref)
}
