package mcp

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/toolbridge/credentials"
	mcpclient "github.com/sweetpotato0/toolbridge/mcp"
	"github.com/sweetpotato0/toolbridge/pkg/observe"
	"github.com/sweetpotato0/toolbridge/runtime/provider"
	"github.com/sweetpotato0/toolbridge/tool"
)

// BuildError is returned when a provider connected but offers no usable tools
// and the configuration requires at least one.
type BuildError struct {
	Provider string
	Rejected []tool.Rejection
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("mcp: provider %s exposes no usable tools (%d rejected)", e.Provider, len(e.Rejected))
}

// FactoryConfig describes how to reach one provider.
type FactoryConfig struct {
	Key           provider.Key
	Address       string
	Auth          credentials.Auth
	Resolver      *credentials.Resolver
	ClientName    string
	ClientVersion int
	Builder       Builder
	// RequireTools turns an empty toolkit into a *BuildError.
	RequireTools bool
	Observer     observe.Observer
	Options      []mcpclient.Option
}

// NewFactory returns a lifecycle-cache factory that resolves auth headers,
// opens the connection and builds its toolkit. The connection is closed
// again if the build fails; on success the entry's closer owns it.
func NewFactory(cfg FactoryConfig) provider.Factory {
	obs := observe.OrNop(cfg.Observer)
	return func(ctx context.Context) (*provider.Entry, error) {
		name := string(cfg.Key)
		headers := cfg.Resolver.Headers(ctx, name, cfg.Auth)

		opts := append([]mcpclient.Option{
			mcpclient.WithProviderName(name),
			mcpclient.WithObserver(obs),
		}, cfg.Options...)
		client, err := mcpclient.Open(ctx, cfg.Address, headers, cfg.ClientName, cfg.ClientVersion, opts...)
		if err != nil {
			return nil, err
		}

		builder := cfg.Builder
		builder.Provider = name
		if builder.Observer == nil {
			builder.Observer = obs
		}
		kit, err := builder.Build(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("mcp: provider %s: %w", name, err)
		}
		if cfg.RequireTools && kit.Len() == 0 {
			_ = client.Close()
			return nil, &BuildError{Provider: name, Rejected: kit.Rejected}
		}
		return &provider.Entry{Toolkit: kit, Closer: client.Close}, nil
	}
}
