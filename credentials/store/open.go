package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweetpotato0/toolbridge/config"
	"github.com/sweetpotato0/toolbridge/credentials"
	errs "github.com/sweetpotato0/toolbridge/errors"
)

// Backend names a credential store implementation.
type Backend string

const (
	BackendEnv      Backend = "env"
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
)

// Open builds the store for backend, configured from the environment. Remote
// backends sit behind the environment store so a variable can override a
// stored secret. The returned close function releases backend connections.
func Open(ctx context.Context, backend Backend) (credentials.Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	env := NewEnvStore("")

	switch Backend(strings.ToLower(string(backend))) {
	case "", BackendEnv:
		return env, noop, nil
	case BackendMemory:
		return NewMemoryStore(nil), noop, nil
	case BackendRedis:
		cfg := RedisConfigFromEnv()
		if err := config.ValidateRedisConfig(cfg.Addr, cfg.DB, cfg.Prefix); err != nil {
			return nil, nil, err
		}
		rs := NewRedisStore(cfg)
		return Chain{env, rs}, func(context.Context) error { return rs.Close() }, nil
	case BackendPostgres:
		cfg := PostgresConfigFromEnv()
		if err := config.ValidatePostgresConfig(cfg.Host, cfg.Port, cfg.User, cfg.DBName, cfg.SSLMode, cfg.Table); err != nil {
			return nil, nil, err
		}
		ps, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return Chain{env, ps}, func(context.Context) error { return ps.Close() }, nil
	case BackendMongo:
		cfg := MongoConfigFromEnv()
		if err := config.ValidateMongoDBConfig(cfg.URI, cfg.Database, cfg.Collection); err != nil {
			return nil, nil, err
		}
		ms, err := NewMongoStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return Chain{env, ms}, ms.Close, nil
	default:
		return nil, nil, fmt.Errorf("credentials/store: %w: unknown backend %q", errs.ErrInvalidInput, backend)
	}
}
