package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sweetpotato0/toolbridge/config"
	"github.com/sweetpotato0/toolbridge/credentials"
	"github.com/sweetpotato0/toolbridge/credentials/store"
	mcpclient "github.com/sweetpotato0/toolbridge/mcp"
	"github.com/sweetpotato0/toolbridge/middleware"
	"github.com/sweetpotato0/toolbridge/middleware/enricher"
	"github.com/sweetpotato0/toolbridge/middleware/errorhandler"
	"github.com/sweetpotato0/toolbridge/middleware/limiter"
	"github.com/sweetpotato0/toolbridge/middleware/logger"
	"github.com/sweetpotato0/toolbridge/middleware/validator"
	"github.com/sweetpotato0/toolbridge/pkg/logging"
	"github.com/sweetpotato0/toolbridge/pkg/observe"
	"github.com/sweetpotato0/toolbridge/pkg/telemetry"
	"github.com/sweetpotato0/toolbridge/runtime"
	"github.com/sweetpotato0/toolbridge/runtime/provider"
	toolmcp "github.com/sweetpotato0/toolbridge/tool/mcp"
)

// app holds everything a subcommand needs for one process run.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	executor *runtime.ToolExecutor
	closers  []func(context.Context) error
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	rootLogger := logging.New(cfg.Log.Format, level)
	logging.SetLogger(rootLogger)

	a := &app{cfg: cfg, logger: rootLogger}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		Disable:        !cfg.Telemetry.Enabled,
		Logger:         logging.WithComponent("telemetry"),
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	credStore, closeStore, err := store.Open(ctx, store.Backend(cfg.Credentials.Backend))
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	obs := observe.Multi(
		observe.NewLogObserver(logging.WithComponent("lifecycle")),
		observe.NewTraceObserver(),
	)
	resolver := credentials.NewResolver(credStore, obs)

	specs := make([]runtime.ProviderSpec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		key := provider.Key(p.Key)
		specs = append(specs, runtime.ProviderSpec{
			Key: key,
			Factory: toolmcp.NewFactory(toolmcp.FactoryConfig{
				Key:           key,
				Address:       p.Address,
				Auth:          p.Auth,
				Resolver:      resolver,
				ClientName:    cfg.Client.Name,
				ClientVersion: cfg.Client.Version,
				Builder: toolmcp.Builder{
					CallTimeout: cfg.Client.CallTimeout,
					Selection:   p.Tools,
				},
				RequireTools: p.RequireTools,
				Observer:     obs,
				Options: []mcpclient.Option{
					mcpclient.WithLogger(logging.WithComponent("mcp")),
					mcpclient.WithKeepAlive(cfg.Client.KeepAlive),
				},
			}),
		})
	}

	execOpts := []runtime.ExecutorOption{
		runtime.WithObserver(obs),
		runtime.WithLogger(logging.WithComponent("executor")),
		runtime.WithConnectLimit(cfg.Execution.ConnectLimit),
		runtime.WithMiddleware(callMiddleware(cfg)...),
	}
	if cfg.Execution.PartialToolkits {
		execOpts = append(execOpts, runtime.WithPartialToolkits())
	}
	a.executor, err = runtime.NewToolExecutor(specs, execOpts...)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func callMiddleware(cfg *config.Config) []middleware.Middleware {
	ms := []middleware.Middleware{
		errorhandler.NewRecoverer(),
		enricher.NewStaticEnricher(map[string]any{"client": cfg.Client.Name}),
		logger.NewCallLogger(logging.WithComponent("calls")),
	}
	if len(cfg.Execution.DenyTools) > 0 {
		ms = append(ms, validator.NewToolFilter(cfg.Execution.DenyTools...))
	}
	if cfg.Execution.MaxCalls > 0 {
		ms = append(ms, limiter.NewRateLimiter(cfg.Execution.MaxCalls))
	}
	return ms
}

// Close releases the credential store and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// run executes loop inside one execution and reports teardown failures.
func (a *app) run(ctx context.Context, req *runtime.Request, loop runtime.Loop) error {
	result, err := a.executor.Execute(ctx, req, loop)
	if result != nil {
		for key, ferr := range result.Failed {
			a.logger.Warn("provider unavailable", "provider", key, "error", ferr)
		}
		if result.CloseErr != nil {
			a.logger.Warn("provider close failed", "error", result.CloseErr)
		}
	}
	return err
}
