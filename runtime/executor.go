package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sweetpotato0/toolbridge/middleware"
	"github.com/sweetpotato0/toolbridge/pkg/logging"
	"github.com/sweetpotato0/toolbridge/pkg/observe"
	"github.com/sweetpotato0/toolbridge/runtime/provider"
)

// Request captures the inputs required to execute a turn.
type Request struct {
	// SessionID labels the execution. A random ID is generated when empty.
	SessionID string
	// Providers limits which providers are connected up front. Empty means all.
	Providers []provider.Key
	Metadata  map[string]any
}

// TurnResult captures the outcome of a single executor run. It is returned
// even when the loop fails so that teardown results stay visible.
type TurnResult struct {
	SessionID string
	// Failed lists providers that could not be acquired when partial
	// toolkits are allowed.
	Failed        map[provider.Key]error
	CloseOutcomes []provider.CloseOutcome
	// CloseErr joins every close failure. It never replaces the loop's error.
	CloseErr error
	Duration time.Duration
}

// Loop is the orchestration logic that runs while toolkits are held.
type Loop func(ctx context.Context, s *Session) error

// Executor defines the contract for runtime executors.
type Executor interface {
	Execute(ctx context.Context, req *Request, loop Loop) (*TurnResult, error)
}

// ToolExecutor gives each execution its own lifecycle cache: toolkits are
// acquired before the loop starts and released exactly once when it ends,
// whether it returns, fails, is cancelled or panics.
type ToolExecutor struct {
	providers    []ProviderSpec
	observer     observe.Observer
	logger       *slog.Logger
	partial      bool
	connectLimit int
	chain        *middleware.MiddlewareChain
}

// ExecutorOption configures a ToolExecutor.
type ExecutorOption func(*ToolExecutor)

// WithPartialToolkits lets the loop run with the providers that connected
// when others fail.
func WithPartialToolkits() ExecutorOption {
	return func(e *ToolExecutor) {
		e.partial = true
	}
}

// WithObserver sets the lifecycle event sink.
func WithObserver(o observe.Observer) ExecutorOption {
	return func(e *ToolExecutor) {
		e.observer = o
	}
}

// WithLogger overrides the executor logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *ToolExecutor) {
		e.logger = l
	}
}

// WithConnectLimit bounds concurrent provider connections during acquisition.
func WithConnectLimit(n int) ExecutorOption {
	return func(e *ToolExecutor) {
		e.connectLimit = n
	}
}

// WithMiddleware runs every tool call of a session through the given middlewares.
func WithMiddleware(ms ...middleware.Middleware) ExecutorOption {
	return func(e *ToolExecutor) {
		if e.chain == nil {
			e.chain = middleware.NewChain()
		}
		for _, m := range ms {
			if m != nil {
				e.chain.Add(m)
			}
		}
	}
}

// NewToolExecutor constructs an executor over the given providers.
func NewToolExecutor(providers []ProviderSpec, opts ...ExecutorOption) (*ToolExecutor, error) {
	if err := ValidateProviders(providers); err != nil {
		return nil, err
	}
	e := &ToolExecutor{
		providers: append([]ProviderSpec(nil), providers...),
		logger:    logging.WithComponent("executor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.observer = observe.OrNop(e.observer)
	return e, nil
}

// Execute acquires toolkits, runs loop and releases every connection.
func (e *ToolExecutor) Execute(ctx context.Context, req *Request, loop Loop) (result *TurnResult, err error) {
	if req == nil {
		return nil, fmt.Errorf("runtime: request cannot be nil")
	}
	if loop == nil {
		return nil, fmt.Errorf("runtime: loop cannot be nil")
	}

	sup := provider.NewToolSupervisor(
		provider.WithObserver(e.observer),
		provider.WithConnectLimit(e.connectLimit),
	)
	for _, p := range e.providers {
		if err := sup.Register(p.Key, p.Factory); err != nil {
			return nil, err
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	start := time.Now()
	result = &TurnResult{SessionID: sessionID}
	e.logger.Info("executor running turn", "session_id", sessionID, "providers", len(e.providers))

	// Runs on return and while unwinding a panic.
	defer func() {
		result.CloseOutcomes = append(sup.ReleaseAll(), sup.LateOutcomes()...)
		result.CloseErr = provider.CloseError(result.CloseOutcomes)
		result.Duration = time.Since(start)
		if result.CloseErr != nil {
			e.logger.Warn("executor teardown reported close failures", "session_id", sessionID, "error", result.CloseErr)
		}
		e.logger.Info("executor turn completed", "session_id", sessionID, "duration_ms", result.Duration.Milliseconds())
	}()

	toolkits, err := sup.AcquireToolkits(ctx, req.Providers...)
	if err != nil {
		var acqErr *provider.AcquireError
		if !e.partial || !errors.As(err, &acqErr) {
			e.logger.Error("executor failed to acquire toolkits", "session_id", sessionID, "error", err)
			return result, err
		}
		result.Failed = acqErr.Failures
		e.logger.Warn("executor continuing with partial toolkits", "session_id", sessionID, "failed", len(acqErr.Failures))
	}

	session, err := newSession(sessionID, sup, e.chain, toolkits)
	if err != nil {
		return result, err
	}

	if err := loop(ctx, session); err != nil {
		e.logger.Error("executor loop failed", "session_id", sessionID, "error", err)
		return result, err
	}
	return result, nil
}
