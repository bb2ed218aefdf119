package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/sweetpotato0/toolbridge/middleware"
	"github.com/sweetpotato0/toolbridge/middleware/limiter"
	"github.com/sweetpotato0/toolbridge/runtime/provider"
	"github.com/sweetpotato0/toolbridge/tool"
)

type countingProvider struct {
	opens    atomic.Int32
	closes   atomic.Int32
	openErr  error
	closeErr error
}

func (p *countingProvider) spec(key provider.Key) ProviderSpec {
	return ProviderSpec{Key: key, Factory: func(context.Context) (*provider.Entry, error) {
		p.opens.Add(1)
		if p.openErr != nil {
			return nil, p.openErr
		}
		kit := &tool.Toolkit{Provider: string(key), Tools: []*tool.Tool{{
			Name: "echo",
			Handler: func(_ context.Context, args map[string]any) (*tool.Result, error) {
				return &tool.Result{Text: args["q"].(string)}, nil
			},
		}}}
		return &provider.Entry{Toolkit: kit, Closer: func() error {
			p.closes.Add(1)
			return p.closeErr
		}}, nil
	}}
}

func newExecutor(t *testing.T, specs []ProviderSpec, opts ...ExecutorOption) *ToolExecutor {
	t.Helper()
	exec, err := NewToolExecutor(specs, opts...)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	return exec
}

func TestExecuteReleasesAfterLoop(t *testing.T) {
	search := &countingProvider{}
	exec := newExecutor(t, []ProviderSpec{search.spec("search")})

	result, err := exec.Execute(context.Background(), &Request{SessionID: "s1"}, func(ctx context.Context, s *Session) error {
		for i := 0; i < 3; i++ {
			res, err := s.Call(ctx, "search", "echo", map[string]any{"q": "hi"})
			if err != nil {
				return err
			}
			if res.Text != "hi" {
				t.Errorf("unexpected result %q", res.Text)
			}
		}
		if search.closes.Load() != 0 {
			t.Errorf("connection closed during the loop")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if search.opens.Load() != 1 || search.closes.Load() != 1 {
		t.Fatalf("opens=%d closes=%d", search.opens.Load(), search.closes.Load())
	}
	if result.SessionID != "s1" || len(result.CloseOutcomes) != 1 || result.CloseErr != nil {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestExecuteKeepsLoopErrorOverCloseError(t *testing.T) {
	loopErr := errors.New("loop failed")
	closeErr := errors.New("close failed")
	search := &countingProvider{closeErr: closeErr}
	exec := newExecutor(t, []ProviderSpec{search.spec("search")})

	result, err := exec.Execute(context.Background(), &Request{}, func(context.Context, *Session) error {
		return loopErr
	})
	if !errors.Is(err, loopErr) {
		t.Fatalf("expected loop error, got %v", err)
	}
	if !errors.Is(result.CloseErr, closeErr) {
		t.Fatalf("expected close error in result, got %v", result.CloseErr)
	}
}

func TestExecuteReleasesOnPanic(t *testing.T) {
	search := &countingProvider{}
	exec := newExecutor(t, []ProviderSpec{search.spec("search")})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = exec.Execute(context.Background(), &Request{}, func(context.Context, *Session) error {
			panic("loop exploded")
		})
	}()
	if search.closes.Load() != 1 {
		t.Fatalf("expected release during panic, got %d closes", search.closes.Load())
	}
}

func TestExecuteReleasesOnCancellation(t *testing.T) {
	search := &countingProvider{}
	exec := newExecutor(t, []ProviderSpec{search.spec("search")})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := exec.Execute(ctx, &Request{}, func(ctx context.Context, _ *Session) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if search.closes.Load() != 1 {
		t.Fatalf("expected release after cancellation, got %d", search.closes.Load())
	}
}

func TestExecuteAcquireFailure(t *testing.T) {
	boom := errors.New("refused")
	good, bad := &countingProvider{}, &countingProvider{openErr: boom}
	specs := []ProviderSpec{good.spec("good"), bad.spec("bad")}

	ran := false
	exec := newExecutor(t, specs)
	result, err := exec.Execute(context.Background(), &Request{}, func(context.Context, *Session) error {
		ran = true
		return nil
	})
	var acqErr *provider.AcquireError
	if !errors.As(err, &acqErr) || ran {
		t.Fatalf("expected acquisition failure before the loop, got %v (ran=%v)", err, ran)
	}
	if good.closes.Load() != 1 || len(result.CloseOutcomes) != 1 {
		t.Fatalf("connected provider must still be released")
	}

	partial := newExecutor(t, []ProviderSpec{(&countingProvider{}).spec("good"), bad.spec("bad")}, WithPartialToolkits())
	result, err = partial.Execute(context.Background(), &Request{}, func(ctx context.Context, s *Session) error {
		if _, ok := s.Toolkits()["good"]; !ok {
			t.Errorf("expected good toolkit")
		}
		_, err := s.Call(ctx, "good", "echo", map[string]any{"q": "x"})
		return err
	})
	if err != nil {
		t.Fatalf("partial execute: %v", err)
	}
	if !errors.Is(result.Failed["bad"], boom) {
		t.Fatalf("expected bad provider in Failed, got %v", result.Failed)
	}
}

func TestSessionAcquiresLazily(t *testing.T) {
	search, docs := &countingProvider{}, &countingProvider{}
	exec := newExecutor(t, []ProviderSpec{search.spec("search"), docs.spec("docs")})

	_, err := exec.Execute(context.Background(), &Request{Providers: []provider.Key{"search"}}, func(ctx context.Context, s *Session) error {
		if docs.opens.Load() != 0 {
			t.Errorf("docs connected before use")
		}
		if _, err := s.Call(ctx, "docs", "echo", map[string]any{"q": "x"}); err != nil {
			return err
		}
		if _, err := s.Registry().Get("docs.echo"); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if docs.opens.Load() != 1 || docs.closes.Load() != 1 {
		t.Fatalf("docs opens=%d closes=%d", docs.opens.Load(), docs.closes.Load())
	}
}

func TestExecuteRejectsNilInputs(t *testing.T) {
	exec := newExecutor(t, nil)
	if _, err := exec.Execute(context.Background(), nil, func(context.Context, *Session) error { return nil }); err == nil {
		t.Fatalf("expected error for nil request")
	}
	if _, err := exec.Execute(context.Background(), &Request{}, nil); err == nil {
		t.Fatalf("expected error for nil loop")
	}
}

func TestExecuteGeneratesSessionID(t *testing.T) {
	exec := newExecutor(t, nil)
	var seen string
	result, err := exec.Execute(context.Background(), &Request{}, func(_ context.Context, s *Session) error {
		seen = s.ID
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if seen == "" || result.SessionID != seen {
		t.Fatalf("expected generated session id, loop saw %q, result %q", seen, result.SessionID)
	}
}

func TestExecuteRunsCallsThroughMiddleware(t *testing.T) {
	search := &countingProvider{}
	exec := newExecutor(t, []ProviderSpec{search.spec("search")}, WithMiddleware(limiter.NewRateLimiter(1)))

	_, err := exec.Execute(context.Background(), &Request{}, func(ctx context.Context, s *Session) error {
		if _, err := s.Call(ctx, "search", "echo", map[string]any{"q": "first"}); err != nil {
			return err
		}
		_, err := s.Call(ctx, "search", "echo", map[string]any{"q": "second"})
		if !errors.Is(err, middleware.ErrRateLimitExceeded) {
			t.Errorf("expected the second call to be limited, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
}
