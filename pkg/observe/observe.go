// Package observe carries structured lifecycle events from the connection,
// catalogue, invocation and teardown paths to an injected sink.
package observe

import (
	"context"
	"time"
)

// Kind names a lifecycle event.
type Kind string

const (
	ConnectStarted    Kind = "connect.started"
	Connected         Kind = "connect.succeeded"
	ConnectFailed     Kind = "connect.failed"
	CatalogListed     Kind = "catalog.listed"
	SchemaRejected    Kind = "schema.rejected"
	EntryReady        Kind = "entry.ready"
	FactoryFailed     Kind = "entry.factory_failed"
	ToolInvoked       Kind = "tool.invoked"
	ToolFailed        Kind = "tool.failed"
	EntryClosed       Kind = "entry.closed"
	CloseFailed       Kind = "entry.close_failed"
	CredentialMissing Kind = "credential.missing"
	SessionEnded      Kind = "session.ended"
)

// Event is one structured lifecycle event.
type Event struct {
	Kind     Kind
	Provider string
	Tool     string
	Count    int
	Duration time.Duration
	Err      error
	Attrs    map[string]any
}

// Observer receives lifecycle events. Implementations must be safe for
// concurrent use and must not block for long.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f(ctx, ev).
func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

type nop struct{}

func (nop) Observe(context.Context, Event) {}

// Nop returns an Observer that discards every event.
func Nop() Observer {
	return nop{}
}

// OrNop returns o, or a no-op observer when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return nop{}
	}
	return o
}

// Multi fans events out to every non-nil observer in order.
func Multi(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(ctx context.Context, ev Event) {
		for _, o := range list {
			o.Observe(ctx, ev)
		}
	})
}
