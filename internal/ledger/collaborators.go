package ledger

import (
	"context"
	"time"

	"github.com/nimasrn/debt-ledger/internal/model"
)

// Store is the durable key/value state behind the ledger. Values are opaque
// JSON documents. Writes made through the context handed to fn by
// WithinTransaction become visible together or not at all.
type Store interface {
	Get(ctx context.Context, key model.Key) ([]byte, bool, error)
	Set(ctx context.Context, key model.Key, value []byte) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Authorizer confirms that a principal may perform mutations.
type Authorizer interface {
	RequireAuthorized(ctx context.Context, principal model.Principal) error
}

type AuthorizerFunc func(ctx context.Context, principal model.Principal) error

func (f AuthorizerFunc) RequireAuthorized(ctx context.Context, principal model.Principal) error {
	return f(ctx, principal)
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// EventSink receives a notification after each committed mutation.
// Delivery failures are the sink's concern and never fail the mutation.
type EventSink interface {
	Publish(ctx context.Context, topic string, event model.Event)
}

type noopSink struct{}

func (noopSink) Publish(context.Context, string, model.Event) {}

// Locker serializes mutations of a single debt. The returned func releases
// the lock and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, debtID uint64) (unlock func(), err error)
}
