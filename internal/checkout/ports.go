package checkout

import (
	"context"
	"time"

	"github.com/ariefcatur/plantnet/internal/orders"
	"github.com/ariefcatur/plantnet/internal/plants"
	"github.com/ariefcatur/plantnet/internal/redisx"
)

type Listings interface {
	Get(ctx context.Context, id string) (plants.Listing, error)
	ApplyDelta(ctx context.Context, id string, delta int, by string) (int, error)
}

type Orders interface {
	Place(ctx context.Context, o *orders.Order) (int, error)
	Get(ctx context.Context, id string) (orders.Order, error)
	FindByTransaction(ctx context.Context, txnID string) (orders.Order, error)
	Cancel(ctx context.Context, id string, actor orders.Actor, side orders.CancelSide) (orders.Order, bool, error)
	SetStatus(ctx context.Context, id string, next orders.Status, actor orders.Actor) (orders.Order, bool, error)
}

// Cache is the Redis side state. Every call is best effort: Postgres stays the source of truth.
type Cache interface {
	PutIntent(ctx context.Context, snap redisx.IntentSnapshot) error
	Intent(ctx context.Context, intentID string) (redisx.IntentSnapshot, bool, error)
	RememberOrder(ctx context.Context, txnID, orderID string) error
	OrderFor(ctx context.Context, txnID string) (string, bool, error)
	CacheStatus(ctx context.Context, orderID, status string, updatedAt time.Time) error
	CachedStatus(ctx context.Context, orderID string) (redisx.StatusEntry, bool, error)
	ForgetStatus(ctx context.Context, orderID string) error
}
