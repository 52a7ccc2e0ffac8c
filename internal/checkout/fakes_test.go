package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/plantnet/internal/apperr"
	"github.com/ariefcatur/plantnet/internal/orders"
	"github.com/ariefcatur/plantnet/internal/payment"
	"github.com/ariefcatur/plantnet/internal/plants"
	"github.com/ariefcatur/plantnet/internal/redisx"
)

// memDB mimics the transactional repos: every mutation happens under one lock.
type memDB struct {
	mu       sync.Mutex
	listings map[string]plants.Listing
	orders   map[string]orders.Order
}

func newMemDB() *memDB {
	return &memDB{listings: map[string]plants.Listing{}, orders: map[string]orders.Order{}}
}

func (m *memDB) addListing(l plants.Listing) plants.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	m.listings[l.ID] = l
	return l
}

func (m *memDB) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings[id].Quantity
}

func (m *memDB) setPrice(id string, cents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.listings[id]
	l.PriceCents = cents
	m.listings[id] = l
}

func (m *memDB) deleteListing(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listings, id)
}

func (m *memDB) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memDB) applyLocked(id string, delta int) (int, error) {
	l, ok := m.listings[id]
	if !ok {
		return 0, plants.ErrNotFound
	}
	next, err := plants.Apply(l.Quantity, delta)
	if err != nil {
		return 0, err
	}
	l.Quantity = next
	m.listings[id] = l
	return next, nil
}

type memListings struct{ db *memDB }

func (f memListings) Get(_ context.Context, id string) (plants.Listing, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	l, ok := f.db.listings[id]
	if !ok {
		return plants.Listing{}, plants.ErrNotFound
	}
	return l, nil
}

func (f memListings) ApplyDelta(_ context.Context, id string, delta int, _ string) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.applyLocked(id, delta)
}

type memOrders struct{ db *memDB }

func (f memOrders) Place(_ context.Context, o *orders.Order) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, prev := range f.db.orders {
		if prev.TransactionID == o.TransactionID {
			return 0, orders.ErrAlreadyExists
		}
	}
	remaining, err := f.db.applyLocked(o.PlantID, -o.Quantity)
	if err != nil {
		return 0, err
	}
	o.ID = uuid.NewString()
	o.Status = orders.StatusPending
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	f.db.orders[o.ID] = *o
	return remaining, nil
}

func (f memOrders) Get(_ context.Context, id string) (orders.Order, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (f memOrders) FindByTransaction(_ context.Context, txnID string) (orders.Order, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, o := range f.db.orders {
		if o.TransactionID == txnID {
			return o, nil
		}
	}
	return orders.Order{}, orders.ErrNotFound
}

func (f memOrders) Cancel(_ context.Context, id string, actor orders.Actor, side orders.CancelSide) (orders.Order, bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.orders[id]
	if !ok {
		return orders.Order{}, false, orders.ErrNotFound
	}
	if err := orders.CheckCancel(o, actor, side); err != nil {
		return orders.Order{}, false, err
	}
	delete(f.db.orders, id)
	_, err := f.db.applyLocked(o.PlantID, o.Quantity)
	if err != nil && err != plants.ErrNotFound {
		return orders.Order{}, false, err
	}
	return o, err == nil, nil
}

func (f memOrders) SetStatus(_ context.Context, id string, next orders.Status, actor orders.Actor) (orders.Order, bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.orders[id]
	if !ok {
		return orders.Order{}, false, orders.ErrNotFound
	}
	changed, err := orders.Guard(o, next, actor)
	if err != nil || !changed {
		return o, false, err
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	f.db.orders[id] = o
	return o, true, nil
}

// flakyListings fails reads with err, like a dropped pool connection.
type flakyListings struct {
	memListings
	err error
}

func (f flakyListings) Get(context.Context, string) (plants.Listing, error) {
	return plants.Listing{}, f.err
}

// brokenGateway fails every confirmation like an unreachable processor.
type brokenGateway struct{ payment.Gateway }

func (brokenGateway) Confirmation(context.Context, string) (payment.Confirmation, error) {
	return payment.Confirmation{}, apperr.Wrap(apperr.UpstreamFailure, context.DeadlineExceeded, "retrieve payment intent")
}

type harness struct {
	svc *Service
	db  *memDB
	pay *payment.Sandbox
	mr  *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := newMemDB()
	pay := payment.NewSandbox()
	svc := New(memListings{db}, memOrders{db}, pay, &redisx.Store{R: rdb}, "usd", nil, nil)
	return &harness{svc: svc, db: db, pay: pay, mr: mr}
}
