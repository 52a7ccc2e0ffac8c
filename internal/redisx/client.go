package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// IntentSnapshot is what the customer was quoted when the payment intent was created.
type IntentSnapshot struct {
	IntentID       string `json:"intent_id"`
	PlantID        string `json:"plant_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
	CustomerEmail  string `json:"customer_email"`
}

type StatusEntry struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store holds the short-lived checkout state kept next to Postgres.
type Store struct {
	R redis.Cmdable
}

func (s *Store) PutIntent(ctx context.Context, snap IntentSnapshot) error {
	return s.putJSON(ctx, fmt.Sprintf(KeyIntent, snap.IntentID), snap, TTLIntent)
}

func (s *Store) Intent(ctx context.Context, intentID string) (IntentSnapshot, bool, error) {
	var snap IntentSnapshot
	ok, err := s.getJSON(ctx, fmt.Sprintf(KeyIntent, intentID), &snap)
	return snap, ok, err
}

// RememberOrder maps a transaction id to the order it produced.
func (s *Store) RememberOrder(ctx context.Context, txnID, orderID string) error {
	err := s.R.Set(ctx, fmt.Sprintf(KeyIdemOrder, txnID), orderID, TTLIdempotency).Err()
	return errors.Wrap(err, "redis: remember order")
}

func (s *Store) OrderFor(ctx context.Context, txnID string) (string, bool, error) {
	id, err := s.R.Get(ctx, fmt.Sprintf(KeyIdemOrder, txnID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis: order for txn")
	}
	return id, true, nil
}

func (s *Store) CacheStatus(ctx context.Context, orderID, status string, updatedAt time.Time) error {
	return s.putJSON(ctx, fmt.Sprintf(KeyOrderStatus, orderID), StatusEntry{Status: status, UpdatedAt: updatedAt}, TTLStatusCache)
}

func (s *Store) CachedStatus(ctx context.Context, orderID string) (StatusEntry, bool, error) {
	var e StatusEntry
	ok, err := s.getJSON(ctx, fmt.Sprintf(KeyOrderStatus, orderID), &e)
	return e, ok, err
}

func (s *Store) ForgetStatus(ctx context.Context, orderID string) error {
	return errors.Wrap(s.R.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err(), "redis: forget status")
}

// Claim marks eventID as taken by service. It returns false when another delivery got there
// first.
func (s *Store) Claim(ctx context.Context, service, eventID string) (bool, error) {
	ok, err := s.R.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), "1", TTLDedup).Result()
	return ok, errors.Wrap(err, "redis: claim")
}

// Release undoes Claim so a failed event can be retried.
func (s *Store) Release(ctx context.Context, service, eventID string) error {
	return errors.Wrap(s.R.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err(), "redis: release")
}

func (s *Store) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "redis: marshal %s", key)
	}
	return errors.Wrapf(s.R.Set(ctx, key, b, ttl).Err(), "redis: set %s", key)
}

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	b, err := s.R.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "redis: get %s", key)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, errors.Wrapf(err, "redis: decode %s", key)
	}
	return true, nil
}
