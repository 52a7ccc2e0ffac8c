// Package journal keeps the stock movement history by consuming plant.stock.adjusted.
package journal

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/plantnet/internal/events"
	kafkax "github.com/ariefcatur/plantnet/internal/kafka"
	"github.com/ariefcatur/plantnet/internal/metrics"
)

type Store interface {
	Record(ctx context.Context, mv Movement) error
}

type Dedup interface {
	Claim(ctx context.Context, service, eventID string) (bool, error)
	Release(ctx context.Context, service, eventID string) error
}

type Service struct {
	Store       Store
	Dedup       Dedup
	ServiceName string
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

// HandleStockAdjusted is the consumer handler. It returns an error only when the event should
// be retried; the consumer holds the partition until it succeeds.
func (s *Service) HandleStockAdjusted(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn("journal_bad_envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		s.count("unknown", "invalid")
		return nil
	}
	if env.EventType != events.EventStockAdjusted {
		s.count(env.EventType, "ignored")
		return nil
	}

	// 2) dedup via Redis (event_id); the insert below is idempotent on its own
	claimed, err := s.Dedup.Claim(ctx, s.ServiceName, env.EventID)
	if err != nil {
		s.Log.Warn("journal_dedup_unavailable", zap.String("event_id", env.EventID), zap.Error(err))
		claimed = true
	}
	if !claimed {
		s.count(env.EventType, "duplicate")
		return nil
	}

	// 3) decode payload
	p, err := kafkax.UnwrapPayload[events.StockAdjustedPayload](env.Payload)
	if err != nil {
		s.Log.Warn("journal_bad_payload", zap.String("event_id", env.EventID), zap.Error(err))
		s.count(env.EventType, "invalid")
		return nil
	}

	// 4) record
	err = s.Store.Record(ctx, Movement{
		EventID:    env.EventID,
		PlantID:    p.PlantID,
		Delta:      p.Delta,
		Quantity:   p.Quantity,
		Reason:     p.Reason,
		OrderID:    p.OrderID,
		Actor:      p.By,
		OccurredAt: env.OccurredAt,
	})
	if err != nil {
		if rerr := s.Dedup.Release(ctx, s.ServiceName, env.EventID); rerr != nil {
			s.Log.Warn("journal_release_failed", zap.String("event_id", env.EventID), zap.Error(rerr))
		}
		s.count(env.EventType, "error")
		return err
	}
	s.count(env.EventType, "recorded")
	s.Log.Debug("stock_movement_recorded",
		zap.String("plant_id", p.PlantID), zap.Int("delta", p.Delta), zap.Int("quantity", p.Quantity))
	return nil
}

func (s *Service) count(event, outcome string) {
	if s.Metrics != nil {
		s.Metrics.JournalEvents.WithLabelValues(event, outcome).Inc()
	}
}
