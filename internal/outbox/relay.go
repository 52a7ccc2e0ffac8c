package outbox

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/plantnet/internal/events"
	"github.com/ariefcatur/plantnet/internal/metrics"
)

type Store interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, ids []int64) error
}

type Sender interface {
	Send(ctx context.Context, msgs ...kafkago.Message) error
}

// Relay moves committed outbox rows to Kafka. Delivery is at-least-once: a crash between
// Send and MarkSent republishes the batch, consumers dedup on event_id.
type Relay struct {
	Store    Store
	Sender   Sender
	Interval time.Duration
	Batch    int
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				r.Log.Warn("outbox_flush_failed", zap.Error(err))
				r.Metrics.OutboxFailures.Inc()
				break
			}
			if n < r.batch() {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Flush publishes one batch and returns how many records were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	recs, err := r.Store.FetchPending(ctx, r.batch())
	if err != nil || len(recs) == 0 {
		return 0, err
	}

	msgs := make([]kafkago.Message, 0, len(recs))
	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, kafkago.Message{
			Topic: rec.Topic,
			Key:   events.PartitionKey(rec.Key),
			Value: rec.Payload,
			Time:  rec.CreatedAt,
			Headers: []kafkago.Header{
				{Key: "x-event-type", Value: []byte(rec.EventType)},
				{Key: "x-event-id", Value: []byte(rec.EventID)},
				{Key: "x-event-version", Value: []byte("1")},
			},
		})
		ids = append(ids, rec.ID)
	}
	if err := r.Sender.Send(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := r.Store.MarkSent(ctx, ids); err != nil {
		return 0, err
	}
	for _, rec := range recs {
		r.Metrics.OutboxPublished.WithLabelValues(rec.Topic).Inc()
	}
	r.Log.Debug("outbox_flushed", zap.Int("count", len(recs)))
	return len(recs), nil
}

func (r *Relay) batch() int {
	if r.Batch <= 0 {
		return 100
	}
	return r.Batch
}
