package kafka

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Consumer struct {
	r       *kafka.Reader
	commit  committer
	workers int
	log     *zap.Logger

	// retry bounds for a failing handler; zero values use the defaults below
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, commit: r, workers: workers, log: log}
}

// Start fetches until ctx is cancelled. Every partition is served by one worker, so its
// messages are handled and committed in offset order. A failing message is retried with
// backoff until it succeeds or ctx ends; it is never skipped. Handlers must be idempotent.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(id int, in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if err := c.process(ctx, id, h, m); err != nil {
					// only ctx ends a retry loop; the offset stays uncommitted
					return
				}
			}
		}(i, jobs[i])
	}
	defer wg.Wait()
	defer func() {
		for _, ch := range jobs {
			close(ch)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs[c.workerFor(m)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process runs h until it succeeds, then commits m.
func (c *Consumer) process(ctx context.Context, worker int, h Handler, m kafka.Message) error {
	attempt := 0
	op := func() error {
		attempt++
		return h(ctx, m)
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("consumer_handle_failed",
			zap.Int("worker", worker),
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.backoff(), ctx), notify); err != nil {
		return err
	}
	if err := c.commit.CommitMessages(ctx, m); err != nil {
		// a lost commit only means redelivery, which the idempotent handler absorbs
		c.log.Warn("consumer_commit_failed", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
	}
	return nil
}

func (c *Consumer) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	if c.minBackoff > 0 {
		b.InitialInterval = c.minBackoff
	}
	if c.maxBackoff > 0 {
		b.MaxInterval = c.maxBackoff
	}
	b.MaxElapsedTime = 0 // retry until ctx ends
	b.Reset()
	return b
}

func (c *Consumer) workerFor(m kafka.Message) int {
	if c.workers <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(m.Topic))
	_, _ = h.Write([]byte(strconv.Itoa(m.Partition)))
	return int(h.Sum32() % uint32(c.workers))
}
