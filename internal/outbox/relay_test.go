package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/plantnet/internal/events"
	"github.com/ariefcatur/plantnet/internal/metrics"
)

type memStore struct {
	mu   sync.Mutex
	recs []Record
	sent map[int64]bool
}

func (s *memStore) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *memStore) FetchPending(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.recs {
		if !s.sent[r.ID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.sent[id] = true
	}
	return nil
}

type memSender struct {
	msgs []kafkago.Message
	err  error
}

func (s *memSender) Send(_ context.Context, msgs ...kafkago.Message) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func newRelay(store *memStore, sender *memSender) *Relay {
	return &Relay{Store: store, Sender: sender, Batch: 2, Interval: time.Millisecond, Log: zap.NewNop(), Metrics: metrics.Nop()}
}

func seed(n int) *memStore {
	s := &memStore{sent: map[int64]bool{}}
	for i := 1; i <= n; i++ {
		s.recs = append(s.recs, Record{
			ID: int64(i), EventID: "ev", Topic: events.TopicStockAdjusted, Key: "plant-1",
			EventType: events.EventStockAdjusted, Payload: []byte(`{}`), CreatedAt: time.Now(),
		})
	}
	return s
}

func TestFlushPublishesAndMarks(t *testing.T) {
	store, sender := seed(3), &memSender{}
	relay := newRelay(store, sender)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, sender.msgs, 3)
	assert.Equal(t, events.TopicStockAdjusted, sender.msgs[0].Topic)
	assert.Equal(t, []byte("plant-1"), sender.msgs[0].Key)
	assert.Equal(t, 3, store.sentCount())
}

func TestFlushKeepsRecordsOnSendFailure(t *testing.T) {
	store, sender := seed(1), &memSender{err: errors.New("broker down")}
	relay := newRelay(store, sender)

	_, err := relay.Flush(context.Background())
	assert.Error(t, err)
	assert.Zero(t, store.sentCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	store, sender := seed(5), &memSender{}
	relay := newRelay(store, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return store.sentCount() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
