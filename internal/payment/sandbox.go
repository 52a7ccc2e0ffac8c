package payment

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-memory processor for local runs and tests. Intents succeed as soon as
// they are created and, like Stripe, stay succeeded after a refund.
type Sandbox struct {
	mu       sync.Mutex
	intents  map[string]Confirmation
	refunded map[string]bool
	declined bool
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		intents:  map[string]Confirmation{},
		refunded: map[string]bool{},
	}
}

// Decline makes later intents stay in requires_payment_method.
func (s *Sandbox) Decline(v bool) {
	s.mu.Lock()
	s.declined = v
	s.mu.Unlock()
}

func (s *Sandbox) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	if req.AmountCents <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	id := "pi_sandbox_" + uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()

	status := "succeeded"
	if s.declined {
		status = "requires_payment_method"
	}
	s.intents[id] = Confirmation{
		ID:          id,
		Status:      status,
		Succeeded:   !s.declined,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Metadata:    maps.Clone(req.Metadata),
	}
	return Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
	}, nil
}

func (s *Sandbox) Confirmation(_ context.Context, intentID string) (Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.intents[intentID]
	if !ok {
		return Confirmation{}, ErrUnknownIntent
	}
	c.Refunded = s.refunded[intentID]
	return c, nil
}

func (s *Sandbox) Refund(_ context.Context, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[intentID]; !ok {
		return ErrUnknownIntent
	}
	s.refunded[intentID] = true
	return nil
}

func (s *Sandbox) Refunded(intentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunded[intentID]
}
