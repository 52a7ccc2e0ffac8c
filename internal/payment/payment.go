// Package payment talks to the card processor. Checkout only sees the Gateway interface.
package payment

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/ariefcatur/plantnet/internal/apperr"
	"github.com/ariefcatur/plantnet/internal/config"
)

// Metadata keys attached to every intent.
const (
	MetaPlantID  = "plant_id"
	MetaQuantity = "quantity"
	MetaCustomer = "customer_email"
)

var (
	ErrUnknownIntent = apperr.New(apperr.InvalidArgument, "unknown payment intent")
	ErrInvalidAmount = apperr.New(apperr.InvalidArgument, "payment amount must be positive")
)

type IntentRequest struct {
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
}

// Confirmation is the processor's view of an intent at finalize time.
type Confirmation struct {
	ID          string
	Status      string
	Succeeded   bool
	Refunded    bool // any part of the charge was given back
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// Quantity reads the quantity recorded on the intent, or 0.
func (c Confirmation) Quantity() int {
	n, _ := strconv.Atoi(c.Metadata[MetaQuantity])
	return n
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Confirmation(ctx context.Context, intentID string) (Confirmation, error)
	Refund(ctx context.Context, intentID string) error
}

// New builds the gateway selected by PAYMENT_PROVIDER.
func New(cfg config.Config) (Gateway, error) {
	switch cfg.PaymentProvider {
	case "stripe":
		return NewStripe(cfg.StripeSecretKey), nil
	case "sandbox", "":
		return NewSandbox(), nil
	}
	return nil, errors.Errorf("payment: unknown provider %q", cfg.PaymentProvider)
}
