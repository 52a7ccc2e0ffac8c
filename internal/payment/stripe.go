package payment

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/ariefcatur/plantnet/internal/apperr"
)

type Stripe struct {
	api *client.API
}

func NewStripe(secretKey string) *Stripe {
	return &Stripe{api: client.New(secretKey, nil)}
}

func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.AmountCents <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, classify(err, "create payment intent")
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

func (s *Stripe) Confirmation(ctx context.Context, intentID string) (Confirmation, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return Confirmation{}, classify(err, "retrieve payment intent")
	}
	return confirmationOf(pi), nil
}

// confirmationOf reads an intent with its latest charge expanded. A refunded intent keeps
// status succeeded on Stripe, so the refund is read from the charge.
func confirmationOf(pi *stripe.PaymentIntent) Confirmation {
	c := Confirmation{
		ID:          pi.ID,
		Status:      string(pi.Status),
		Succeeded:   pi.Status == stripe.PaymentIntentStatusSucceeded,
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
		Metadata:    pi.Metadata,
	}
	if ch := pi.LatestCharge; ch != nil {
		c.Refunded = ch.Refunded || ch.AmountRefunded > 0
	}
	return c
}

func (s *Stripe) Refund(ctx context.Context, intentID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	if _, err := s.api.Refunds.New(params); err != nil {
		return classify(err, "refund payment intent")
	}
	return nil
}

// classify maps processor errors: a missing intent is the caller's fault, everything else is
// an upstream failure.
func classify(err error, msg string) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound {
			return apperr.Wrap(apperr.InvalidArgument, err, ErrUnknownIntent.Error())
		}
	}
	return apperr.Wrap(apperr.UpstreamFailure, err, msg)
}
