// Package checkout runs the purchase workflow: quote and payment intent, order placement
// against stock, cancellation, fulfilment status and manual stock changes.
package checkout

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/plantnet/internal/apperr"
	"github.com/ariefcatur/plantnet/internal/logging"
	"github.com/ariefcatur/plantnet/internal/metrics"
	"github.com/ariefcatur/plantnet/internal/orders"
	"github.com/ariefcatur/plantnet/internal/payment"
	"github.com/ariefcatur/plantnet/internal/plants"
	"github.com/ariefcatur/plantnet/internal/redisx"
	"github.com/ariefcatur/plantnet/internal/users"
)

const (
	useCaseAuthorize = "checkout.authorize"
	useCaseFinalize  = "checkout.finalize"
	useCaseCancel    = "order.cancel"
	useCaseStatus    = "order.set_status"
	useCaseAdjust    = "stock.adjust"
	spanPrefix       = "UC."
)

var (
	ErrQuantity            = apperr.New(apperr.InvalidArgument, "quantity must be greater than zero")
	ErrTransactionRequired = apperr.New(apperr.InvalidArgument, "transaction id is required")
	ErrAddressRequired     = apperr.New(apperr.InvalidArgument, "address is required")
	ErrPlantRequired       = apperr.New(apperr.InvalidArgument, "plant id is required")
	ErrPaymentNotSucceeded = apperr.New(apperr.InvalidArgument, "payment has not succeeded")
	ErrPaymentMismatch     = apperr.New(apperr.Conflict, "payment does not match this order")
	ErrAmountMismatch      = apperr.New(apperr.Conflict, "charged amount does not match the current price")
	ErrPaymentRefunded     = apperr.New(apperr.Conflict, "payment was refunded")
	ErrTransactionUsed     = apperr.New(apperr.Conflict, "transaction already used by another customer")
	ErrNotListingOwner     = apperr.New(apperr.Forbidden, "only the listing owner or an admin may change stock")
)

type Service struct {
	Listings Listings
	Orders   Orders
	Payments payment.Gateway
	Cache    Cache
	Currency string
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
}

func New(l Listings, o Orders, p payment.Gateway, c Cache, currency string, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		Listings: l, Orders: o, Payments: p, Cache: c,
		Currency: currency,
		Log:      log.With(zap.String("component", "checkout")),
		Metrics:  m,
		Tracer:   otel.Tracer("plantnet.checkout"),
	}
}

type AuthorizeInput struct {
	PlantID  string
	Quantity int
	Customer orders.Customer
}

type Quote struct {
	IntentID       string
	ClientSecret   string
	UnitPriceCents int64
	TotalCents     int64
}

// Authorize prices the purchase and opens a payment intent for it. Stock is not touched.
func (s *Service) Authorize(ctx context.Context, in AuthorizeInput) (_ Quote, err error) {
	ctx, uc := s.begin(ctx, useCaseAuthorize,
		attribute.String("plant.id", in.PlantID), attribute.Int("order.quantity", in.Quantity))
	defer func() { uc.end(err) }()

	if in.Quantity <= 0 {
		return Quote{}, ErrQuantity
	}
	l, err := s.Listings.Get(ctx, in.PlantID)
	if err != nil {
		return Quote{}, err
	}
	if in.Quantity > l.Quantity {
		return Quote{}, plants.ErrInsufficientStock
	}

	total := l.PriceCents * int64(in.Quantity)
	intent, err := s.Payments.CreateIntent(ctx, payment.IntentRequest{
		AmountCents: total,
		Currency:    s.Currency,
		Metadata: map[string]string{
			payment.MetaPlantID:  l.ID,
			payment.MetaQuantity: strconv.Itoa(in.Quantity),
			payment.MetaCustomer: in.Customer.Email,
		},
	})
	if err != nil {
		return Quote{}, err
	}

	if err := s.Cache.PutIntent(ctx, redisx.IntentSnapshot{
		IntentID:       intent.ID,
		PlantID:        l.ID,
		Quantity:       in.Quantity,
		UnitPriceCents: l.PriceCents,
		TotalCents:     total,
		CustomerEmail:  in.Customer.Email,
	}); err != nil {
		uc.log.Warn("intent_snapshot_failed", zap.String("intent_id", intent.ID), zap.Error(err))
	}

	return Quote{
		IntentID:       intent.ID,
		ClientSecret:   intent.ClientSecret,
		UnitPriceCents: l.PriceCents,
		TotalCents:     total,
	}, nil
}

type FinalizeInput struct {
	TransactionID string
	PlantID       string
	Quantity      int
	Address       string
	Customer      orders.Customer
}

// Finalize turns a succeeded payment into an order. The order insert and the stock decrement
// commit together; when stock runs out after the charge the payment is refunded.
// replay is true when the transaction already produced an order, which is returned as is.
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (_ orders.Order, replay bool, err error) {
	ctx, uc := s.begin(ctx, useCaseFinalize,
		attribute.String("plant.id", in.PlantID), attribute.String("payment.intent_id", in.TransactionID))
	defer func() { uc.end(err) }()

	if err := validateDraft(in); err != nil {
		return orders.Order{}, false, err
	}

	if o, ok, err := s.existing(ctx, in); err != nil || ok {
		if ok {
			uc.status = "IDEMPOTENT_REPLAY"
		}
		return o, ok, err
	}

	conf, err := s.Payments.Confirmation(ctx, in.TransactionID)
	if err != nil {
		return orders.Order{}, false, err
	}
	if !conf.Succeeded {
		return orders.Order{}, false, ErrPaymentNotSucceeded
	}
	if conf.Refunded {
		return orders.Order{}, false, ErrPaymentRefunded
	}
	if err := s.matchesIntent(ctx, in, conf); err != nil {
		return orders.Order{}, false, err
	}

	l, err := s.Listings.Get(ctx, in.PlantID)
	if errors.Is(err, plants.ErrNotFound) {
		return orders.Order{}, false, s.refund(ctx, uc, in.TransactionID, err)
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	if in.Quantity > l.Quantity {
		return orders.Order{}, false, s.refund(ctx, uc, in.TransactionID, plants.ErrInsufficientStock)
	}
	total := l.PriceCents * int64(in.Quantity)
	if conf.AmountCents != total {
		return orders.Order{}, false, s.refund(ctx, uc, in.TransactionID, ErrAmountMismatch)
	}

	o := orders.Order{
		PlantID:        l.ID,
		Customer:       in.Customer,
		SellerEmail:    l.Seller.Email,
		Quantity:       in.Quantity,
		UnitPriceCents: l.PriceCents,
		PriceCents:     total,
		Address:        in.Address,
		TransactionID:  in.TransactionID,
	}
	remaining, err := s.Orders.Place(ctx, &o)
	switch {
	case err == nil:
	case errors.Is(err, orders.ErrAlreadyExists):
		// a concurrent finalize of the same transaction won
		prev, ferr := s.Orders.FindByTransaction(ctx, in.TransactionID)
		if ferr != nil {
			return orders.Order{}, false, ferr
		}
		uc.status = "IDEMPOTENT_REPLAY"
		return prev, true, nil
	case errors.Is(err, plants.ErrInsufficientStock), errors.Is(err, plants.ErrNotFound):
		return orders.Order{}, false, s.refund(ctx, uc, in.TransactionID, err)
	default:
		return orders.Order{}, false, err
	}

	uc.log.Info("order_placed",
		zap.String("order_id", o.ID), zap.Int("remaining", remaining), zap.Int64("price_cents", o.PriceCents))
	if err := s.Cache.RememberOrder(ctx, o.TransactionID, o.ID); err != nil {
		uc.log.Warn("idempotency_key_failed", zap.Error(err))
	}
	s.cacheStatus(ctx, uc, o)
	return o, false, nil
}

// existing finds an order already produced by the transaction, Redis first.
func (s *Service) existing(ctx context.Context, in FinalizeInput) (orders.Order, bool, error) {
	var (
		o   orders.Order
		err error
	)
	if id, ok, cerr := s.Cache.OrderFor(ctx, in.TransactionID); cerr == nil && ok {
		o, err = s.Orders.Get(ctx, id)
	} else {
		o, err = s.Orders.FindByTransaction(ctx, in.TransactionID)
	}
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	if o.Customer.Email != in.Customer.Email {
		return orders.Order{}, false, ErrTransactionUsed
	}
	return o, true, nil
}

// matchesIntent checks the draft against what the intent was created for.
func (s *Service) matchesIntent(ctx context.Context, in FinalizeInput, conf payment.Confirmation) error {
	if pid := conf.Metadata[payment.MetaPlantID]; pid != "" && pid != in.PlantID {
		return ErrPaymentMismatch
	}
	if q := conf.Quantity(); q != 0 && q != in.Quantity {
		return ErrPaymentMismatch
	}
	if email := conf.Metadata[payment.MetaCustomer]; email != "" && email != in.Customer.Email {
		return ErrPaymentMismatch
	}
	snap, ok, err := s.Cache.Intent(ctx, in.TransactionID)
	if err != nil || !ok {
		return nil
	}
	if snap.PlantID != in.PlantID || snap.Quantity != in.Quantity || snap.CustomerEmail != in.Customer.Email {
		return ErrPaymentMismatch
	}
	return nil
}

// refund gives the money back after a rejection that followed a successful charge. cause is
// returned either way.
func (s *Service) refund(ctx context.Context, uc *useCase, intentID string, cause error) error {
	if err := s.Payments.Refund(ctx, intentID); err != nil {
		uc.log.Error("refund_failed", zap.String("intent_id", intentID), zap.NamedError("cause", cause), zap.Error(err))
		return cause
	}
	uc.status = "REFUNDED"
	uc.span.AddEvent("payment.refunded", trace.WithAttributes(attribute.String("payment.intent_id", intentID)))
	return cause
}

type CancelResult struct {
	Order     orders.Order
	Restocked bool
}

// Cancel deletes the order and returns its quantity to the listing.
func (s *Service) Cancel(ctx context.Context, orderID string, actor orders.Actor, side orders.CancelSide) (_ CancelResult, err error) {
	ctx, uc := s.begin(ctx, useCaseCancel, attribute.String("order.id", orderID))
	defer func() { uc.end(err) }()

	o, restocked, err := s.Orders.Cancel(ctx, orderID, actor, side)
	if err != nil {
		return CancelResult{}, err
	}
	if !restocked {
		uc.log.Warn("cancel_without_restock", zap.String("order_id", o.ID), zap.String("plant_id", o.PlantID))
	}
	if err := s.Cache.ForgetStatus(ctx, o.ID); err != nil {
		uc.log.Warn("status_cache_evict_failed", zap.Error(err))
	}
	return CancelResult{Order: o, Restocked: restocked}, nil
}

// SetStatus moves an order forward in its fulfilment. changed is false for a same-status no-op.
func (s *Service) SetStatus(ctx context.Context, orderID, status string, actor orders.Actor) (_ orders.Order, changed bool, err error) {
	ctx, uc := s.begin(ctx, useCaseStatus, attribute.String("order.id", orderID), attribute.String("order.next_status", status))
	defer func() { uc.end(err) }()

	next, err := orders.ParseStatus(status)
	if err != nil {
		return orders.Order{}, false, err
	}
	o, changed, err := s.Orders.SetStatus(ctx, orderID, next, actor)
	if err != nil {
		return orders.Order{}, false, err
	}
	if changed {
		s.cacheStatus(ctx, uc, o)
	} else {
		uc.status = "NOOP"
	}
	return o, changed, nil
}

// Status serves the order status from cache, falling back to Postgres.
func (s *Service) Status(ctx context.Context, orderID string) (redisx.StatusEntry, error) {
	if e, ok, err := s.Cache.CachedStatus(ctx, orderID); err == nil && ok {
		return e, nil
	}
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return redisx.StatusEntry{}, err
	}
	_ = s.Cache.CacheStatus(ctx, o.ID, string(o.Status), o.UpdatedAt)
	return redisx.StatusEntry{Status: string(o.Status), UpdatedAt: o.UpdatedAt}, nil
}

// AdjustStock applies a signed delta for the listing owner or an admin.
func (s *Service) AdjustStock(ctx context.Context, plantID string, delta int, actor orders.Actor) (_ int, err error) {
	ctx, uc := s.begin(ctx, useCaseAdjust, attribute.String("plant.id", plantID), attribute.Int("stock.delta", delta))
	defer func() { uc.end(err) }()

	if delta == 0 {
		return 0, plants.ErrZeroDelta
	}
	l, err := s.Listings.Get(ctx, plantID)
	if err != nil {
		return 0, err
	}
	if actor.Role != users.RoleAdmin && (actor.Role != users.RoleSeller || l.Seller.Email != actor.Email) {
		return 0, ErrNotListingOwner
	}
	return s.Listings.ApplyDelta(ctx, plantID, delta, actor.Email)
}

func (s *Service) cacheStatus(ctx context.Context, uc *useCase, o orders.Order) {
	if err := s.Cache.CacheStatus(ctx, o.ID, string(o.Status), o.UpdatedAt); err != nil {
		uc.log.Warn("status_cache_failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func validateDraft(in FinalizeInput) error {
	switch {
	case strings.TrimSpace(in.TransactionID) == "":
		return ErrTransactionRequired
	case in.PlantID == "":
		return ErrPlantRequired
	case in.Quantity <= 0:
		return ErrQuantity
	case strings.TrimSpace(in.Address) == "":
		return ErrAddressRequired
	}
	return nil
}

// useCase records one invocation: span, outcome counter, latency and a use_case_done line.
type useCase struct {
	name   string
	start  time.Time
	span   trace.Span
	log    *zap.Logger
	m      *metrics.Metrics
	status string
}

func (s *Service) begin(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *useCase) {
	ctx, span := s.Tracer.Start(ctx, spanPrefix+name,
		trace.WithAttributes(append(attrs, attribute.String("use_case", name))...))
	log := logging.FromOr(ctx, s.Log)
	return ctx, &useCase{
		name:   name,
		start:  time.Now(),
		span:   span,
		log:    log.With(zap.String("use_case", name)),
		m:      s.Metrics,
		status: "OK",
	}
}

func (u *useCase) end(err error) {
	lat := time.Since(u.start).Seconds()
	outcome := "success"
	if err != nil {
		outcome = "error"
		u.status = strings.ToUpper(apperr.KindOf(err).String())
		u.span.RecordError(err)
		u.span.SetStatus(codes.Error, u.status)
	} else {
		u.span.SetStatus(codes.Ok, u.status)
	}
	u.span.End()

	u.m.UseCases.WithLabelValues(u.name, outcome).Inc()
	u.m.UseCaseDuration.WithLabelValues(u.name).Observe(lat)

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.String("status", u.status),
		zap.Float64("latency_seconds", lat),
	}
	if sc := u.span.SpanContext(); sc.IsValid() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()), zap.String("span_id", sc.SpanID().String()))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	u.log.Info("use_case_done", fields...)
}
