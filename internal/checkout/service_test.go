package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/plantnet/internal/apperr"
	"github.com/ariefcatur/plantnet/internal/orders"
	"github.com/ariefcatur/plantnet/internal/plants"
	"github.com/ariefcatur/plantnet/internal/users"
)

var (
	seller   = orders.Actor{Email: "seller@plants.io", Role: users.RoleSeller}
	buyer    = orders.Actor{Email: "buyer@plants.io", Role: users.RoleCustomer}
	admin    = orders.Actor{Email: "admin@plants.io", Role: users.RoleAdmin}
	customer = orders.Customer{Name: "Buyer", Email: buyer.Email}
)

func (h *harness) fern(qty int) plants.Listing {
	return h.db.addListing(plants.Listing{
		Name:       "Boston fern",
		PriceCents: 1000,
		Quantity:   qty,
		Seller:     plants.Seller{Name: "Seller", Email: seller.Email},
	})
}

func (h *harness) buy(t *testing.T, plantID string, qty int, who orders.Customer) (orders.Order, error) {
	t.Helper()
	q, err := h.svc.Authorize(context.Background(), AuthorizeInput{PlantID: plantID, Quantity: qty, Customer: who})
	require.NoError(t, err)
	o, _, err := h.svc.Finalize(context.Background(), FinalizeInput{
		TransactionID: q.IntentID, PlantID: plantID, Quantity: qty, Address: "12 Leaf St", Customer: who,
	})
	return o, err
}

func TestCheckoutScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: customer})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), q.UnitPriceCents)
	assert.Equal(t, int64(3000), q.TotalCents)
	assert.NotEmpty(t, q.ClientSecret)
	assert.Equal(t, 5, h.db.stock(l.ID), "authorize must not touch stock")

	o, replay, err := h.svc.Finalize(ctx, FinalizeInput{
		TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "12 Leaf St", Customer: customer,
	})
	require.NoError(t, err)
	assert.False(t, replay)
	assert.Equal(t, int64(3000), o.PriceCents)
	assert.Equal(t, int64(1000), o.UnitPriceCents)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, seller.Email, o.SellerEmail)
	assert.Equal(t, 2, h.db.stock(l.ID))

	st, err := h.svc.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, string(orders.StatusPending), st.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.svc.Metrics.UseCases.WithLabelValues(useCaseFinalize, "success")))
}

func TestAuthorizeRejects(t *testing.T) {
	h := newHarness(t)
	l := h.fern(5)

	tests := []struct {
		name string
		in   AuthorizeInput
		kind apperr.Kind
	}{
		{"zero quantity", AuthorizeInput{PlantID: l.ID, Quantity: 0}, apperr.InvalidArgument},
		{"more than stock", AuthorizeInput{PlantID: l.ID, Quantity: 6}, apperr.Conflict},
		{"unknown listing", AuthorizeInput{PlantID: "missing", Quantity: 1}, apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Authorize(context.Background(), tt.in)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
	assert.Equal(t, 5, h.db.stock(l.ID))
}

func TestFinalizeReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: customer})
	require.NoError(t, err)
	in := FinalizeInput{TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "12 Leaf St", Customer: customer}

	first, _, err := h.svc.Finalize(ctx, in)
	require.NoError(t, err)

	again, replay, err := h.svc.Finalize(ctx, in)
	require.NoError(t, err)
	assert.True(t, replay)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 2, h.db.stock(l.ID))
	assert.Equal(t, 1, h.db.orderCount())

	// without the Redis key the database lookup still finds it
	h.mr.FlushAll()
	again, replay, err = h.svc.Finalize(ctx, in)
	require.NoError(t, err)
	assert.True(t, replay)
	assert.Equal(t, first.ID, again.ID)

	in.Customer = orders.Customer{Email: "thief@plants.io"}
	_, _, err = h.svc.Finalize(ctx, in)
	assert.ErrorIs(t, err, ErrTransactionUsed)
}

func TestFinalizeValidation(t *testing.T) {
	h := newHarness(t)
	l := h.fern(5)
	base := FinalizeInput{TransactionID: "pi_1", PlantID: l.ID, Quantity: 1, Address: "12 Leaf St", Customer: customer}

	tests := []struct {
		name   string
		mutate func(*FinalizeInput)
		err    error
	}{
		{"no transaction", func(in *FinalizeInput) { in.TransactionID = " " }, ErrTransactionRequired},
		{"no plant", func(in *FinalizeInput) { in.PlantID = "" }, ErrPlantRequired},
		{"zero quantity", func(in *FinalizeInput) { in.Quantity = 0 }, ErrQuantity},
		{"no address", func(in *FinalizeInput) { in.Address = "" }, ErrAddressRequired},
		{"unknown intent", func(*FinalizeInput) {}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, _, err := h.svc.Finalize(context.Background(), in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
			assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
		})
	}
	assert.Equal(t, 0, h.db.orderCount())
}

func TestFinalizePaymentNotSucceeded(t *testing.T) {
	h := newHarness(t)
	l := h.fern(5)
	h.pay.Decline(true)

	_, err := h.buy(t, l.ID, 3, customer)
	assert.ErrorIs(t, err, ErrPaymentNotSucceeded)
	assert.Equal(t, 5, h.db.stock(l.ID))
	assert.Equal(t, 0, h.db.orderCount())
}

func TestFinalizeUpstreamFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 1, Customer: customer})
	require.NoError(t, err)

	h.svc.Payments = brokenGateway{h.pay}
	_, _, err = h.svc.Finalize(ctx, FinalizeInput{
		TransactionID: q.IntentID, PlantID: l.ID, Quantity: 1, Address: "12 Leaf St", Customer: customer,
	})
	assert.Equal(t, apperr.UpstreamFailure, apperr.KindOf(err))
	assert.Equal(t, 502, apperr.HTTPStatus(apperr.KindOf(err)))
	assert.Equal(t, 5, h.db.stock(l.ID))
}

func TestFinalizeDraftMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)
	other := h.fern(5)

	q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: customer})
	require.NoError(t, err)

	_, _, err = h.svc.Finalize(ctx, FinalizeInput{
		TransactionID: q.IntentID, PlantID: l.ID, Quantity: 1, Address: "x", Customer: customer,
	})
	assert.ErrorIs(t, err, ErrPaymentMismatch)

	_, _, err = h.svc.Finalize(ctx, FinalizeInput{
		TransactionID: q.IntentID, PlantID: other.ID, Quantity: 3, Address: "x", Customer: customer,
	})
	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.False(t, h.pay.Refunded(q.IntentID))

	// the genuine draft still goes through
	_, _, err = h.svc.Finalize(ctx, FinalizeInput{
		TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "x", Customer: customer,
	})
	assert.NoError(t, err)
}

func TestFinalizeAmountMismatchRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: customer})
	require.NoError(t, err)
	h.db.setPrice(l.ID, 1200)

	_, _, err = h.svc.Finalize(ctx, FinalizeInput{
		TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "x", Customer: customer,
	})
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.True(t, h.pay.Refunded(q.IntentID))
	assert.Equal(t, 5, h.db.stock(l.ID))
}

func TestFinalizeRefundsWhenStockRanOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: customer})
	require.NoError(t, err)
	_, err = h.svc.AdjustStock(ctx, l.ID, -4, seller)
	require.NoError(t, err)

	_, _, err = h.svc.Finalize(ctx, FinalizeInput{
		TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "x", Customer: customer,
	})
	assert.ErrorIs(t, err, plants.ErrInsufficientStock)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.True(t, h.pay.Refunded(q.IntentID))
	assert.Equal(t, 1, h.db.stock(l.ID))
	assert.Equal(t, 0, h.db.orderCount())
}

func TestFinalizeChecksPayerWithoutSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: customer})
	require.NoError(t, err)
	h.mr.FlushAll()

	_, _, err = h.svc.Finalize(ctx, FinalizeInput{
		TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "9 Other Rd",
		Customer: orders.Customer{Email: "intruder@plants.io"},
	})
	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.Equal(t, 0, h.db.orderCount())
	assert.Equal(t, 5, h.db.stock(l.ID))
	assert.False(t, h.pay.Refunded(q.IntentID))

	o, _, err := h.svc.Finalize(ctx, FinalizeInput{
		TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "12 Leaf St", Customer: customer,
	})
	require.NoError(t, err)
	assert.Equal(t, customer.Email, o.Customer.Email)
}

func TestFinalizeRejectsRefundedPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: customer})
	require.NoError(t, err)
	_, err = h.svc.AdjustStock(ctx, l.ID, -4, seller)
	require.NoError(t, err)

	in := FinalizeInput{TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "x", Customer: customer}
	_, _, err = h.svc.Finalize(ctx, in)
	require.ErrorIs(t, err, plants.ErrInsufficientStock)
	require.True(t, h.pay.Refunded(q.IntentID))

	// stock comes back, but the money already went back too
	_, err = h.svc.AdjustStock(ctx, l.ID, 4, seller)
	require.NoError(t, err)
	_, _, err = h.svc.Finalize(ctx, in)
	assert.ErrorIs(t, err, ErrPaymentRefunded)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Equal(t, 0, h.db.orderCount())
	assert.Equal(t, 5, h.db.stock(l.ID))
}

func TestFinalizeListingLookup(t *testing.T) {
	t.Run("transient failure keeps the charge", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		l := h.fern(5)

		q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: customer})
		require.NoError(t, err)

		connReset := errors.New("conn reset")
		h.svc.Listings = flakyListings{memListings: memListings{h.db}, err: connReset}
		_, _, err = h.svc.Finalize(ctx, FinalizeInput{
			TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "x", Customer: customer,
		})
		assert.ErrorIs(t, err, connReset)
		assert.False(t, h.pay.Refunded(q.IntentID))

		// the client retries once the database is back
		h.svc.Listings = memListings{h.db}
		_, _, err = h.svc.Finalize(ctx, FinalizeInput{
			TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "x", Customer: customer,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, h.db.stock(l.ID))
	})

	t.Run("deleted listing refunds", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		l := h.fern(5)

		q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: customer})
		require.NoError(t, err)
		h.db.deleteListing(l.ID)

		_, _, err = h.svc.Finalize(ctx, FinalizeInput{
			TransactionID: q.IntentID, PlantID: l.ID, Quantity: 3, Address: "x", Customer: customer,
		})
		assert.ErrorIs(t, err, plants.ErrNotFound)
		assert.True(t, h.pay.Refunded(q.IntentID))
	})
}

func TestConcurrentFinalizeSellsStockOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	buyers := []orders.Customer{{Email: "a@plants.io"}, {Email: "b@plants.io"}}
	quotes := make([]Quote, len(buyers))
	for i, c := range buyers {
		q, err := h.svc.Authorize(ctx, AuthorizeInput{PlantID: l.ID, Quantity: 3, Customer: c})
		require.NoError(t, err)
		quotes[i] = q
	}

	errs := make([]error, len(buyers))
	var wg sync.WaitGroup
	for i := range buyers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = h.svc.Finalize(ctx, FinalizeInput{
				TransactionID: quotes[i].IntentID, PlantID: l.ID, Quantity: 3, Address: "x", Customer: buyers[i],
			})
		}(i)
	}
	wg.Wait()

	var ok, conflict, refunded int
	for i, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.KindOf(err) == apperr.Conflict:
			conflict++
		}
		if h.pay.Refunded(quotes[i].IntentID) {
			refunded++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflict)
	assert.Equal(t, 1, refunded)
	assert.Equal(t, 2, h.db.stock(l.ID))
	assert.Equal(t, 1, h.db.orderCount())
}

func TestCancelRestoresStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	o, err := h.buy(t, l.ID, 3, customer)
	require.NoError(t, err)
	require.Equal(t, 2, h.db.stock(l.ID))

	res, err := h.svc.Cancel(ctx, o.ID, buyer, orders.CustomerSide)
	require.NoError(t, err)
	assert.True(t, res.Restocked)
	assert.Equal(t, 5, h.db.stock(l.ID))

	_, err = h.svc.Cancel(ctx, o.ID, buyer, orders.CustomerSide)
	assert.ErrorIs(t, err, orders.ErrNotFound)
	assert.Equal(t, 5, h.db.stock(l.ID), "double cancel must not credit twice")

	_, err = h.svc.Status(ctx, o.ID)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestCancelBySeller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)
	o, err := h.buy(t, l.ID, 2, customer)
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, o.ID, buyer, orders.SellerSide)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	_, err = h.svc.Cancel(ctx, o.ID, orders.Actor{Email: "other@plants.io", Role: users.RoleSeller}, orders.SellerSide)
	assert.ErrorIs(t, err, orders.ErrNotOrderSeller)

	_, err = h.svc.Cancel(ctx, o.ID, seller, orders.SellerSide)
	require.NoError(t, err)
	assert.Equal(t, 5, h.db.stock(l.ID))
}

func TestCancelAfterListingDeleted(t *testing.T) {
	h := newHarness(t)
	l := h.fern(5)
	o, err := h.buy(t, l.ID, 2, customer)
	require.NoError(t, err)
	h.db.deleteListing(l.ID)

	res, err := h.svc.Cancel(context.Background(), o.ID, buyer, orders.CustomerSide)
	require.NoError(t, err)
	assert.False(t, res.Restocked)
	assert.Equal(t, 0, h.db.orderCount())
}

func TestStatusLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)
	o, err := h.buy(t, l.ID, 1, customer)
	require.NoError(t, err)

	_, _, err = h.svc.SetStatus(ctx, o.ID, "InProgress", buyer)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	_, _, err = h.svc.SetStatus(ctx, o.ID, "Delivered", seller)
	assert.ErrorIs(t, err, orders.ErrIllegalTransition)

	got, changed, err := h.svc.SetStatus(ctx, o.ID, "InProgress", seller)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, orders.StatusInProgress, got.Status)

	_, changed, err = h.svc.SetStatus(ctx, o.ID, "InProgress", seller)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = h.svc.SetStatus(ctx, o.ID, "Pending", seller)
	assert.ErrorIs(t, err, orders.ErrIllegalTransition)

	st, err := h.svc.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "InProgress", st.Status)

	_, _, err = h.svc.SetStatus(ctx, o.ID, "Delivered", seller)
	require.NoError(t, err)

	for _, next := range []string{"Delivered", "InProgress", "Cancelled"} {
		_, _, err = h.svc.SetStatus(ctx, o.ID, next, seller)
		assert.ErrorIs(t, err, orders.ErrDeliveredLocked, next)
	}
	_, err = h.svc.Cancel(ctx, o.ID, buyer, orders.CustomerSide)
	assert.ErrorIs(t, err, orders.ErrDeliveredNoCancel)
	assert.Equal(t, 4, h.db.stock(l.ID))

	_, _, err = h.svc.SetStatus(ctx, o.ID, "Lost", seller)
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
}

func TestAdjustStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fern(5)

	qty, err := h.svc.AdjustStock(ctx, l.ID, 2, seller)
	require.NoError(t, err)
	assert.Equal(t, 7, qty)

	qty, err = h.svc.AdjustStock(ctx, l.ID, -7, admin)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	_, err = h.svc.AdjustStock(ctx, l.ID, -1, seller)
	assert.ErrorIs(t, err, plants.ErrInsufficientStock)

	_, err = h.svc.AdjustStock(ctx, l.ID, 0, seller)
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))

	_, err = h.svc.AdjustStock(ctx, l.ID, 1, orders.Actor{Email: "other@plants.io", Role: users.RoleSeller})
	assert.ErrorIs(t, err, ErrNotListingOwner)

	_, err = h.svc.AdjustStock(ctx, l.ID, 1, buyer)
	assert.ErrorIs(t, err, ErrNotListingOwner)
	assert.Equal(t, 0, h.db.stock(l.ID))
}
