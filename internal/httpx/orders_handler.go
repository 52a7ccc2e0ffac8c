package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/plantnet/internal/apperr"
	"github.com/ariefcatur/plantnet/internal/checkout"
	"github.com/ariefcatur/plantnet/internal/orders"
	"github.com/ariefcatur/plantnet/internal/plants"
	"github.com/ariefcatur/plantnet/internal/redisx"
	"github.com/ariefcatur/plantnet/internal/users"
)

var errNoOrders = apperr.New(apperr.NotFound, "no orders found")

type Checkout interface {
	Authorize(ctx context.Context, in checkout.AuthorizeInput) (checkout.Quote, error)
	Finalize(ctx context.Context, in checkout.FinalizeInput) (orders.Order, bool, error)
	Cancel(ctx context.Context, orderID string, actor orders.Actor, side orders.CancelSide) (checkout.CancelResult, error)
	SetStatus(ctx context.Context, orderID, status string, actor orders.Actor) (orders.Order, bool, error)
	Status(ctx context.Context, orderID string) (redisx.StatusEntry, error)
}

type OrderViews interface {
	ListForCustomer(ctx context.Context, email string) ([]orders.View, error)
	ListForSeller(ctx context.Context, email string) ([]orders.View, error)
}

type OrdersHandler struct {
	Checkout Checkout
	Orders   OrderViews
	Users    UserStore
}

func (h *OrdersHandler) Register(r chi.Router, g Gate) {
	r.With(g.Member()...).Post("/create-payment-intent", h.createPaymentIntent)
	r.With(g.Member()...).Post("/order", h.placeOrder)
	r.With(g.Authed()...).Get("/orders/{id}/status", h.status)
	r.With(g.Authed()...).Delete("/orders/{id}", h.cancelByCustomer)
	r.With(g.Role(users.RoleSeller)...).Patch("/orders/{id}", h.setStatus)
	r.With(g.Role(users.RoleSeller)...).Delete("/sellerOrder/{id}", h.cancelBySeller)
	r.With(g.Member()...).Get("/customer-orders/{email}", h.customerOrders)
	r.With(g.Role(users.RoleSeller)...).Get("/manageOrders/{email}", h.sellerOrders)
}

type paymentIntentReq struct {
	PlantID  string `json:"plantId"`
	Quantity int    `json:"quantity"`
}

type paymentIntentResp struct {
	ClientSecret    string          `json:"clientSecret"`
	PaymentIntentID string          `json:"paymentIntentId"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
}

func (h *OrdersHandler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req paymentIntentReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q, err := h.Checkout.Authorize(ctx, checkout.AuthorizeInput{
		PlantID: req.PlantID, Quantity: req.Quantity, Customer: h.customer(ctx, r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentIntentResp{
		ClientSecret:    q.ClientSecret,
		PaymentIntentID: q.IntentID,
		UnitPrice:       plants.FromCents(q.UnitPriceCents),
		TotalPrice:      plants.FromCents(q.TotalCents),
	})
}

type placeOrderReq struct {
	PlantID       string `json:"plantId"`
	Quantity      int    `json:"quantity"`
	Address       string `json:"address"`
	TransactionID string `json:"transactionId"`
}

// placeOrder answers 201 for a new order and 200 when the transaction was already used.
func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, replay, err := h.Checkout.Finalize(ctx, checkout.FinalizeInput{
		TransactionID: req.TransactionID,
		PlantID:       req.PlantID,
		Quantity:      req.Quantity,
		Address:       req.Address,
		Customer:      h.customer(ctx, r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if replay {
		code = http.StatusOK
	}
	writeJSON(w, code, toOrderView(o))
}

func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	e, err := h.Checkout.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type setStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, changed, err := h.Checkout.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": toOrderView(o), "modified": changed})
}

func (h *OrdersHandler) cancelByCustomer(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, orders.CustomerSide)
}

func (h *OrdersHandler) cancelBySeller(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, orders.SellerSide)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request, side orders.CancelSide) {
	res, err := h.Checkout.Cancel(r.Context(), chi.URLParam(r, "id"), actor(r), side)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "restocked": res.Restocked, "orderId": res.Order.ID})
}

// customerOrders is open to the customer themselves and to admins.
func (h *OrdersHandler) customerOrders(w http.ResponseWriter, r *http.Request) {
	email := emailParam(r)
	if !isSelf(r, email) && actor(r).Role != users.RoleAdmin {
		writeError(w, r, errNotSelf)
		return
	}
	vs, err := h.Orders.ListForCustomer(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(vs) == 0 {
		writeError(w, r, errNoOrders)
		return
	}
	writeJSON(w, http.StatusOK, toOrderViews(vs))
}

func (h *OrdersHandler) sellerOrders(w http.ResponseWriter, r *http.Request) {
	email := emailParam(r)
	if !isSelf(r, email) {
		writeError(w, r, errNotSelf)
		return
	}
	vs, err := h.Orders.ListForSeller(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderViews(vs))
}

// customer fills the order's customer block from the stored profile.
func (h *OrdersHandler) customer(ctx context.Context, r *http.Request) orders.Customer {
	c := orders.Customer{Email: actor(r).Email}
	if u, err := h.Users.Get(ctx, c.Email); err == nil {
		c.Name, c.Image = u.Name, u.Image
	}
	return c
}
