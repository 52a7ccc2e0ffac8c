package orders

import (
	"time"

	"github.com/ariefcatur/plantnet/internal/apperr"
	"github.com/ariefcatur/plantnet/internal/users"
)

var (
	ErrNotFound          = apperr.New(apperr.NotFound, "order not found")
	ErrAlreadyExists     = apperr.New(apperr.Conflict, "order already exists for this transaction")
	ErrSellerOnly        = apperr.New(apperr.Forbidden, "only sellers may change order status")
	ErrNotOrderSeller    = apperr.New(apperr.Forbidden, "order belongs to another seller")
	ErrNotOrderCustomer  = apperr.New(apperr.Forbidden, "order belongs to another customer")
	ErrDeliveredLocked   = apperr.New(apperr.Conflict, "order already delivered")
	ErrDeliveredNoCancel = apperr.New(apperr.Forbidden, "cannot cancel once the order is delivered")
	ErrIllegalTransition = apperr.New(apperr.Conflict, "illegal status transition")
	ErrUnknownStatus     = apperr.New(apperr.InvalidArgument, "unknown order status")
)

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

type Order struct {
	ID             string
	PlantID        string
	Customer       Customer
	SellerEmail    string
	Quantity       int
	UnitPriceCents int64
	PriceCents     int64 // Quantity * UnitPriceCents, fixed at creation
	Address        string
	Status         Status
	TransactionID  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// View is an order joined with the listing it references. Plant fields are empty when the
// listing was deleted.
type View struct {
	Order
	PlantName     string
	PlantImage    string
	PlantCategory string
}

// Actor is the authenticated, role-checked caller.
type Actor struct {
	Email string
	Role  users.Role
}

// CancelSide tells which party asks for the cancellation.
type CancelSide int

const (
	CustomerSide CancelSide = iota
	SellerSide
)
