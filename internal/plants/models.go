package plants

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/plantnet/internal/apperr"
)

var (
	ErrNotFound          = apperr.New(apperr.NotFound, "plant not found")
	ErrInsufficientStock = apperr.New(apperr.Conflict, "insufficient stock")
	ErrZeroDelta         = apperr.New(apperr.InvalidArgument, "delta must not be zero")
	ErrInvalidPrice      = apperr.New(apperr.InvalidArgument, "price must be greater than zero")
	ErrInvalidQuantity   = apperr.New(apperr.InvalidArgument, "quantity must not be negative")
	ErrNameRequired      = apperr.New(apperr.InvalidArgument, "name is required")
	ErrNotOwner          = apperr.New(apperr.Forbidden, "listing belongs to another seller")
)

type Seller struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

type Listing struct {
	ID          string
	Name        string
	Category    string
	Description string
	Image       string
	PriceCents  int64 // minor units, what the payment processor charges
	Quantity    int
	Seller      Seller
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (l Listing) Price() decimal.Decimal { return FromCents(l.PriceCents) }

func (l Listing) Validate() error {
	switch {
	case l.Name == "":
		return ErrNameRequired
	case l.PriceCents <= 0:
		return ErrInvalidPrice
	case l.Quantity < 0:
		return ErrInvalidQuantity
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// ToCents converts a major-unit price to minor units, rounding half away from zero.
func ToCents(price decimal.Decimal) (int64, error) {
	cents := price.Mul(hundred).Round(0)
	if !cents.IsPositive() {
		return 0, ErrInvalidPrice
	}
	return cents.IntPart(), nil
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
