package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/plantnet/internal/journal"
	"github.com/ariefcatur/plantnet/internal/orders"
	"github.com/ariefcatur/plantnet/internal/plants"
	"github.com/ariefcatur/plantnet/internal/users"
)

func init() {
	// prices go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

type listingView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Seller      plants.Seller   `json:"seller"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toListingView(l plants.Listing) listingView {
	return listingView{
		ID:          l.ID,
		Name:        l.Name,
		Category:    l.Category,
		Description: l.Description,
		Image:       l.Image,
		Price:       l.Price(),
		Quantity:    l.Quantity,
		Seller:      l.Seller,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

type orderView struct {
	ID            string          `json:"id"`
	PlantID       string          `json:"plantId"`
	Customer      orders.Customer `json:"customer"`
	Seller        string          `json:"seller"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Price         decimal.Decimal `json:"price"`
	Address       string          `json:"address"`
	Status        orders.Status   `json:"status"`
	TransactionID string          `json:"transactionId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`

	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
	Category string `json:"category,omitempty"`
}

func toOrderView(o orders.Order) orderView {
	return orderView{
		ID:            o.ID,
		PlantID:       o.PlantID,
		Customer:      o.Customer,
		Seller:        o.SellerEmail,
		Quantity:      o.Quantity,
		UnitPrice:     plants.FromCents(o.UnitPriceCents),
		Price:         plants.FromCents(o.PriceCents),
		Address:       o.Address,
		Status:        o.Status,
		TransactionID: o.TransactionID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func toOrderViews(vs []orders.View) []orderView {
	out := make([]orderView, 0, len(vs))
	for _, v := range vs {
		ov := toOrderView(v.Order)
		ov.Name, ov.Image, ov.Category = v.PlantName, v.PlantImage, v.PlantCategory
		out = append(out, ov)
	}
	return out
}

type userView struct {
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Image     string       `json:"image"`
	Role      users.Role   `json:"role"`
	Status    users.Status `json:"status"`
	CreatedAt time.Time    `json:"timestamp"`
}

func toUserView(u users.User) userView {
	return userView{Email: u.Email, Name: u.Name, Image: u.Image, Role: u.Role, Status: u.Status, CreatedAt: u.CreatedAt}
}

type movementView struct {
	EventID    string    `json:"eventId"`
	Delta      int       `json:"delta"`
	Quantity   int       `json:"quantity"`
	Reason     string    `json:"reason"`
	OrderID    string    `json:"orderId,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func toMovementViews(ms []journal.Movement) []movementView {
	out := make([]movementView, 0, len(ms))
	for _, m := range ms {
		out = append(out, movementView{
			EventID: m.EventID, Delta: m.Delta, Quantity: m.Quantity, Reason: m.Reason,
			OrderID: m.OrderID, Actor: m.Actor, OccurredAt: m.OccurredAt,
		})
	}
	return out
}
