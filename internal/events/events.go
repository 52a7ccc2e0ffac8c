package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockAdjusted      = "StockAdjusted"
)

const envelopeVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id or listing id
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a v1 envelope.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Stock reasons carried by StockAdjustedPayload.
const (
	ReasonOrderPlaced    = "order_placed"
	ReasonOrderCancelled = "order_cancelled"
	ReasonManual         = "manual"
)

type OrderPlacedPayload struct {
	OrderID       string `json:"order_id"`
	PlantID       string `json:"plant_id"`
	CustomerEmail string `json:"customer_email"`
	SellerEmail   string `json:"seller_email"`
	Quantity      int    `json:"quantity"`
	PriceCents    int64  `json:"price_cents"`
	TransactionID string `json:"transaction_id"`
}

type OrderCancelledPayload struct {
	OrderID     string `json:"order_id"`
	PlantID     string `json:"plant_id"`
	Quantity    int    `json:"quantity"`
	CancelledBy string `json:"cancelled_by"`
	Restocked   bool   `json:"restocked"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	By      string `json:"by"`
}

type StockAdjustedPayload struct {
	PlantID  string `json:"plant_id"`
	Delta    int    `json:"delta"`
	Quantity int    `json:"quantity"` // after the delta
	Reason   string `json:"reason"`
	OrderID  string `json:"order_id,omitempty"`
	By       string `json:"by,omitempty"`
}
