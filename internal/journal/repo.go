package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Movement is one applied stock delta, as recorded from plant.stock.adjusted.
type Movement struct {
	EventID    string
	PlantID    string
	Delta      int
	Quantity   int
	Reason     string
	OrderID    string
	Actor      string
	OccurredAt time.Time
}

type Repo struct{ DB *pgxpool.Pool }

// Record inserts mv once; a redelivered event is a no-op.
func (r *Repo) Record(ctx context.Context, mv Movement) error {
	var orderID *string
	if mv.OrderID != "" {
		orderID = &mv.OrderID
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO stock_movements(event_id, plant_id, delta, quantity, reason, order_id, actor, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		mv.EventID, mv.PlantID, mv.Delta, mv.Quantity, mv.Reason, orderID, mv.Actor, mv.OccurredAt)
	return errors.Wrap(err, "record movement")
}

// ListByPlant returns the newest movements first.
func (r *Repo) ListByPlant(ctx context.Context, plantID string, limit int) ([]Movement, error) {
	if _, err := uuid.Parse(plantID); err != nil {
		return []Movement{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx, `
		SELECT event_id, plant_id, delta, quantity, reason, COALESCE(order_id::text, ''), actor, occurred_at
		FROM stock_movements WHERE plant_id = $1
		ORDER BY occurred_at DESC LIMIT $2`, plantID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list movements")
	}
	defer rows.Close()

	out := []Movement{}
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.EventID, &mv.PlantID, &mv.Delta, &mv.Quantity, &mv.Reason, &mv.OrderID, &mv.Actor, &mv.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "scan movement")
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}
