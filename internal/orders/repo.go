package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/ariefcatur/plantnet/internal/events"
	"github.com/ariefcatur/plantnet/internal/outbox"
	"github.com/ariefcatur/plantnet/internal/plants"
	"github.com/ariefcatur/plantnet/internal/postgres"
)

const (
	orderColumns = `o.id, o.plant_id, o.customer_name, o.customer_email, o.customer_image, o.seller_email,
	o.quantity, o.unit_price_cents, o.price_cents, o.address, o.status, o.transaction_id, o.created_at, o.updated_at`

	txnConstraint = "orders_transaction_id_key"
)

type Repo struct {
	DB       *pgxpool.Pool
	Producer string
}

// Place inserts o and decrements the listing stock in one transaction, staging OrderPlaced
// and StockAdjusted for the outbox. It returns the remaining quantity.
// A duplicate transaction id yields ErrAlreadyExists; short stock yields plants.ErrInsufficientStock.
func (r *Repo) Place(ctx context.Context, o *Order) (int, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.Status = StatusPending

	var remaining int
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders(id, plant_id, customer_name, customer_email, customer_image, seller_email,
				quantity, unit_price_cents, price_cents, address, status, transaction_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING created_at, updated_at`,
			o.ID, o.PlantID, o.Customer.Name, o.Customer.Email, o.Customer.Image, o.SellerEmail,
			o.Quantity, o.UnitPriceCents, o.PriceCents, o.Address, string(o.Status), o.TransactionID,
		).Scan(&o.CreatedAt, &o.UpdatedAt)
		if postgres.IsUniqueViolation(err, txnConstraint) {
			return ErrAlreadyExists
		}
		if err != nil {
			return errors.Wrap(err, "insert order")
		}

		remaining, err = plants.ApplyDeltaTx(ctx, tx, o.PlantID, -o.Quantity)
		if err != nil {
			return err
		}

		if err := r.stage(ctx, tx, events.EventOrderPlaced, events.TopicOrderPlaced, o.ID, events.OrderPlacedPayload{
			OrderID:       o.ID,
			PlantID:       o.PlantID,
			CustomerEmail: o.Customer.Email,
			SellerEmail:   o.SellerEmail,
			Quantity:      o.Quantity,
			PriceCents:    o.PriceCents,
			TransactionID: o.TransactionID,
		}); err != nil {
			return err
		}
		return plants.StageStockEvent(ctx, tx, r.Producer, events.StockAdjustedPayload{
			PlantID: o.PlantID, Delta: -o.Quantity, Quantity: remaining,
			Reason: events.ReasonOrderPlaced, OrderID: o.ID, By: o.Customer.Email,
		})
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	if !validID(id) {
		return Order{}, ErrNotFound
	}
	return r.one(ctx, r.DB, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
}

func (r *Repo) FindByTransaction(ctx context.Context, txnID string) (Order, error) {
	return r.one(ctx, r.DB, `SELECT `+orderColumns+` FROM orders o WHERE o.transaction_id = $1`, txnID)
}

// Cancel locks the order, checks it with CheckCancel, deletes it and returns its quantity to
// the listing. restocked is false when the listing no longer exists.
func (r *Repo) Cancel(ctx context.Context, id string, actor Actor, side CancelSide) (o Order, restocked bool, err error) {
	if !validID(id) {
		return Order{}, false, ErrNotFound
	}
	err = postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		o, err = r.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckCancel(o, actor, side); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
			return errors.Wrap(err, "delete order")
		}

		qty, err := plants.ApplyDeltaTx(ctx, tx, o.PlantID, o.Quantity)
		switch {
		case err == nil:
			restocked = true
			if err := plants.StageStockEvent(ctx, tx, r.Producer, events.StockAdjustedPayload{
				PlantID: o.PlantID, Delta: o.Quantity, Quantity: qty,
				Reason: events.ReasonOrderCancelled, OrderID: o.ID, By: actor.Email,
			}); err != nil {
				return err
			}
		case errors.Is(err, plants.ErrNotFound):
			restocked = false
		default:
			return err
		}

		return r.stage(ctx, tx, events.EventOrderCancelled, events.TopicOrderCancelled, o.ID, events.OrderCancelledPayload{
			OrderID: o.ID, PlantID: o.PlantID, Quantity: o.Quantity, CancelledBy: actor.Email, Restocked: restocked,
		})
	})
	if err != nil {
		return Order{}, false, err
	}
	return o, restocked, nil
}

// SetStatus locks the order and applies next when Guard allows it. changed is false when the
// order already had that status.
func (r *Repo) SetStatus(ctx context.Context, id string, next Status, actor Actor) (o Order, changed bool, err error) {
	if !validID(id) {
		return Order{}, false, ErrNotFound
	}
	err = postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		o, err = r.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		changed, err = Guard(o, next, actor)
		if err != nil || !changed {
			return err
		}

		from := o.Status
		if err := tx.QueryRow(ctx,
			`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`,
			id, string(next)).Scan(&o.UpdatedAt); err != nil {
			return errors.Wrap(err, "update order status")
		}
		o.Status = next

		return r.stage(ctx, tx, events.EventOrderStatusChanged, events.TopicOrderStatusChanged, o.ID, events.OrderStatusChangedPayload{
			OrderID: o.ID, From: string(from), To: string(next), By: actor.Email,
		})
	})
	if err != nil {
		return Order{}, false, err
	}
	return o, changed, nil
}

// ListForCustomer returns the customer's orders, newest first, joined with their listings.
func (r *Repo) ListForCustomer(ctx context.Context, email string) ([]View, error) {
	return r.views(ctx, `o.customer_email = $1`, email)
}

func (r *Repo) ListForSeller(ctx context.Context, email string) ([]View, error) {
	return r.views(ctx, `o.seller_email = $1`, email)
}

func (r *Repo) views(ctx context.Context, where string, args ...any) ([]View, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+`,
			COALESCE(l.name, ''), COALESCE(l.image, ''), COALESCE(l.category, '')
		FROM orders o
		LEFT JOIN listings l ON l.id = o.plant_id
		WHERE `+where+`
		ORDER BY o.created_at DESC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	out := []View{}
	for rows.Next() {
		var v View
		dest := append(orderDest(&v.Order), &v.PlantName, &v.PlantImage, &v.PlantCategory)
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repo) lock(ctx context.Context, tx pgx.Tx, id string) (Order, error) {
	return r.one(ctx, tx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, id)
}

func (r *Repo) one(ctx context.Context, db postgres.DBTX, sql string, args ...any) (Order, error) {
	var o Order
	err := db.QueryRow(ctx, sql, args...).Scan(orderDest(&o)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, errors.Wrap(err, "get order")
	}
	return o, nil
}

func (r *Repo) stage(ctx context.Context, db postgres.DBTX, eventType, topic, orderID string, payload any) error {
	env, err := events.New(eventType, r.Producer, orderID, payload)
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, db, topic, orderID, env)
}

func orderDest(o *Order) []any {
	return []any{&o.ID, &o.PlantID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Image, &o.SellerEmail,
		&o.Quantity, &o.UnitPriceCents, &o.PriceCents, &o.Address, &o.Status, &o.TransactionID,
		&o.CreatedAt, &o.UpdatedAt}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
