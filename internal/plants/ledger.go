package plants

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/ariefcatur/plantnet/internal/postgres"
)

// Apply returns current+delta, refusing zero deltas and negative results.
func Apply(current, delta int) (int, error) {
	if delta == 0 {
		return current, ErrZeroDelta
	}
	next := current + delta
	if next < 0 {
		return current, ErrInsufficientStock
	}
	return next, nil
}

// ApplyDeltaTx adds delta to the listing quantity in a single conditional UPDATE, so
// concurrent writers never lose updates and the quantity never drops below zero.
func ApplyDeltaTx(ctx context.Context, db postgres.DBTX, id string, delta int) (int, error) {
	if delta == 0 {
		return 0, ErrZeroDelta
	}
	if !validID(id) {
		return 0, ErrNotFound
	}

	var qty int
	err := db.QueryRow(ctx, `
		UPDATE listings SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING quantity`, id, delta).Scan(&qty)
	if err == nil {
		return qty, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Wrap(err, "apply delta")
	}

	// Nothing updated: either the listing is gone or the stock is short.
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, errors.Wrap(err, "apply delta: lookup")
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, ErrInsufficientStock
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
