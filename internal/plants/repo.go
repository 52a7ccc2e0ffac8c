package plants

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/ariefcatur/plantnet/internal/events"
	"github.com/ariefcatur/plantnet/internal/outbox"
	"github.com/ariefcatur/plantnet/internal/postgres"
)

const listingColumns = `id, name, category, description, image, price_cents, quantity,
	seller_name, seller_email, seller_image, created_at, updated_at`

type Repo struct {
	DB       *pgxpool.Pool
	Producer string // envelope producer name
}

func (r *Repo) Create(ctx context.Context, l Listing) (Listing, error) {
	if err := l.Validate(); err != nil {
		return Listing{}, err
	}
	l.ID = uuid.NewString()
	row := r.DB.QueryRow(ctx, `
		INSERT INTO listings(id, name, category, description, image, price_cents, quantity,
			seller_name, seller_email, seller_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+listingColumns,
		l.ID, l.Name, l.Category, l.Description, l.Image, l.PriceCents, l.Quantity,
		l.Seller.Name, l.Seller.Email, l.Seller.Image)
	out, err := scanListing(row)
	return out, errors.Wrap(err, "create listing")
}

func (r *Repo) Get(ctx context.Context, id string) (Listing, error) {
	return Get(ctx, r.DB, id)
}

// Get loads a listing through db, which may be a transaction.
func Get(ctx context.Context, db postgres.DBTX, id string) (Listing, error) {
	if !validID(id) {
		return Listing{}, ErrNotFound
	}
	l, err := scanListing(db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, ErrNotFound
	}
	return l, errors.Wrap(err, "get listing")
}

func (r *Repo) List(ctx context.Context, limit int) ([]Listing, error) {
	if limit <= 0 || limit > 100 {
		limit = 12
	}
	return r.query(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *Repo) ListBySeller(ctx context.Context, email string) ([]Listing, error) {
	return r.query(ctx, `SELECT `+listingColumns+` FROM listings WHERE seller_email = $1 ORDER BY created_at DESC`, email)
}

// Delete removes a listing owned by sellerEmail. Orders referencing it are kept.
func (r *Repo) Delete(ctx context.Context, id, sellerEmail string) error {
	l, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.Seller.Email != sellerEmail {
		return ErrNotOwner
	}
	ct, err := r.DB.Exec(ctx, `DELETE FROM listings WHERE id = $1 AND seller_email = $2`, id, sellerEmail)
	if err != nil {
		return errors.Wrap(err, "delete listing")
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyDelta is the standalone ledger entry point: the delta and its stock event commit together.
func (r *Repo) ApplyDelta(ctx context.Context, id string, delta int, by string) (int, error) {
	var qty int
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		qty, err = ApplyDeltaTx(ctx, tx, id, delta)
		if err != nil {
			return err
		}
		return StageStockEvent(ctx, tx, r.Producer, events.StockAdjustedPayload{
			PlantID: id, Delta: delta, Quantity: qty, Reason: events.ReasonManual, By: by,
		})
	})
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// StageStockEvent writes a StockAdjusted record to the outbox through db.
func StageStockEvent(ctx context.Context, db postgres.DBTX, producer string, p events.StockAdjustedPayload) error {
	env, err := events.New(events.EventStockAdjusted, producer, p.PlantID, p)
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, db, events.TopicStockAdjusted, p.PlantID, env)
}

func (r *Repo) query(ctx context.Context, sql string, args ...any) ([]Listing, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list listings")
	}
	defer rows.Close()

	out := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan listing")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	err := row.Scan(&l.ID, &l.Name, &l.Category, &l.Description, &l.Image, &l.PriceCents, &l.Quantity,
		&l.Seller.Name, &l.Seller.Email, &l.Seller.Image, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
