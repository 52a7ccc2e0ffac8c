package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/ariefcatur/plantnet/internal/events"
	"github.com/ariefcatur/plantnet/internal/postgres"
)

type Record struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	EventType string
	Payload   json.RawMessage // the whole envelope
	CreatedAt time.Time
}

// Insert stages env for publication. Call it with the transaction that made the change.
func Insert(ctx context.Context, db postgres.DBTX, topic, key string, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "outbox: marshal")
	}
	_, err = db.Exec(ctx,
		`INSERT INTO outbox(event_id, topic, key, event_type, payload) VALUES ($1, $2, $3, $4, $5)`,
		env.EventID, topic, key, env.EventType, data)
	return errors.Wrap(err, "outbox: insert")
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, event_id, topic, key, event_type, payload, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "outbox: fetch")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.EventType, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "outbox: scan")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.DB.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`, ids)
	return errors.Wrap(err, "outbox: mark sent")
}
