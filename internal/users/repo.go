package users

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/ariefcatur/plantnet/internal/postgres"
)

const userColumns = `email, name, image, role, status, created_at, updated_at`

type Repo struct{ DB *pgxpool.Pool }

// Save stores u as a customer the first time its email is seen. An existing user is returned
// unchanged with created=false.
func (r *Repo) Save(ctx context.Context, u User) (out User, created bool, err error) {
	u.Email = normalize(u.Email)
	if u.Email == "" {
		return User{}, false, ErrEmailRequired
	}
	out, err = scanUser(r.DB.QueryRow(ctx, `
		INSERT INTO users(email, name, image, role, status)
		VALUES ($1, $2, $3, 'customer', '')
		ON CONFLICT (email) DO NOTHING
		RETURNING `+userColumns, u.Email, u.Name, u.Image))
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, errors.Wrap(err, "save user")
	}
	out, err = r.Get(ctx, u.Email)
	return out, false, err
}

func (r *Repo) Get(ctx context.Context, email string) (User, error) {
	return get(ctx, r.DB, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalize(email))
}

// RoleOf is the lookup behind role-gated routes.
func (r *Repo) RoleOf(ctx context.Context, email string) (Role, error) {
	var role string
	err := r.DB.QueryRow(ctx, `SELECT role FROM users WHERE email = $1`, normalize(email)).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "user role")
	}
	return Role(role), nil
}

// ListExcept returns every user but email, for the admin user list.
func (r *Repo) ListExcept(ctx context.Context, email string) ([]User, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE email <> $1 ORDER BY created_at`, normalize(email))
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repo) RequestSeller(ctx context.Context, email string) (User, error) {
	return r.transition(ctx, email, RequestSeller)
}

func (r *Repo) Decide(ctx context.Context, email string, decision Role) (User, error) {
	return r.transition(ctx, email, func(u User) (User, error) { return Decide(u, decision) })
}

// Promote makes email an admin, creating the user if needed. Only plantctl calls it.
func (r *Repo) Promote(ctx context.Context, email string) (User, error) {
	email = normalize(email)
	if email == "" {
		return User{}, ErrEmailRequired
	}
	u, err := scanUser(r.DB.QueryRow(ctx, `
		INSERT INTO users(email, role, status) VALUES ($1, 'admin', '')
		ON CONFLICT (email) DO UPDATE SET role = 'admin', status = '', updated_at = now()
		RETURNING `+userColumns, email))
	return u, errors.Wrap(err, "promote admin")
}

func (r *Repo) transition(ctx context.Context, email string, step func(User) (User, error)) (User, error) {
	var out User
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		u, err := get(ctx, tx, `SELECT `+userColumns+` FROM users WHERE email = $1 FOR UPDATE`, normalize(email))
		if err != nil {
			return err
		}
		next, err := step(u)
		if err != nil {
			return err
		}
		out, err = scanUser(tx.QueryRow(ctx, `
			UPDATE users SET role = $2, status = $3, updated_at = now()
			WHERE email = $1 RETURNING `+userColumns,
			u.Email, string(next.Role), string(next.Status)))
		return errors.Wrap(err, "update user")
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

func get(ctx context.Context, db postgres.DBTX, sql string, args ...any) (User, error) {
	u, err := scanUser(db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, errors.Wrap(err, "get user")
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role, status string
	err := row.Scan(&u.Email, &u.Name, &u.Image, &role, &status, &u.CreatedAt, &u.UpdatedAt)
	u.Role, u.Status = Role(role), Status(status)
	return u, err
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
