// Package pgtest opens the database used by repository tests.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/plantnet/internal/postgres"
)

// Open connects to POSTGRES_DSN and applies the migrations. The test is skipped when the
// variable is unset. Tables are not emptied, so callers key their rows by fresh ids.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	require.NoError(t, postgres.MigrateUp(dsn))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}
