package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://app:secret@db:5432/plantnet", migrateURL("postgres://app:secret@db:5432/plantnet"))
	assert.Equal(t, "pgx5://db/plantnet", migrateURL("postgresql://db/plantnet"))
	assert.Equal(t, "pgx5://db/x", migrateURL("pgx5://db/x"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestIsUniqueViolation(t *testing.T) {
	err := errors.Wrap(&pgconn.PgError{Code: "23505", ConstraintName: "orders_transaction_id_key"}, "insert")
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "orders_transaction_id_key"))
	assert.False(t, IsUniqueViolation(err, "users_pkey"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}
