package repository

import (
	"testing"

	"github.com/nimasrn/debt-ledger/pkg/pg"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pg.DB {
	t.Helper()
	db, err := pg.OpenSQLite(":memory:", false)
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(Entities()...))
	return db
}
