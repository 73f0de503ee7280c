package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"fileops/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApply_CreatesTablesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	pending, err := Pending(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	applied, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.Len(t, applied, 2)

	again, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, again)

	pending, err = Pending(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, pending)

	for _, table := range []string{"file_operations", "media_library"} {
		var count int
		err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table)
		require.NoError(t, err, table)
		assert.Zero(t, count)
	}
}

func TestApply_NilDatabase(t *testing.T) {
	_, err := Apply(context.Background(), nil)
	assert.Error(t, err)
}
