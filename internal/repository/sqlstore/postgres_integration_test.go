//go:build integration

package sqlstore

import (
	"context"
	"testing"
	"time"

	"fileops/internal/database"
	"fileops/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStore_Lifecycle(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fileops_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.OpenPostgres(ctx, dsn, 2)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Ping(ctx))

	id, err := store.Insert(ctx, &repository.Operation{
		Kind:     repository.KindUpload,
		UserID:   "alice@example.com",
		FileName: "resume.pdf",
		FileSize: int64p(10),
		Metadata: map[string]any{"category": "uploads"},
	})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, id, repository.OperationPatch{
		Status:     statusp(repository.StatusCompleted),
		StoredName: strp("resume_123.pdf"),
	}))
	err = store.Update(ctx, id, repository.OperationPatch{Status: statusp(repository.StatusFailed)})
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	op, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCompleted, op.Status)
	assert.Equal(t, "uploads", op.Metadata["category"])
	assert.NotNil(t, op.CompletedAt)

	stats, err := store.Stats(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalCompleted)
	require.Len(t, stats.ByKind, 1)
	assert.InDelta(t, 10.0, stats.ByKind[0].AvgFileSize, 0.001)
	require.Len(t, stats.RecentActivity, 1)

	_, err = store.InsertMedia(ctx, &repository.MediaEntry{
		OriginalName: "resume.pdf",
		RemoteURL:    "https://cdn.example.com/resume_123.pdf",
		FileType:     repository.MediaDocument,
		Category:     "uploads",
		UploadedBy:   "alice@example.com",
	})
	require.NoError(t, err)

	media, err := store.MediaStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, media.Documents)
}
