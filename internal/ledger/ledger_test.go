package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"fileops/internal/database"
	"fileops/internal/logging"
	"fileops/internal/repository"
	"fileops/internal/repository/sqlstore"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlstore.New(db), logging.Discard())
}

func statusPtr(s repository.OperationStatus) *repository.OperationStatus { return &s }

func TestOperationID_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]any{"a": Tracked(7), "b": Untracked})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":7,"b":null}`, string(b))
	assert.Equal(t, "7", Tracked(7).String())
	assert.False(t, Untracked.IsTracked())
}

func TestLedger_LazySchemaAndLifecycle(t *testing.T) {
	l := newSQLiteLedger(t)
	ctx := context.Background()

	id := l.Create(ctx, repository.Operation{
		Kind:     repository.KindUpload,
		UserID:   "alice",
		FileName: "a.png",
		Status:   repository.StatusCompleted,
	})
	require.True(t, id.IsTracked())

	raw, _ := id.Value()
	op, ok := l.Get(ctx, raw)
	require.True(t, ok)
	assert.Equal(t, repository.StatusPending, op.Status)

	l.Update(ctx, id, repository.OperationPatch{Status: statusPtr(repository.StatusCompleted)})
	l.Update(ctx, id, repository.OperationPatch{Status: statusPtr(repository.StatusFailed)})

	op, ok = l.Get(ctx, raw)
	require.True(t, ok)
	assert.Equal(t, repository.StatusCompleted, op.Status)
	assert.NotNil(t, op.CompletedAt)

	ops := l.List(ctx, "alice", 20)
	assert.Len(t, ops, 1)
	assert.Equal(t, ops, l.List(ctx, "alice", 20))
	assert.Empty(t, l.List(ctx, "alice", 0))

	stats := l.Stats(ctx)
	assert.EqualValues(t, 1, stats.TotalCompleted)
	assert.Len(t, stats.RecentActivity, 1)

	assert.Equal(t, Status{State: StateConnected}, l.Status(ctx))
}

func TestLedger_EmptyStats(t *testing.T) {
	l := newSQLiteLedger(t)

	stats := l.Stats(context.Background())
	assert.Zero(t, stats.TotalOperations)
	assert.NotNil(t, stats.ByKind)
	assert.NotNil(t, stats.RecentActivity)
}

func TestLedger_MediaRoundTrip(t *testing.T) {
	l := newSQLiteLedger(t)
	ctx := context.Background()

	ok := l.RecordMedia(ctx, repository.MediaEntry{
		OriginalName: "logo.png",
		RemoteURL:    "https://cdn.example.com/logo.png",
		FileType:     repository.MediaImage,
		Category:     "uploads",
		UploadedBy:   "alice",
	})
	require.True(t, ok)

	assert.Len(t, l.ListMedia(ctx, repository.ListMediaParams{Category: "uploads"}), 1)
	assert.Empty(t, l.ListMedia(ctx, repository.ListMediaParams{Category: "other"}))
	assert.Equal(t, []string{"uploads"}, l.MediaCategories(ctx))
	assert.EqualValues(t, 1, l.MediaStats(ctx).Images)
}

func TestLedger_NotConfigured(t *testing.T) {
	l := New(nil, logging.Discard())
	ctx := context.Background()

	id := l.Create(ctx, repository.Operation{Kind: repository.KindExport, UserID: "u", FileName: "x.json"})
	assert.False(t, id.IsTracked())

	l.Update(ctx, id, repository.OperationPatch{Status: statusPtr(repository.StatusFailed)})

	assert.NotNil(t, l.List(ctx, "", 10))
	assert.Empty(t, l.List(ctx, "", 10))
	assert.Zero(t, l.Stats(ctx).TotalOperations)
	assert.False(t, l.RecordMedia(ctx, repository.MediaEntry{}))
	assert.Empty(t, l.MediaCategories(ctx))
	assert.Equal(t, Status{State: StateNotConfigured}, l.Status(ctx))
}

// flakyStore 在建表成功后让所有读写失败。
type flakyStore struct {
	schemaErr   error
	schemaCalls int
	err         error
}

func (s *flakyStore) EnsureSchema(context.Context) error {
	s.schemaCalls++
	return s.schemaErr
}
func (s *flakyStore) Ping(context.Context) error { return s.err }
func (s *flakyStore) Insert(context.Context, *repository.Operation) (int64, error) {
	return 0, s.err
}
func (s *flakyStore) Update(context.Context, int64, repository.OperationPatch) error { return s.err }
func (s *flakyStore) Get(context.Context, int64) (*repository.Operation, error)    { return nil, s.err }
func (s *flakyStore) List(context.Context, repository.ListOperationsParams) ([]repository.Operation, error) {
	return nil, s.err
}
func (s *flakyStore) Stats(context.Context, time.Time) (repository.Stats, error) {
	return repository.Stats{}, s.err
}
func (s *flakyStore) InsertMedia(context.Context, *repository.MediaEntry) (int64, error) {
	return 0, s.err
}
func (s *flakyStore) ListMedia(context.Context, repository.ListMediaParams) ([]repository.MediaEntry, error) {
	return nil, s.err
}
func (s *flakyStore) MediaCategories(context.Context) ([]string, error) { return nil, s.err }
func (s *flakyStore) MediaStats(context.Context) (repository.MediaStats, error) {
	return repository.MediaStats{}, s.err
}

func TestLedger_StoreFailuresDegrade(t *testing.T) {
	store := &flakyStore{err: errors.New("connection reset")}
	l := New(store, logging.Discard())
	ctx := context.Background()

	assert.Equal(t, Untracked, l.Create(ctx, repository.Operation{Kind: repository.KindUpload}))
	l.Update(ctx, Tracked(1), repository.OperationPatch{Status: statusPtr(repository.StatusFailed)})

	_, found := l.Get(ctx, 1)
	assert.False(t, found)
	assert.Empty(t, l.List(ctx, "", 5))

	stats := l.Stats(ctx)
	assert.NotNil(t, stats.ByKind)
	assert.Zero(t, stats.TotalOperations)

	assert.NotNil(t, l.MediaStats(ctx).ByCategory)
	assert.Equal(t, Status{State: StateFailed, Error: "connection reset"}, l.Status(ctx))
	assert.Equal(t, 1, store.schemaCalls)
}

func TestLedger_SchemaRetriedAfterFailure(t *testing.T) {
	store := &flakyStore{schemaErr: errors.New("database is starting up")}
	l := New(store, logging.Discard())
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	assert.False(t, l.Create(ctx, repository.Operation{Kind: repository.KindUpload}).IsTracked())
	assert.Equal(t, 1, store.schemaCalls)

	store.schemaErr = nil
	l.List(ctx, "", 1)
	assert.Equal(t, 1, store.schemaCalls, "no retry inside the backoff window")

	now = now.Add(schemaRetryBackoff)
	l.List(ctx, "", 1)
	l.List(ctx, "", 1)
	assert.Equal(t, 2, store.schemaCalls)
}

// stallingStore 模拟不响应的数据库：调用一直阻塞到 ctx 结束。
type stallingStore struct {
	flakyStore
	stallSchema bool
	entered     chan struct{}
}

func (s *stallingStore) EnsureSchema(ctx context.Context) error {
	if !s.stallSchema {
		return nil
	}
	if s.entered != nil {
		close(s.entered)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stallingStore) Insert(ctx context.Context, _ *repository.Operation) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestLedger_CallTimeoutBoundsStalledStore(t *testing.T) {
	cases := map[string]*stallingStore{
		"schema": {stallSchema: true},
		"insert": {},
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			l := New(store, logging.Discard(), WithCallTimeout(50*time.Millisecond))

			start := time.Now()
			id := l.Create(context.Background(), repository.Operation{Kind: repository.KindUpload})
			assert.Equal(t, Untracked, id)
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestLedger_ConcurrentCallsSkipPendingSchema(t *testing.T) {
	store := &stallingStore{stallSchema: true, entered: make(chan struct{})}
	l := New(store, logging.Discard(), WithCallTimeout(time.Second))
	ctx := context.Background()

	first := make(chan OperationID, 1)
	go func() { first <- l.Create(ctx, repository.Operation{Kind: repository.KindUpload}) }()
	<-store.entered

	start := time.Now()
	assert.Equal(t, Untracked, l.Create(ctx, repository.Operation{Kind: repository.KindExport}))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assert.Equal(t, Untracked, <-first)
}

func TestLedger_UnreachableDatabase(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := database.Wrap(mockDB, "sqlmock", database.Postgres)
	l := New(sqlstore.New(db), logging.Discard())
	ctx := context.Background()

	id := l.Create(ctx, repository.Operation{Kind: repository.KindDownload, UserID: "u", FileName: "f"})
	assert.False(t, id.IsTracked())
	assert.Empty(t, l.List(ctx, "u", 10))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnError(errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))
	status := l.Status(ctx)
	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.Error, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}
