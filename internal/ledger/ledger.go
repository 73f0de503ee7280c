package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fileops/internal/logging"
	"fileops/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MaxListLimit 是单次历史查询的行数上限。
const MaxListLimit = 500

// RecentWindow 是统计近期活动的时间窗口。
const RecentWindow = 7 * 24 * time.Hour

// DefaultCallTimeout 是单次账本调用的默认时间预算。
const DefaultCallTimeout = 5 * time.Second

// schemaRetryBackoff 是建表失败后再次尝试前的冷却时间。
const schemaRetryBackoff = 2 * time.Second

var (
	errSchemaBusy    = errors.New("ledger schema setup already in progress")
	errSchemaBackoff = errors.New("ledger schema setup failed recently, retry pending")
)

var degradedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fileops_ledger_degraded_total",
		Help: "Ledger calls that fell back to an empty or untracked result",
	},
	[]string{"step"},
)

// 连通性状态取值。
const (
	StateConnected     = "connected"
	StateNotConfigured = "not_configured"
	StateFailed        = "failed"
)

// Status 是账本连通性检查结果。
type Status struct {
	State string `json:"status"`
	Error string `json:"error,omitempty"`
}

// Ledger 是尽力而为的审计账本：所有失败只记录日志并降级为空结果，从不返回给调用方。
// store 为 nil 表示未配置账本，此时所有写操作都是 no-op。
type Ledger struct {
	store   repository.OperationStore
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	// mu 保证同一时刻最多一次建表尝试，并保护 retryAt。
	mu          sync.Mutex
	retryAt     time.Time
	schemaReady atomic.Bool
}

// Option 调整账本行为。
type Option func(*Ledger)

// WithCallTimeout 设置单次账本调用的时间预算，<= 0 时保持默认值。
func WithCallTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// New 创建账本。store 为 nil 时返回未配置状态的账本。
func New(store repository.OperationStore, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		logger:  logging.OrDefault(logger),
		now:     time.Now,
		timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Configured 表示是否配置了持久化存储。
func (l *Ledger) Configured() bool {
	return l != nil && l.store != nil
}

// ready 在首次使用时懒建表。其他调用方不会等待进行中的建表，失败后冷却 schemaRetryBackoff 再重试。
func (l *Ledger) ready(ctx context.Context, step string) bool {
	if !l.Configured() {
		return false
	}
	if l.schemaReady.Load() {
		return true
	}

	if !l.mu.TryLock() {
		l.degrade(step, errSchemaBusy)
		return false
	}
	defer l.mu.Unlock()
	if l.schemaReady.Load() {
		return true
	}
	if l.now().Before(l.retryAt) {
		l.degrade(step, errSchemaBackoff)
		return false
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	if err := l.store.EnsureSchema(ctx); err != nil {
		l.retryAt = l.now().Add(schemaRetryBackoff)
		l.degrade(step, err)
		return false
	}
	l.schemaReady.Store(true)
	return true
}

// bounded 给单次存储调用加上账本自己的时间预算。
func (l *Ledger) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.timeout)
}

func (l *Ledger) degrade(step string, err error, attrs ...any) {
	degradedTotal.WithLabelValues(step).Inc()
	args := append([]any{"step", step, "error", err}, attrs...)
	l.logger.Warn("ledger degraded", args...)
}

// Create 写入一条 pending 记录。账本不可用时返回 Untracked。
func (l *Ledger) Create(ctx context.Context, attrs repository.Operation) OperationID {
	if !l.ready(ctx, "create") {
		return Untracked
	}

	attrs.Status = repository.StatusPending
	attrs.Error = ""
	if attrs.Metadata == nil {
		attrs.Metadata = map[string]any{}
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	id, err := l.store.Insert(ctx, &attrs)
	if err != nil {
		l.degrade("create", err, "operation_type", attrs.Kind, "file_name", attrs.FileName)
		return Untracked
	}

	l.logger.Debug("operation recorded", "operation_id", id, "operation_type", attrs.Kind)
	return Tracked(id)
}

// Update 按补丁更新记录。id 未跟踪或账本不可用时为 no-op。
func (l *Ledger) Update(ctx context.Context, id OperationID, patch repository.OperationPatch) {
	raw, ok := id.Value()
	if !ok || patch.Empty() || !l.ready(ctx, "update") {
		return
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	if err := l.store.Update(ctx, raw, patch); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			l.logger.Warn("operation already terminal, status patch ignored", "operation_id", raw)
			return
		}
		l.degrade("update", err, "operation_id", raw)
	}
}

// Get 读取单条记录，第二个返回值表示是否找到。
func (l *Ledger) Get(ctx context.Context, id int64) (*repository.Operation, bool) {
	if !l.ready(ctx, "get") {
		return nil, false
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	op, err := l.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			l.degrade("get", err, "operation_id", id)
		}
		return nil, false
	}
	return op, true
}

// List 返回最新的记录，limit <= 0 时返回空列表，超过 MaxListLimit 会被截断。
func (l *Ledger) List(ctx context.Context, userID string, limit int) []repository.Operation {
	if limit <= 0 || !l.ready(ctx, "list") {
		return []repository.Operation{}
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	ops, err := l.store.List(ctx, repository.ListOperationsParams{UserID: userID, Limit: limit})
	if err != nil {
		l.degrade("list", err)
		return []repository.Operation{}
	}
	if ops == nil {
		ops = []repository.Operation{}
	}
	return ops
}

// Stats 返回按类型聚合的统计与最近 7 天的按天活动量。
func (l *Ledger) Stats(ctx context.Context) repository.Stats {
	if !l.ready(ctx, "stats") {
		return repository.EmptyStats()
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	stats, err := l.store.Stats(ctx, l.now().Add(-RecentWindow))
	if err != nil {
		l.degrade("stats", err)
		return repository.EmptyStats()
	}
	return stats
}

// RecordMedia 写入媒体库条目，失败只记录日志。
func (l *Ledger) RecordMedia(ctx context.Context, entry repository.MediaEntry) bool {
	if !l.ready(ctx, "media") {
		return false
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	if _, err := l.store.InsertMedia(ctx, &entry); err != nil {
		l.degrade("media", err, "original_name", entry.OriginalName)
		return false
	}
	return true
}

// ListMedia 列出媒体库条目。
func (l *Ledger) ListMedia(ctx context.Context, params repository.ListMediaParams) []repository.MediaEntry {
	if !l.ready(ctx, "media_list") {
		return []repository.MediaEntry{}
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	entries, err := l.store.ListMedia(ctx, params)
	if err != nil {
		l.degrade("media_list", err)
		return []repository.MediaEntry{}
	}
	if entries == nil {
		entries = []repository.MediaEntry{}
	}
	return entries
}

// MediaCategories 返回所有媒体分类。
func (l *Ledger) MediaCategories(ctx context.Context) []string {
	if !l.ready(ctx, "media_categories") {
		return []string{}
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	categories, err := l.store.MediaCategories(ctx)
	if err != nil {
		l.degrade("media_categories", err)
		return []string{}
	}
	if categories == nil {
		categories = []string{}
	}
	return categories
}

// MediaStats 返回媒体库统计。
func (l *Ledger) MediaStats(ctx context.Context) repository.MediaStats {
	if !l.ready(ctx, "media_stats") {
		return repository.EmptyMediaStats()
	}

	ctx, cancel := l.bounded(ctx)
	defer cancel()
	stats, err := l.store.MediaStats(ctx)
	if err != nil {
		l.degrade("media_stats", err)
		return repository.EmptyMediaStats()
	}
	return stats
}

// Status 执行 SELECT 1 级别的检查，不触发建表。
func (l *Ledger) Status(ctx context.Context) Status {
	if !l.Configured() {
		return Status{State: StateNotConfigured}
	}
	ctx, cancel := l.bounded(ctx)
	defer cancel()
	if err := l.store.Ping(ctx); err != nil {
		return Status{State: StateFailed, Error: err.Error()}
	}
	return Status{State: StateConnected}
}
