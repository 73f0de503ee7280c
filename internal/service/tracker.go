package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fileops/internal/gateway"
	"fileops/internal/ledger"
	"fileops/internal/repository"
)

// tracker 跟踪单次操作：create 必须先于远端调用，succeed/fail 只会生效一次。
type tracker struct {
	svc   *FileService
	ctx   context.Context
	kind  repository.OperationKind
	id    ledger.OperationID
	start time.Time
	done  bool
}

func (s *FileService) begin(ctx context.Context, kind repository.OperationKind) *tracker {
	return &tracker{svc: s, ctx: ctx, kind: kind, start: time.Now()}
}

func (t *tracker) create(attrs repository.Operation) {
	t.id = t.svc.recorder.Create(t.ctx, attrs)
}

func (t *tracker) succeed(patch repository.OperationPatch, message string) Result {
	status := repository.StatusCompleted
	patch.Status = &status
	t.finish("success")
	t.svc.recorder.Update(t.ctx, t.id, patch)
	return Result{Success: true, OperationID: t.id, Message: message}
}

func (t *tracker) fail(err error) Result {
	status := repository.StatusFailed
	msg := err.Error()
	errType := classify(err)
	t.finish(string(errType))
	t.svc.recorder.Update(t.ctx, t.id, repository.OperationPatch{Status: &status, Error: &msg})

	t.svc.logger.Warn("file operation failed",
		"operation_type", t.kind,
		"operation_id", t.id,
		"error_type", errType,
		"error", msg,
	)
	return Result{Success: false, OperationID: t.id, Error: msg, ErrorType: errType}
}

// recover 把 panic 折叠为 internal 失败，保证调用方总能拿到结果。
func (t *tracker) recover(res *Result) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("internal error: %v", r)
	if t.done {
		t.svc.logger.Error("panic after operation finished", "operation_type", t.kind, "error", err)
		return
	}
	*res = t.fail(err)
	res.ErrorType = ErrorInternal
}

func (t *tracker) finish(outcome string) {
	t.done = true
	operationsTotal.WithLabelValues(string(t.kind), outcome).Inc()
	operationDuration.WithLabelValues(string(t.kind)).Observe(time.Since(t.start).Seconds())
}

func classify(err error) ErrorType {
	var verr *gateway.ValidationError
	var terr *gateway.TransferError
	switch {
	case errors.As(err, &verr):
		return ErrorValidation
	case errors.As(err, &terr):
		return ErrorTransfer
	default:
		return ErrorInternal
	}
}
