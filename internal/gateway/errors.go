package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ValidationError 表示请求在发出前就被本地校验拒绝。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// FailureKind 区分"无法到达远端"与"远端报告业务失败"。
type FailureKind string

const (
	Unreachable FailureKind = "unreachable"
	Remote      FailureKind = "remote"
)

// TransferError 是远端调用失败的统一错误类型。Message 已经可以直接展示给调用方。
type TransferError struct {
	Op         string
	Kind       FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (e *TransferError) Error() string {
	return e.Message
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Timeout 表示失败是否由超时引起。
func (e *TransferError) Timeout() bool {
	return IsTimeout(e.Err)
}

// IsTimeout 判断错误链中是否包含超时。
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsValidation 判断 err 是否为 *ValidationError。
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransfer 判断 err 是否为 *TransferError。
func IsTransfer(err error) bool {
	var t *TransferError
	return errors.As(err, &t)
}

func unreachable(op string, err error, format string, args ...any) *TransferError {
	return &TransferError{
		Op:      op,
		Kind:    Unreachable,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func remote(op string, status int, format string, args ...any) *TransferError {
	return &TransferError{
		Op:         op,
		Kind:       Remote,
		StatusCode: status,
		Message:    fmt.Sprintf(format, args...),
	}
}
