package repository

import "errors"

// ErrNotFound 表示目标记录不存在。
var ErrNotFound = errors.New("repository: record not found")

// ErrInvalidTransition 表示记录已处于终态，状态不可再变更。
var ErrInvalidTransition = errors.New("repository: operation already in terminal state")
