package storage

import (
	"context"
	"io"
	"path"
	"strings"
)

// Writer 定义下载落盘的写接口，支持流式写入。
type Writer interface {
	Write(ctx context.Context, key string, r io.Reader, opts WriteOptions) (Location, error)
}

// WriteOptions 是写入时的可选属性。Size 未知时为 -1。
type WriteOptions struct {
	ContentType string
	Size        int64
}

// Location 描述已经写入对象的可访问信息。
type Location struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// Key 把目标目录与文件名拼成相对 key，并去掉所有 ".." 与前导 "/"。
func Key(destination, fileName string) string {
	joined := path.Join("/", strings.ReplaceAll(destination, "\\", "/"), strings.ReplaceAll(fileName, "\\", "/"))
	return strings.TrimPrefix(joined, "/")
}
