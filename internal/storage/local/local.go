package local

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"fileops/internal/storage"

	"github.com/spf13/afero"
)

// Writer 将下载内容原子写入本地目录：先写临时文件，再 rename。
type Writer struct {
	fs      afero.Fs
	baseDir string
}

// NewWriter 创建本地写入器，fs 为 nil 时使用真实文件系统。
func NewWriter(fs afero.Fs, baseDir string) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{fs: fs, baseDir: baseDir}
}

// Write 写入 baseDir/key，key 不能逃出 baseDir。
func (w *Writer) Write(ctx context.Context, key string, r io.Reader, _ storage.WriteOptions) (storage.Location, error) {
	if w == nil {
		return storage.Location{}, fmt.Errorf("local writer uninitialized")
	}

	select {
	case <-ctx.Done():
		return storage.Location{}, ctx.Err()
	default:
	}

	clean := storage.Key("", key)
	if clean == "" {
		return storage.Location{}, fmt.Errorf("empty destination key")
	}

	targetPath := filepath.Join(w.baseDir, filepath.FromSlash(clean))
	dir := filepath.Dir(targetPath)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return storage.Location{}, fmt.Errorf("ensure dir: %w", err)
	}

	file, err := afero.TempFile(w.fs, dir, "."+filepath.Base(targetPath)+".*.tmp")
	if err != nil {
		return storage.Location{}, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := file.Name()

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		w.fs.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("write file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		w.fs.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		w.fs.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("close file: %w", err)
	}

	if err := w.fs.Rename(tempPath, targetPath); err != nil {
		w.fs.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("rename temp file: %w", err)
	}

	return storage.Location{Path: targetPath}, nil
}
