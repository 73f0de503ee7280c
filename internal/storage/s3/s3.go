package s3

import (
	"context"
	"fmt"
	"io"
	"path"

	"fileops/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config 包含 S3/MinIO 下载镜像所需的配置。
type Config struct {
	Endpoint  string // 不含协议，如 "localhost:9000" 或 "s3.amazonaws.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string // 所有对象 key 的公共前缀
}

// Writer 把下载内容写入 S3 兼容存储。
type Writer struct {
	client *minio.Client
	bucket string
	prefix string
}

// New 创建 S3 写入器，bucket 不存在时自动创建。
func New(ctx context.Context, cfg Config) (*Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 download sink: bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download sink: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, err
	}
	return &Writer{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	ok, err := client.BucketExists(ctx, bucket)
	switch {
	case err != nil:
		return fmt.Errorf("lookup bucket %q: %w", bucket, err)
	case ok:
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("make bucket %q: %w", bucket, err)
	}
	return nil
}

// Write 以 prefix/key 为对象名上传。
func (w *Writer) Write(ctx context.Context, key string, r io.Reader, opts storage.WriteOptions) (storage.Location, error) {
	if w == nil || w.client == nil {
		return storage.Location{}, fmt.Errorf("s3 writer uninitialized")
	}

	objectKey := ObjectKey(w.prefix, key)
	if objectKey == "" {
		return storage.Location{}, fmt.Errorf("empty destination key")
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := opts.Size
	if size == 0 {
		size = -1
	}

	info, err := w.client.PutObject(ctx, w.bucket, objectKey, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return storage.Location{}, fmt.Errorf("put object: %w", err)
	}

	return storage.Location{
		Path: info.Key,
		URL:  fmt.Sprintf("s3://%s/%s", w.bucket, info.Key),
	}, nil
}

// ObjectKey 拼接前缀与清理后的 key。
func ObjectKey(prefix, key string) string {
	clean := storage.Key("", key)
	if clean == "" {
		return ""
	}
	if prefix == "" {
		return clean
	}
	return path.Join(storage.Key("", prefix), clean)
}
