package s3

import (
	"context"
	"testing"

	"fileops/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "mirror/reports/a.csv", ObjectKey("mirror", "reports/a.csv"))
	assert.Equal(t, "mirror/a.csv", ObjectKey("/mirror/", "../a.csv"))
	assert.Equal(t, "a.csv", ObjectKey("", "a.csv"))
	assert.Empty(t, ObjectKey("mirror", ""))
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Endpoint: "localhost:9000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestWrite_Uninitialized(t *testing.T) {
	var w *Writer
	_, err := w.Write(context.Background(), "a.csv", nil, storage.WriteOptions{})
	assert.Error(t, err)
}
