package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fileops/internal/app"
	"fileops/internal/config"
	"fileops/internal/logging"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T, remote http.Handler) (Env, *bytes.Buffer, afero.Fs) {
	t.Helper()
	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	memFs := afero.NewMemMapFs()
	cfg := &config.Config{
		DBDriver:                config.DriverSQLite,
		SQLitePath:              filepath.Join(t.TempDir(), "ops.db"),
		GatewayURL:              srv.URL,
		GatewayProbeTimeout:     time.Second,
		GatewayNegotiateTimeout: time.Second,
		GatewayTransferTimeout:  time.Second,
		DownloadSink:            config.SinkLocal,
		DownloadDir:             "/downloads",
		DefaultUserID:           "cli-user",
		DefaultMediaCategory:    "uploads",
	}

	out := &bytes.Buffer{}
	env := Env{
		Fs:  memFs,
		Out: out,
		Open: func(ctx context.Context) (*app.App, error) {
			return app.New(ctx, cfg, logging.Discard(), app.Options{Fs: memFs})
		},
	}
	return env, out, memFs
}

func run(env Env, args ...string) error {
	root := NewRootCommand(env)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.Execute()
}

func remoteStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/health":
			_, _ = w.Write([]byte(`{"ok":true}`))
		case strings.HasPrefix(r.URL.Path, "/api/upload/"):
			_, _ = io.Copy(io.Discard, r.Body)
			_, _ = w.Write([]byte(`{"success":true,"file":{"storedName":"a_1.png","url":"https://cdn/a_1.png","s3Key":"k"}}`))
		case strings.HasPrefix(r.URL.Path, "/api/export/"):
			_, _ = w.Write([]byte(`{"success":true,"export":{"storedName":"d_1.csv"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":"File not found"}`))
		}
	})
}

func TestHealthCommand(t *testing.T) {
	env, out, _ := newTestEnv(t, remoteStub())
	require.NoError(t, run(env, "health"))

	var report map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, true, report["overall_healthy"])
	assert.Equal(t, "connected", report["ledger_status"])
}

func TestUploadThenHistoryAndMedia(t *testing.T) {
	env, out, memFs := newTestEnv(t, remoteStub())
	require.NoError(t, afero.WriteFile(memFs, "/work/a.png", []byte("png"), 0o644))

	require.NoError(t, run(env, "upload", "/work/a.png", "--category", "avatars"))
	assert.Contains(t, out.String(), `"success": true`)

	out.Reset()
	require.NoError(t, run(env, "history", "--user", "cli-user", "--limit", "5"))
	var ops []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "completed", ops[0]["status"])

	out.Reset()
	require.NoError(t, run(env, "media", "categories"))
	assert.JSONEq(t, `["avatars"]`, out.String())

	out.Reset()
	require.NoError(t, run(env, "media", "stats"))
	var stats map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["images"])
}

func TestDownloadFailureExitsNonZero(t *testing.T) {
	env, out, _ := newTestEnv(t, remoteStub())

	err := run(env, "download", "missing", "x.txt")
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, out.String(), "Failed to get download URL: File not found")
}

func TestExportCommand(t *testing.T) {
	env, out, memFs := newTestEnv(t, remoteStub())
	require.NoError(t, afero.WriteFile(memFs, "/work/rows.json", []byte(`[{"a":1},{"a":2}]`), 0o644))

	require.NoError(t, run(env, "export", "/work/rows.json", "--format", "csv", "--name", "rows.csv"))
	assert.Contains(t, out.String(), "Data exported successfully as CSV")

	assert.Error(t, run(env, "export", "/work/rows.json"), "--name is required")
	assert.Error(t, run(env, "export", "/work/missing.json", "--name", "x.json"))
}

func TestStatsAndMigrate(t *testing.T) {
	env, out, _ := newTestEnv(t, remoteStub())

	require.NoError(t, run(env, "migrate"))
	assert.Contains(t, out.String(), "00001_file_operations.sql")

	out.Reset()
	require.NoError(t, run(env, "stats"))
	var stats map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.EqualValues(t, 0, stats["total_operations"])
}
