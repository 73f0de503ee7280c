package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fileops/internal/config"
	"fileops/internal/ledger"
	"fileops/internal/logging"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, remote string) *config.Config {
	t.Helper()
	return &config.Config{
		DBDriver:                config.DriverSQLite,
		SQLitePath:              filepath.Join(t.TempDir(), "ops.db"),
		GatewayURL:              remote,
		GatewayProbeTimeout:     time.Second,
		GatewayNegotiateTimeout: time.Second,
		GatewayTransferTimeout:  time.Second,
		DownloadSink:            config.SinkLocal,
		DownloadDir:             "/downloads",
		UploadTempDir:           "/spool",
		MaxUploadBytes:          1 << 20,
		DefaultUserID:           "default-user",
		DefaultMediaCategory:    "uploads",
	}
}

func TestNew_WiresExportThroughLedger(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case strings.HasPrefix(r.URL.Path, "/api/export/json/"):
			_, _ = w.Write([]byte(`{"success":true,"export":{"storedName":"n_1.json","size":12}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(remote.Close)

	a, err := New(context.Background(), testConfig(t, remote.URL), logging.Discard(), Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	report := a.SelfTest(context.Background())
	assert.True(t, report.OverallHealthy)
	assert.Equal(t, ledger.StateConnected, report.LedgerStatus)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/exports", "application/json",
		strings.NewReader(`{"data":[1,2],"format":"json","file_name":"n.json","user_id":"dana"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])

	ops := a.Ledger.List(context.Background(), "dana", 10)
	require.Len(t, ops, 1)
	assert.Equal(t, "completed", string(ops[0].Status))
}

func TestNew_NoLedger(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.DBDriver = config.DriverNone

	a, err := New(context.Background(), cfg, logging.Discard(), Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	assert.Nil(t, a.DB)
	assert.False(t, a.Ledger.Configured())
	assert.NoError(t, a.Close())

	report := a.Health.Check(context.Background())
	assert.Equal(t, ledger.StateNotConfigured, report.LedgerStatus)
	assert.False(t, report.OverallHealthy)
}

func TestNew_RejectsBadGatewayURL(t *testing.T) {
	cfg := testConfig(t, "not a url")
	_, err := New(context.Background(), cfg, logging.Discard(), Options{Fs: afero.NewMemMapFs()})
	assert.Error(t, err)
}
