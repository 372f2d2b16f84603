package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator(t *testing.T, root string) *coordinator.Coordinator {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Library.Root = root
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c, err := coordinator.New(context.Background(), coordinator.Options{Config: cfg, Store: db})
	require.NoError(t, err)
	return c
}

func TestServerHealth(t *testing.T) {
	server := NewServer(ServerConfig{Addr: ":0", Coordinator: newCoordinator(t, t.TempDir())})

	w := httptest.NewRecorder()
	server.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, coordinator.StateIdle, resp.State)
}

func TestServerHealthUnhealthy(t *testing.T) {
	server := NewServer(ServerConfig{Addr: ":0", Coordinator: newCoordinator(t, t.TempDir())})
	server.SetHealthy(false)

	w := httptest.NewRecorder()
	server.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "unhealthy", resp.Status)
}

func TestServerReady(t *testing.T) {
	server := NewServer(ServerConfig{Addr: ":0", Coordinator: newCoordinator(t, t.TempDir())})

	w := httptest.NewRecorder()
	server.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Ready)
	require.NotNil(t, resp.Disk)
	assert.True(t, resp.Disk.Writable)
}

func TestServerReadyMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "gone")
	server := NewServer(ServerConfig{Addr: ":0", Coordinator: newCoordinator(t, root)})

	w := httptest.NewRecorder()
	server.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServerMetricsAndAPI(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	server := NewServer(ServerConfig{
		Addr:        ":0",
		Coordinator: newCoordinator(t, t.TempDir()),
		Metrics:     metrics.New(),
		API:         api,
	})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestDaemonRunStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tv"), 0755))
	coord := newCoordinator(t, root)

	server := NewServer(ServerConfig{Addr: "127.0.0.1:0", Coordinator: coord})
	d, err := New(Config{
		Coordinator: coord,
		Server:      server,
		Watch:       true,
		Debounce:    time.Second,
		Layout:      media.NewLayout(root, nil),
		Extensions:  media.DefaultExtensions(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
