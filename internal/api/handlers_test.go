package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv   *httptest.Server
	coord *coordinator.Coordinator
	root  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Library.Root = root
	cfg.API.AccessKey = "k"

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	coord, err := coordinator.New(context.Background(), coordinator.Options{Config: cfg, Store: db})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(coord, cfg.API, nil, nil).Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, coord: coord, root: root}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+"/api/v1"+path, &buf)
	require.NoError(t, err)
	req.Header.Set(AccessKeyHeader, "k")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) file(t *testing.T, rel string) string {
	t.Helper()
	path := filepath.Join(ts.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(rel), 0644))
	return path
}

func TestScanHistoryAndRollbackFlow(t *testing.T) {
	ts := newTestServer(t)
	src := ts.file(t, "tv/Show Name/Show.Name.S02E05.mkv")

	var preview struct {
		Operations []map[string]interface{} `json:"operations"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/scan/preview", nil, &preview))
	assert.Len(t, preview.Operations, 1)
	assert.FileExists(t, src)

	var scan struct {
		Outcome string            `json:"outcome"`
		Run     database.ScanRun  `json:"run"`
		Applied []json.RawMessage `json:"applied"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/scan", nil, &scan))
	assert.Equal(t, "completed", scan.Outcome)
	assert.Len(t, scan.Applied, 1)
	assert.NoFileExists(t, src)

	var runs []database.ScanRun
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/runs?changes_only=true", nil, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, scan.Run.ID, runs[0].ID)

	var shows []database.ShowSummary
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/shows", nil, &shows))
	require.Len(t, shows, 1)
	assert.Equal(t, "Show Name", shows[0].Show)

	var grouped struct {
		Groups []struct {
			Label   string            `json:"label"`
			Records []json.RawMessage `json:"records"`
		} `json:"groups"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/shows/records?show=Show%20Name&group=season", nil, &grouped))
	require.Len(t, grouped.Groups, 1)

	var rb struct {
		Outcome    string            `json:"outcome"`
		RolledBack []json.RawMessage `json:"rolled_back"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/rollback/season",
		map[string]string{"show": "Show Name", "season": "Season 2"}, &rb))
	assert.Equal(t, "completed", rb.Outcome)
	assert.Len(t, rb.RolledBack, 1)
	assert.FileExists(t, src)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/rollback/run/nope", nil, nil))
}

func TestPathScanValidation(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/scan/path", map[string]string{}, nil))

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/scan/path", map[string]string{"path": "/etc"}, &body))
	assert.Equal(t, "outside_root", body["code"])
}

func TestRulesEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]interface{}
	code := ts.do(t, http.MethodPut, "/rules", map[string][]string{"season_episode": {`S(\d+)E(\d+)`, `(`}}, &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_pattern", body["code"])
	assert.Equal(t, float64(1), body["index"])

	var rules map[string][]string
	code = ts.do(t, http.MethodPut, "/rules", map[string][]string{"season_episode": {`(\d+)x(\d+)`}, "episode_only": {}}, &rules)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{`(\d+)x(\d+)`}, rules["season_episode"])

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/rules", nil, &rules))
	assert.Equal(t, []string{`(\d+)x(\d+)`}, rules["season_episode"])
}

func TestWhitelistEndpoints(t *testing.T) {
	ts := newTestServer(t)
	dir := filepath.Join(ts.root, "tv", "Keep")
	require.NoError(t, os.MkdirAll(dir, 0755))

	assert.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/whitelist", map[string]string{"path": dir}, nil))
	assert.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/whitelist/batch", map[string]interface{}{
		"entries": []map[string]string{{"path": "/a.mkv", "type": "file"}, {"path": "/b", "type": "directory"}},
	}, nil))
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/whitelist/batch", map[string]interface{}{
		"entries": []map[string]string{{"path": "/c.mkv", "type": "file"}, {"path": "/d", "type": "bogus"}},
	}, nil))

	var entries []map[string]interface{}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/whitelist", nil, &entries))
	require.Len(t, entries, 3)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/whitelist?path=/a.mkv", nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/whitelist?path=/a.mkv", nil, nil))
}

func TestSchedulerAndStatus(t *testing.T) {
	ts := newTestServer(t)

	var state schedulerState
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/scheduler", schedulerState{Enabled: false}, &state))
	assert.False(t, state.Enabled)

	var st coordinator.Status
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/status", nil, &st))
	assert.Equal(t, coordinator.StateIdle, st.State)
	assert.False(t, st.SchedulerEnabled)

	var stats database.Stats
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/stats", nil, &stats))
	assert.Zero(t, stats.Records)

	var cancelled map[string]bool
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/scan/cancel", nil, &cancelled))
	assert.False(t, cancelled["cancelled"])
}

func TestUnauthorizedWithoutKey(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.srv.URL + "/api/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(ts.srv.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
