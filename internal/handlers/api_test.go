package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.uuxo.net/uuxo/maxdiskusage/internal/audit"
	"git.uuxo.net/uuxo/maxdiskusage/internal/auth"
	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
	"git.uuxo.net/uuxo/maxdiskusage/internal/guard"
	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
	"git.uuxo.net/uuxo/maxdiskusage/internal/ratelimit"
)

var (
	healthy = policy.Snapshot{BlockSize: 4096, Available: 900_000, Total: 1_000_000}
	full    = policy.Snapshot{BlockSize: 4096, Available: 10, Total: 1_000_000}
)

type switchProbe struct {
	mu   sync.Mutex
	snap policy.Snapshot
	err  error
}

func (p *switchProbe) Stat(string) (policy.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, p.err
}

func (p *switchProbe) set(s policy.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = s
}

type fixture struct {
	probe *switchProbe
	guard *guard.Guard
	api   *API
	db    *guard.DB
	mux   *http.ServeMux
}

func newFixture(t *testing.T, action string, withDB bool) *fixture {
	t.Helper()
	probe := &switchProbe{snap: healthy}
	g := guard.New(guard.Options{
		Store: config.NewStore(config.GuardConfig{
			MinFreeMB: 100, MaxUsedPercent: 100, Action: action, MonitoredPath: t.TempDir(),
		}),
		Probe:     probe,
		Evaluator: policy.NewEvaluator(ratelimit.New()),
	})
	a, err := auth.New(config.PrivilegesConfig{Users: []string{"root"}}, config.SecurityConfig{})
	require.NoError(t, err)

	var db *guard.DB
	if withDB {
		db, err = guard.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), g)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		_, err = db.Unguarded().Exec("CREATE TABLE items (name TEXT)")
		require.NoError(t, err)
	}

	api := NewAPI(g, a, db, "test")
	mux := http.NewServeMux()
	api.Register(mux)
	return &fixture{probe: probe, guard: g, api: api, db: db, mux: mux}
}

func (f *fixture) post(path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(auth.UserHeader, user)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeDecision(t *testing.T, rec *httptest.ResponseRecorder) ExecResponse {
	t.Helper()
	var resp ExecResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAdmitEndpoint(t *testing.T) {
	f := newFixture(t, "BLOCK", false)
	body := `{"statement":"INSERT INTO items VALUES ('a')"}`

	rec := f.post("/v1/admit", "app", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeDecision(t, rec)
	assert.Equal(t, "allow", resp.Outcome)
	assert.Equal(t, "insert", resp.Kind)
	assert.Equal(t, "app", resp.User)

	f.probe.set(full)
	rec = f.post("/v1/admit", "app", body)
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
	resp = decodeDecision(t, rec)
	assert.Equal(t, "block", resp.Outcome)
	assert.Equal(t, "free_space_below_minimum", resp.Reason)
	assert.Contains(t, resp.Message, "is less than 100 MB")

	rec = f.post("/v1/admit", "root", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "allow", decodeDecision(t, rec).Outcome)

	rec = f.post("/v1/admit", "app", `{"statement":"SELECT 1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmitEndpointWarns(t *testing.T) {
	f := newFixture(t, "WARN", false)
	f.probe.set(full)

	rec := f.post("/v1/admit", "app", `{"statement":"UPDATE items SET name = 'b'"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(WarningHeader), "Free filesystem space")
	assert.Equal(t, "warn", decodeDecision(t, rec).Outcome)
}

func TestAdmitEndpointBadRequests(t *testing.T) {
	f := newFixture(t, "BLOCK", false)

	req := httptest.NewRequest(http.MethodGet, "/v1/admit", nil)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Equal(t, http.StatusBadRequest, f.post("/v1/admit", "app", "{").Code)
	assert.Equal(t, http.StatusBadRequest, f.post("/v1/admit", "app", `{"statement":""}`).Code)
}

func TestAdmitEndpointRequiresToken(t *testing.T) {
	g := guard.New(guard.Options{
		Store:     config.NewStore(config.GuardConfig{MaxUsedPercent: 100, Action: "BLOCK", MonitoredPath: "/"}),
		Probe:     &switchProbe{snap: healthy},
		Evaluator: policy.NewEvaluator(ratelimit.New()),
	})
	a, err := auth.New(config.PrivilegesConfig{}, config.SecurityConfig{
		EnableJWT: true, JWTSecret: "secret", JWTAlgorithm: "HS256",
	})
	require.NoError(t, err)
	mux := http.NewServeMux()
	NewAPI(g, a, nil, "test").Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/v1/admit", strings.NewReader(`{"statement":"INSERT INTO t VALUES (1)"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := a.IssueToken("app", false, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/v1/admit", strings.NewReader(`{"statement":"INSERT INTO t VALUES (1)"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExecEndpoint(t *testing.T) {
	f := newFixture(t, "BLOCK", true)

	rec := f.post("/v1/exec", "app", `{"statement":"INSERT INTO items VALUES (?)","args":["first"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decodeDecision(t, rec).RowsAffected)

	f.probe.set(full)
	rec = f.post("/v1/exec", "app", `{"statement":"INSERT INTO items VALUES (?)","args":["second"]}`)
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)

	rec = f.post("/v1/exec", "app", `{"statement":"SELECT name FROM items"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeDecision(t, rec)
	assert.Equal(t, []string{"name"}, resp.Columns)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "first", resp.Rows[0]["name"])

	rec = f.post("/v1/exec", "app", `{"statement":"INSERT INTO missing VALUES (1)"}`)
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)

	rec = f.post("/v1/exec", "app", `{"statement":"SELECT 1; INSERT INTO items VALUES ('third')"}`)
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
	assert.Equal(t, "insert", decodeDecision(t, rec).Kind)
	var n int
	require.NoError(t, f.db.Unguarded().QueryRow("SELECT count(*) FROM items").Scan(&n))
	assert.Equal(t, 1, n)

	f.probe.set(healthy)
	rec = f.post("/v1/exec", "app", `{"statement":"INSERT INTO missing VALUES (1)"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecEndpointWithoutDB(t *testing.T) {
	f := newFixture(t, "BLOCK", false)
	rec := f.post("/v1/exec", "app", `{"statement":"INSERT INTO items VALUES (1)"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, "BLOCK", false)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "BLOCK", resp.Action)
	assert.EqualValues(t, 100, resp.MinFreeMB)
	assert.Equal(t, healthy.FreeMB(), resp.FreeMB)
	assert.Empty(t, resp.StatError)
	assert.NotNil(t, resp.Disk)

	f.probe.mu.Lock()
	f.probe.err = errors.New("device gone")
	f.probe.mu.Unlock()
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "device gone", resp.StatError)
}

type fakeHistory struct {
	records []audit.Record
	err     error
	asked   int64
}

func (h *fakeHistory) Recent(_ context.Context, n int64) ([]audit.Record, error) {
	h.asked = n
	return h.records, h.err
}

func TestStatusEndpointHistory(t *testing.T) {
	f := newFixture(t, "BLOCK", false)
	h := &fakeHistory{records: []audit.Record{{User: "app", Outcome: "block", Reason: "free_space_below_minimum"}}}
	f.api.WithHistory(h)

	status := func() StatusResponse {
		rec := httptest.NewRecorder()
		f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := status()
	assert.EqualValues(t, recentRecords, h.asked)
	require.Len(t, resp.Recent, 1)
	assert.Equal(t, "app", resp.Recent[0].User)
	assert.Empty(t, resp.HistoryError)

	h.records, h.err = nil, errors.New("connection refused")
	resp = status()
	assert.Empty(t, resp.Recent)
	assert.Equal(t, "connection refused", resp.HistoryError)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, "BLOCK", false)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, "BLOCK", false)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/admit", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, WarningHeader, rec.Header().Get("Access-Control-Expose-Headers"))
}
