package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/api/control"
	"oidworker/internal/api/health"
	"oidworker/internal/domain/jobrun"
	"oidworker/internal/domain/market"
	"oidworker/internal/session"
	"oidworker/internal/testsupport"
	"oidworker/internal/workers"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

const testSecret = "s3cret"

var testNow = time.Date(2025, 1, 8, 10, 40, 0, 0, time.UTC)

type fakeRunner struct {
	mu      sync.Mutex
	targets []string
	ctxErrs []error
	err     error
}

func (f *fakeRunner) RunNow(ctx context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.err
}

type fakeRunning []string

func (f fakeRunning) Running() []string { return f }

type fakeSessions struct{}

func (fakeSessions) Symbols(at time.Time) []session.SymbolState {
	return []session.SymbolState{
		{Symbol: market.XAUUSD, State: session.State{Open: true, Reason: "ifc_metal_open", SessionTime: at}},
		{Symbol: market.BTCUSD, State: session.State{Open: true, Reason: "always_open", SessionTime: at}},
	}
}

func (fakeSessions) Modes() map[string]string {
	return map[string]string{"XAUUSD": "auto", "THBUSD": "auto", "BTCUSD": "auto"}
}

type fakePinger struct{ err error }

func (f fakePinger) Health(ctx context.Context) error { return f.err }

type serverFixture struct {
	store  *testsupport.JobRunStore
	runner *fakeRunner
	server *Server
}

func newServerFixture(t *testing.T, secret string, checks map[string]health.Pinger) *serverFixture {
	t.Helper()
	store := testsupport.NewJobRunStore()
	runner := &fakeRunner{}
	hh := health.New(health.Config{
		ServiceName:          "oidworker",
		Version:              "test",
		RelationStaleMinutes: 35,
		OptionsStaleMinutes:  35,
	}, jobrun.NewService(store), fakeRunning{"cme_30m"}, fakeSessions{}, checks).WithClock(func() time.Time { return testNow })
	ch := control.NewHandler(runner, 0)
	srv := NewServer(ServerConfig{Secret: secret}, hh, ch, logger.NewNop())
	return &serverFixture{store: store, runner: runner, server: srv}
}

func (f *serverFixture) do(t *testing.T, method, path, body string, secret string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if secret != "" {
		req.Header.Set(control.SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func (f *serverFixture) addRun(t *testing.T, job jobrun.JobName, status jobrun.Status, startedAt time.Time, meta jobrun.Metadata) {
	t.Helper()
	require.NoError(t, f.store.Insert(context.Background(), jobrun.NewRun(job, status, startedAt, startedAt.Add(time.Second), meta)))
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)
	rec, body := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestNotFound(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodPost, "/health"},
		{http.MethodGet, "/run-now"},
	} {
		rec, body := f.do(t, tc.method, tc.path, "", testSecret)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method+" "+tc.path)
		assert.Equal(t, "not found", body["error"])
	}
}

func TestSecuredRoutes_Secret(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newServerFixture(t, "", nil)
		for _, tc := range []struct{ method, path string }{
			{http.MethodGet, "/health/details"},
			{http.MethodPost, "/run-now"},
		} {
			rec, body := f.do(t, tc.method, tc.path, `{"job":"both"}`, "anything")
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, "worker control secret not configured", body["error"])
		}
		assert.Empty(t, f.runner.targets)
	})

	t.Run("wrong secret", func(t *testing.T) {
		f := newServerFixture(t, testSecret, nil)
		rec, body := f.do(t, http.MethodGet, "/health/details", "", "wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", body["error"])

		rec, _ = f.do(t, http.MethodPost, "/run-now", `{"job":"both"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, f.runner.targets)
	})
}

func TestHealthDetails(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)
	// relation: an old success then a recent market-closed skip
	f.addRun(t, jobrun.JobRelation, jobrun.StatusSuccess, testNow.Add(-3*time.Hour), nil)
	f.addRun(t, jobrun.JobRelation, jobrun.StatusSkipped, testNow.Add(-2*time.Hour), jobrun.Metadata{"reason": jobrun.ReasonRelationMarketClosed})
	// options: a failure 40m30s ago
	f.addRun(t, jobrun.JobOptions, jobrun.StatusFailed, testNow.Add(-40*time.Minute-30*time.Second), nil)

	rec, body := f.do(t, http.MethodGet, "/health/details", "", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "2025-01-08T10:40:00Z", body["now_utc"])
	assert.Equal(t, []interface{}{"cme_30m"}, body["running_jobs"])

	latest := body["latest_jobs"].([]interface{})
	require.Len(t, latest, 2)
	assert.Equal(t, "cme_30m", latest[0].(map[string]interface{})["job_name"])
	assert.Equal(t, "relation_30m", latest[1].(map[string]interface{})["job_name"])
	assert.Equal(t, "skipped", latest[1].(map[string]interface{})["status"])

	alerts := body["alerts"].(map[string]interface{})
	assert.Equal(t, false, alerts["relation_stale"])
	assert.Equal(t, float64(120), alerts["relation_age_min"])
	assert.Equal(t, "skipped", alerts["relation_last_status"])
	assert.Equal(t, jobrun.ReasonRelationMarketClosed, alerts["relation_skip_reason"])

	assert.Equal(t, true, alerts["cme_stale"])
	assert.Equal(t, float64(41), alerts["cme_age_min"])
	assert.Equal(t, "failed", alerts["cme_last_status"])
	assert.Nil(t, alerts["cme_skip_reason"])

	sessions := body["symbol_sessions"].([]interface{})
	require.Len(t, sessions, 2)
	first := sessions[0].(map[string]interface{})
	assert.Equal(t, "XAUUSD", first["symbol"])
	assert.Equal(t, true, first["open"])
	assert.Equal(t, "ifc_metal_open", first["reason"])
	assert.Equal(t, "auto", body["symbol_session_modes"].(map[string]interface{})["BTCUSD"])
}

func TestHealthDetails_NoRuns(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)
	rec, body := f.do(t, http.MethodGet, "/health/details", "", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	alerts := body["alerts"].(map[string]interface{})
	assert.Equal(t, true, alerts["relation_stale"])
	assert.Equal(t, true, alerts["cme_stale"])
	assert.Nil(t, alerts["relation_age_min"])
	assert.Nil(t, alerts["cme_last_status"])
	assert.Equal(t, []interface{}{}, body["latest_jobs"])
}

func TestHealthDetails_VenueClosedSkipNotStale(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)
	f.addRun(t, jobrun.JobOptions, jobrun.StatusSkipped, testNow.Add(-10*time.Hour), jobrun.Metadata{"reason": jobrun.ReasonVenueSessionClosed})
	f.addRun(t, jobrun.JobRelation, jobrun.StatusSkipped, testNow.Add(-10*time.Hour), jobrun.Metadata{"reason": jobrun.ReasonOverlap})

	_, body := f.do(t, http.MethodGet, "/health/details", "", testSecret)
	alerts := body["alerts"].(map[string]interface{})
	assert.Equal(t, false, alerts["cme_stale"])
	assert.Equal(t, true, alerts["relation_stale"])
	assert.Equal(t, jobrun.ReasonOverlap, alerts["relation_skip_reason"])
}

func TestHealthDetails_StoreError(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)
	f.store.Err = errors.New("connection refused")

	rec, body := f.do(t, http.MethodGet, "/health/details", "", testSecret)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["error"], "connection refused")
	assert.Equal(t, []interface{}{"cme_30m"}, body["running_jobs"])
}

func TestRunNow(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)

	for _, target := range workers.Targets {
		rec, body := f.do(t, http.MethodPost, "/run-now", `{"job":"`+target+`"}`, testSecret)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, target, body["job"])
	}
	assert.Equal(t, workers.Targets, f.runner.targets)
}

func TestRunNow_BadRequest(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)

	for _, payload := range []string{`{"job":"all"}`, `{}`, ``, `not json`} {
		rec, body := f.do(t, http.MethodPost, "/run-now", payload, testSecret)
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
		assert.NotEmpty(t, body["error"])
	}
	_, body := f.do(t, http.MethodPost, "/run-now", `{"job":"x"}`, testSecret)
	assert.Equal(t, "job must be one of: relation, cme, options-snapshot, both", body["error"])
	assert.Empty(t, f.runner.targets)
}

func TestRunNow_Failure(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)
	f.runner.err = errors.New("record job run: insert job run: db down")

	rec, body := f.do(t, http.MethodPost, "/run-now", `{"job":"relation"}`, testSecret)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "record job run: insert job run: db down", body["error"])
}

func TestRunNow_RateLimited(t *testing.T) {
	runner := &fakeRunner{}
	hh := health.New(health.Config{}, jobrun.NewService(testsupport.NewJobRunStore()), fakeRunning{}, fakeSessions{}, nil)
	srv := NewServer(ServerConfig{Secret: testSecret}, hh, control.NewHandler(runner, 1), logger.NewNop())

	codes := make([]int, 0, 2)
	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/run-now", strings.NewReader(`{"job":"cme"}`))
		req.Header.Set(control.SecretHeader, testSecret)
		last = httptest.NewRecorder()
		srv.Handler().ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Len(t, runner.targets, 1)
	assert.Contains(t, last.Body.String(), errors.ErrRateLimitExceeded.Error())
}

func TestRunNow_DetachedFromClientContext(t *testing.T) {
	f := newServerFixture(t, testSecret, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/run-now", strings.NewReader(`{"job":"options-snapshot"}`)).WithContext(ctx)
	req.Header.Set(control.SecretHeader, testSecret)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{workers.TargetOptionsSnapshot}, f.runner.targets)
	assert.Equal(t, []error{nil}, f.runner.ctxErrs)
}

func TestReadiness(t *testing.T) {
	f := newServerFixture(t, testSecret, map[string]health.Pinger{"postgres": fakePinger{}})
	rec, body := f.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	f = newServerFixture(t, testSecret, map[string]health.Pinger{
		"postgres": fakePinger{},
		"redis":    fakePinger{err: errors.New("dial tcp: refused")},
	})
	rec, body = f.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "dial tcp: refused", checks["redis"].(map[string]interface{})["error"])
}
