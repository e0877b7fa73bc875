package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/internal/auth"
	"outreach/internal/config"
	"outreach/internal/jobs"
	"outreach/internal/prefs"
)

type fakePrefs struct {
	saved map[uint64]prefs.SaveInput
}

func (f *fakePrefs) Get(_ context.Context, uid uint64) (*prefs.Preferences, error) {
	in, ok := f.saved[uid]
	if !ok {
		return nil, prefs.ErrNotFound
	}
	return &prefs.Preferences{UserID: uid, Enabled: in.Enabled, ScheduleDays: in.Days, ScheduleTime: in.Time, Timezone: in.Timezone}, nil
}

func (f *fakePrefs) Save(ctx context.Context, uid uint64, in prefs.SaveInput) (*prefs.Preferences, error) {
	if _, err := in.Validate(); err != nil {
		return nil, err
	}
	f.saved[uid] = in
	return f.Get(ctx, uid)
}

func (f *fakePrefs) Disable(_ context.Context, uid uint64) error {
	in, ok := f.saved[uid]
	if !ok {
		return prefs.ErrNotFound
	}
	in.Enabled = false
	f.saved[uid] = in
	return nil
}

type fakeJobs struct {
	jobs   map[uint64]*jobs.Job
	ran    []uint64
	failed map[uint64]string
}

func (f *fakeJobs) Job(_ context.Context, uid uint64) (*jobs.Job, error) {
	j, ok := f.jobs[uid]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobs) Logs(_ context.Context, uid uint64, limit int) ([]jobs.ExecutionLog, error) {
	return []jobs.ExecutionLog{{ID: 1, UserID: uid, Status: jobs.LogSuccess}}, nil
}

func (f *fakeJobs) ForceRun(_ context.Context, uid uint64) error {
	j, ok := f.jobs[uid]
	if !ok {
		return jobs.ErrNotFound
	}
	if j.Status == jobs.StatusRunning {
		return jobs.ErrAlreadyRunning
	}
	f.ran = append(f.ran, uid)
	return nil
}

func (f *fakeJobs) SimulateFailure(_ context.Context, uid uint64, msg string) error {
	f.failed[uid] = msg
	return nil
}

func (f *fakeJobs) Reset(_ context.Context, uid uint64) error {
	j, ok := f.jobs[uid]
	if !ok {
		return jobs.ErrNotFound
	}
	j.Status, j.RetryCount = jobs.StatusScheduled, 0
	return nil
}

func (f *fakeJobs) Delete(_ context.Context, uid uint64) error {
	if _, ok := f.jobs[uid]; !ok {
		return jobs.ErrNotFound
	}
	delete(f.jobs, uid)
	return nil
}

func (f *fakeJobs) TrackerState() jobs.TrackerState {
	return jobs.TrackerState{MaxConcurrent: 5, Running: []jobs.RunningJob{}}
}

type testServer struct {
	h          http.Handler
	jwt        *auth.JWT
	prefs      *fakePrefs
	jobs       *fakeJobs
	userToken  string
	adminToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		jwt:   auth.NewJWT("secret"),
		prefs: &fakePrefs{saved: map[uint64]prefs.SaveInput{}},
		jobs: &fakeJobs{
			jobs: map[uint64]*jobs.Job{
				1: {ID: 10, UserID: 1, Status: jobs.StatusFailed, RetryCount: 4, NextRunAt: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)},
				2: {ID: 20, UserID: 2, Status: jobs.StatusRunning},
			},
			failed: map[uint64]string{},
		},
	}
	var err error
	s.userToken, err = s.jwt.Sign(1, false)
	require.NoError(t, err)
	s.adminToken, err = s.jwt.Sign(99, true)
	require.NoError(t, err)

	s.h = NewRouter(Deps{
		Config:  config.Config{AdminRatePerSec: 1000},
		JWT:     s.jwt,
		Prefs:   s.prefs,
		Jobs:    s.jobs,
		Log:     zerolog.Nop(),
		Metrics: prometheus.NewRegistry(),
	})
	return s
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = s.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Preferences(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/preferences", "", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/preferences", s.userToken, "").Code)

	rec := s.do(http.MethodPut, "/preferences", s.userToken,
		`{"enabled":true,"days":["mon","wed"],"time":"09:30","timezone":"Europe/Berlin","contacts_per_day":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["enabled"])
	assert.Equal(t, "Europe/Berlin", got["timezone"])

	rec = s.do(http.MethodPut, "/preferences", s.userToken, `{"enabled":true,"days":[],"time":"09:30","timezone":"UTC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/preferences", s.userToken, `{"enabled":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/preferences", s.userToken, "").Code)
	assert.False(t, s.prefs.saved[1].Enabled)

	rec = s.do(http.MethodGet, "/preferences/job", s.userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)
	assert.Contains(t, rec.Body.String(), `"retry_count":4`)
}

func TestRouter_AdminRequiresAdminClaim(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/admin/scheduler", "", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/admin/scheduler", s.userToken, "").Code)

	rec := s.do(http.MethodGet, "/admin/scheduler", s.adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"max_concurrent":5,"running":[]}`, rec.Body.String())
}

func TestRouter_AdminJobs(t *testing.T) {
	s := newTestServer(t)
	tok := s.adminToken

	rec := s.do(http.MethodGet, "/admin/jobs/1", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":1`)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/jobs/abc", tok, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/admin/jobs/3", tok, "").Code)

	rec = s.do(http.MethodGet, "/admin/jobs/1/logs?limit=5", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/jobs/1/logs?limit=x", tok, "").Code)

	assert.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/admin/jobs/1/run", tok, "").Code)
	assert.Equal(t, []uint64{1}, s.jobs.ran)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/admin/jobs/2/run", tok, "").Code)

	assert.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/admin/jobs/1/fail", tok, `{"message":"smtp timeout"}`).Code)
	assert.Equal(t, "smtp timeout", s.jobs.failed[1])
	assert.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/admin/jobs/1/fail", tok, "").Code)
	assert.Equal(t, "", s.jobs.failed[1])

	rec = s.do(http.MethodPost, "/admin/jobs/1/reset", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"scheduled"`)
	assert.Contains(t, rec.Body.String(), `"retry_count":0`)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/admin/jobs/1", tok, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/admin/jobs/1", tok, "").Code)
}

func TestRouter_AdminRateLimited(t *testing.T) {
	s := newTestServer(t)
	s.h = NewRouter(Deps{
		Config: config.Config{AdminRatePerSec: 0.001},
		JWT:    s.jwt,
		Prefs:  s.prefs,
		Jobs:   s.jobs,
		Log:    zerolog.Nop(),
	})

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/admin/scheduler", s.adminToken, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodGet, "/admin/scheduler", s.adminToken, "").Code)
	// Non-admin traffic is not limited.
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", "").Code)
}

func TestRouter_Me(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/me", "", "").Code)

	rec := s.do(http.MethodGet, "/me", s.userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"user_id":1,"admin":false}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/me", s.adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":99,"admin":true}`, rec.Body.String())
}
