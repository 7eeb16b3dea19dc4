package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mnemo/internal/config"
	"github.com/abhisek/mnemo/internal/due"
	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/metrics"
	"github.com/abhisek/mnemo/internal/review"
	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/session"
	"github.com/abhisek/mnemo/internal/spacedrep"
	"github.com/abhisek/mnemo/internal/store"
)

var now = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	store *store.Store
	srv   *Server
	reg   *prometheus.Registry
}

func newEnv(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()
	s, err := store.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.UpsertUnit(ctx, &store.Unit{ID: "fractions", Name: "Fractions", CreatedAt: now}))
	require.NoError(t, s.UpsertItem(ctx, &store.Item{ID: "card-1", Kind: reviewlog.KindFlashcard, Front: "1/2", Back: "0.5", UnitID: "fractions", CreatedAt: now}))
	require.NoError(t, s.UpsertItem(ctx, &store.Item{ID: "card-2", Kind: reviewlog.KindFlashcard, Front: "2+2", Back: "4", CreatedAt: now}))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clock := func() time.Time { return now }
	p := review.NewPipeline(review.NewRepository(s),
		spacedrep.MustNewScheduler(spacedrep.DefaultParams()),
		mastery.MustNewModel(mastery.DefaultConfig()),
		review.WithClock(clock),
		review.WithMetrics(m),
	)

	srv := New(cfg, Deps{
		Reviews:  p,
		Due:      due.NewQueue(s),
		Stats:    session.NewAggregator(s),
		Health:   s,
		Metrics:  m,
		Gatherer: reg,
		Now:      clock,
	})
	return &testEnv{store: s, srv: srv, reg: reg}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) startSession(t *testing.T, student string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/sessions", fmt.Sprintf(`{"studentId":%q}`, student))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, student, out.StudentID)
	return out.SessionID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestPostReview(t *testing.T) {
	env := newEnv(t, config.ServerConfig{})
	sid := env.startSession(t, "stu")

	rec := env.do(t, http.MethodPost, "/reviews",
		fmt.Sprintf(`{"sessionId":%q,"itemId":"card-1","itemKind":"flashcard","grade":3,"responseTimeMs":1200}`, sid))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp review.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ReviewID)
	assert.Equal(t, "stu", resp.StudentID)
	assert.Equal(t, 1, resp.Memory.RepetitionCount)
	assert.True(t, resp.Memory.DueAt.After(now))
	require.NotNil(t, resp.Mastery)
	assert.Equal(t, "fractions", resp.Mastery.UnitID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	// The card is no longer due; the mastery snapshot reflects the review.
	rec = env.do(t, http.MethodGet, "/mastery/stu/fractions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var um mastery.UnitMastery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &um))
	assert.Equal(t, 1, um.ReviewCount)
	assert.Equal(t, resp.Mastery.PKnow, um.PKnow)
}

func TestPostReview_Errors(t *testing.T) {
	env := newEnv(t, config.ServerConfig{})
	sid := env.startSession(t, "stu")

	tests := []struct {
		name   string
		body   string
		status int
		reason string
	}{
		{"schema grade", fmt.Sprintf(`{"sessionId":%q,"itemId":"card-1","itemKind":"flashcard","grade":7}`, sid), 400, "validation"},
		{"schema kind", fmt.Sprintf(`{"sessionId":%q,"itemId":"card-1","itemKind":"essay","grade":3}`, sid), 400, "validation"},
		{"missing field", `{"itemId":"card-1","itemKind":"flashcard","grade":3}`, 400, "validation"},
		{"not json", `{"sessionId":`, 400, "validation"},
		{"bad timestamp", fmt.Sprintf(`{"sessionId":%q,"itemId":"card-1","itemKind":"flashcard","grade":3,"reviewedAt":"yesterday"}`, sid), 400, "validation"},
		{"future timestamp", fmt.Sprintf(`{"sessionId":%q,"itemId":"card-1","itemKind":"flashcard","grade":3,"reviewedAt":%q}`, sid, now.Add(time.Hour).Format(time.RFC3339)), 400, "validation"},
		{"kind mismatch", fmt.Sprintf(`{"sessionId":%q,"itemId":"card-1","itemKind":"quiz","grade":3}`, sid), 400, "validation"},
		{"unknown session", `{"sessionId":"nope","itemId":"card-1","itemKind":"flashcard","grade":3}`, 404, "not_found"},
		{"unknown item", fmt.Sprintf(`{"sessionId":%q,"itemId":"ghost","itemKind":"flashcard","grade":3}`, sid), 404, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/reviews", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, tt.reason, body.Reason)
			assert.NotEmpty(t, body.Error)
		})
	}

	rec := env.do(t, http.MethodPost, "/reviews", `{"sessionId":"x","itemId":"y","itemKind":"quiz","grade":1,"pad":"`+strings.Repeat("a", maxBodyBytes)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPostSession_Errors(t *testing.T) {
	env := newEnv(t, config.ServerConfig{})
	for _, body := range []string{`{}`, `{"studentId":""}`, `{"studentId":"a","extra":1}`} {
		rec := env.do(t, http.MethodPost, "/sessions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestGetDue(t *testing.T) {
	env := newEnv(t, config.ServerConfig{})
	ctx := context.Background()
	for i, id := range []string{"card-1", "card-2"} {
		st := spacedrep.NewMemoryState(now.Add(-time.Duration(i+1) * time.Hour))
		require.NoError(t, env.store.PutMemory(ctx, &store.MemoryRecord{StudentID: "stu", CardID: id, State: st}))
	}

	rec := env.do(t, http.MethodGet, "/items/due?studentId=stu", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var items []due.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "card-2", items[0].CardID, "older due date first")
	assert.Equal(t, "2+2", items[0].Front)

	rec = env.do(t, http.MethodGet, "/items/due?studentId=stu&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 1)

	rec = env.do(t, http.MethodGet, "/items/due?studentId=nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, q := range []string{"", "?studentId=stu&limit=0", "?studentId=stu&limit=501", "?studentId=stu&limit=x"} {
		rec = env.do(t, http.MethodGet, "/items/due"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetMastery(t *testing.T) {
	env := newEnv(t, config.ServerConfig{})

	rec := env.do(t, http.MethodGet, "/mastery/stu/fractions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var um mastery.UnitMastery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &um))
	assert.Equal(t, mastery.DefaultParams().PInit, um.PKnow, "never practiced reports the seed")
	assert.Zero(t, um.ReviewCount)

	rec = env.do(t, http.MethodGet, "/mastery/stu/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummaryActivityAndAudit(t *testing.T) {
	env := newEnv(t, config.ServerConfig{})
	sid := env.startSession(t, "stu")
	for _, g := range []int{3, 1, 4} {
		rec := env.do(t, http.MethodPost, "/reviews",
			fmt.Sprintf(`{"sessionId":%q,"itemId":"card-2","itemKind":"flashcard","grade":%d,"responseTimeMs":500}`, sid, g))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodGet, "/students/stu/summary", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st session.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Reviews)
	assert.Equal(t, 2, st.Correct)
	assert.Equal(t, int64(1500), st.TimeOnTaskMs)
	assert.Equal(t, 1, st.CurrentDayStreak)
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, sid, st.Sessions[0].SessionID)

	rec = env.do(t, http.MethodGet, "/students/stu/activity?from=2025-08-30&to=2025-09-01", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rows []store.DailyActivity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-09-01", rows[0].Day)
	assert.Equal(t, 3, rows[0].Reviews)

	rec = env.do(t, http.MethodGet, "/students/stu/summary?from=2025-09-05&to=2025-09-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/students/stu/activity?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/students/stu/cards/card-2/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep review.AuditReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, 3, rep.Reviews)
	assert.True(t, rep.Match)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv(t, config.ServerConfig{})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mnemo_http_requests_total")

	require.NoError(t, env.store.Close())
	rec = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newEnv(t, config.ServerConfig{RateLimit: config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}})

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, env.do(t, http.MethodGet, "/mastery/stu/fractions", "").Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code, "health checks are not limited")
}

func TestRateLimiter_PerKey(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "a"))
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(10, 20)
	clock := now
	rl.now = func() time.Time { return clock }

	for i := 0; i < 1000; i++ {
		rl.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	assert.Equal(t, 1000, rl.Len())

	clock = clock.Add(5 * time.Minute)
	rl.Allow("10.0.0.1")

	clock = clock.Add(6 * time.Minute)
	rl.Allow("192.168.1.1")
	assert.Equal(t, 2, rl.Len(), "only the recently seen and the new client remain")

	clock = clock.Add(time.Hour)
	rl.Allow("192.168.1.1")
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimiter_TTLCoversRefill(t *testing.T) {
	assert.Equal(t, defaultIdleTTL, NewRateLimiter(10, 20).ttl)
	assert.Equal(t, 2000*time.Second, NewRateLimiter(0.001, 2).ttl)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{review.ErrInvalidGrade, 400},
		{fmt.Errorf("wrap: %w", session.ErrInvalidWindow), 400},
		{review.ErrNotFound, 404},
		{&review.ConflictError{Keys: []string{"k"}, Attempts: 3, Err: store.ErrConflict}, 409},
		{context.Canceled, 503},
		{fmt.Errorf("%w: disk", review.ErrPersistence), 500},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

type panicReviews struct{ Reviews }

func (panicReviews) Mastery(context.Context, string, string) (*mastery.UnitMastery, error) {
	panic("kaboom")
}

func TestRecover(t *testing.T) {
	srv := New(config.ServerConfig{}, Deps{Reviews: panicReviews{}, Now: func() time.Time { return now }})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mastery/a/b", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeError(t, rec).Error)
}
