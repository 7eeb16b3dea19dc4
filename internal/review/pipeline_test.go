package review

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/spacedrep"
	"github.com/abhisek/mnemo/internal/store"
)

var start = time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store *store.Store
	clock *fakeClock
	p     *Pipeline
	sess  *store.Session
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return newFixtureWithRepo(t, s, NewRepository(s), opts...)
}

func newFixtureWithRepo(t *testing.T, s *store.Store, repo Repository, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertUnit(ctx, &store.Unit{
		ID: "fractions", Name: "Fractions", CreatedAt: start,
		Params: mastery.Params{PInit: 0.5, PSlip: 0.1, PGuess: 0.2, PTransit: 0.3},
	}))
	require.NoError(t, s.UpsertUnit(ctx, &store.Unit{ID: "decimals", Name: "Decimals", CreatedAt: start}))
	for _, it := range []*store.Item{
		{ID: "card-1", Kind: reviewlog.KindFlashcard, Front: "1/2", Back: "0.5", UnitID: "fractions"},
		{ID: "card-2", Kind: reviewlog.KindFlashcard, Front: "capital of France", Back: "Paris"},
		{ID: "quiz-1", Kind: reviewlog.KindQuiz, Front: "0.25 = ?", Back: "1/4", UnitID: "decimals"},
		{ID: "orphan", Kind: reviewlog.KindFlashcard, Front: "?", Back: "!", UnitID: "gone"},
	} {
		it.CreatedAt = start
		require.NoError(t, s.UpsertItem(ctx, it))
	}

	clock := &fakeClock{now: start}
	base := []Option{
		WithClock(clock.Now),
		WithRetry(RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}),
	}
	p := NewPipeline(repo,
		spacedrep.MustNewScheduler(spacedrep.DefaultParams()),
		mastery.MustNewModel(mastery.DefaultConfig()),
		append(base, opts...)...,
	)
	sess, err := p.StartSession(ctx, "student-1")
	require.NoError(t, err)
	return &fixture{store: s, clock: clock, p: p, sess: sess}
}

func (f *fixture) req(item string, kind reviewlog.ItemKind, g spacedrep.Grade) Request {
	return Request{SessionID: f.sess.ID, ItemID: item, Kind: kind, Grade: g}
}

func TestHandleReview_FlashcardWithUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt := int64(4200)

	req := f.req("card-1", reviewlog.KindFlashcard, spacedrep.Good)
	req.ResponseTimeMs = &rt
	resp, err := f.p.HandleReview(ctx, req)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ReviewID)
	assert.Equal(t, "student-1", resp.StudentID)
	assert.Equal(t, spacedrep.Review, resp.Memory.Lifecycle)
	assert.Equal(t, 1, resp.Memory.RepetitionCount)
	assert.Zero(t, resp.Memory.LapseCount)
	assert.True(t, resp.Memory.DueAt.After(start))

	// The unit carries pKnow 0.5, slip 0.1, guess 0.2, transit 0.3.
	require.NotNil(t, resp.Mastery)
	assert.InDelta(t, 0.873, resp.Mastery.PKnow, 0.001)
	assert.Equal(t, mastery.ColorGreen, resp.Mastery.Color)
	assert.Equal(t, mastery.TrendUp, resp.Mastery.Trend)
	assert.Equal(t, mastery.ColorYellow, resp.ColorBefore)
	assert.Equal(t, mastery.ColorGreen, resp.ColorAfter)
	require.NotNil(t, resp.ColorImproved)
	assert.True(t, *resp.ColorImproved)

	mem, err := f.store.GetMemory(ctx, "student-1", "card-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), mem.Version)
	assert.Equal(t, resp.Memory.Stability, mem.State.Stability)

	mas, err := f.store.GetMastery(ctx, "student-1", "fractions")
	require.NoError(t, err)
	assert.Equal(t, resp.Mastery.PKnow, mas.State.PKnow)
	assert.Equal(t, 1, mas.State.ReviewCount)

	entry, err := f.store.GetReviewLog(ctx, resp.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, spacedrep.New, entry.LifecycleBefore)
	assert.Equal(t, "fractions", entry.UnitID)
	assert.Equal(t, f.sess.ID, entry.SessionID)
	assert.Equal(t, rt, *entry.ResponseTimeMs)

	days, err := f.store.ListDailyActivity(ctx, "student-1", "2025-06-02", "2025-06-02")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, store.DailyActivity{StudentID: "student-1", Day: "2025-06-02", Reviews: 1, Correct: 1, TimeOnTaskMs: rt}, days[0])
}

func TestHandleReview_NoUnit(t *testing.T) {
	f := newFixture(t)
	resp, err := f.p.HandleReview(context.Background(), f.req("card-2", reviewlog.KindFlashcard, spacedrep.Again))
	require.NoError(t, err)

	assert.Nil(t, resp.Mastery)
	assert.Empty(t, resp.ColorBefore)
	assert.Nil(t, resp.ColorImproved)
	assert.Equal(t, spacedrep.Relearning, resp.Memory.Lifecycle)
	assert.Zero(t, resp.Memory.ScheduledDays)
	assert.True(t, resp.Memory.DueAt.Equal(start), "a first-time failure is due immediately")
}

func TestHandleReview_QuizSeedsDefaultMastery(t *testing.T) {
	f := newFixture(t)
	resp, err := f.p.HandleReview(context.Background(), f.req("quiz-1", reviewlog.KindQuiz, spacedrep.Again))
	require.NoError(t, err)

	// decimals has no parameters of its own: pKnow 0.2, slip 0.1, guess 0.2, transit 0.15.
	post := 0.2 * 0.1 / (0.2*0.1 + 0.8*0.8)
	want := post + (1-post)*0.15
	require.NotNil(t, resp.Mastery)
	assert.InDelta(t, want, resp.Mastery.PKnow, 1e-12)
	assert.Equal(t, mastery.ColorRed, resp.ColorBefore)
	assert.Equal(t, mastery.ColorRed, resp.ColorAfter)
	assert.Nil(t, resp.ColorImproved)
}

func TestHandleReview_ValidationBeforeAnyStorageAccess(t *testing.T) {
	// A nil repository panics on first use, so each case must fail first.
	p := NewPipeline(nil,
		spacedrep.MustNewScheduler(spacedrep.DefaultParams()),
		mastery.MustNewModel(mastery.DefaultConfig()),
		WithClock(func() time.Time { return start }),
	)
	future := start.Add(time.Hour)
	past := time.Date(1969, 1, 1, 0, 0, 0, 0, time.UTC)
	negative := int64(-5)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"grade zero", Request{SessionID: "s", ItemID: "i", Kind: reviewlog.KindFlashcard, Grade: 0}, ErrInvalidGrade},
		{"grade five", Request{SessionID: "s", ItemID: "i", Kind: reviewlog.KindFlashcard, Grade: 5}, ErrInvalidGrade},
		{"unknown kind", Request{SessionID: "s", ItemID: "i", Kind: "essay", Grade: 3}, ErrInvalidItemKind},
		{"missing session", Request{ItemID: "i", Kind: reviewlog.KindQuiz, Grade: 3}, ErrValidation},
		{"missing item", Request{SessionID: "s", Kind: reviewlog.KindQuiz, Grade: 3}, ErrValidation},
		{"negative latency", Request{SessionID: "s", ItemID: "i", Kind: reviewlog.KindQuiz, Grade: 3, ResponseTimeMs: &negative}, ErrValidation},
		{"future timestamp", Request{SessionID: "s", ItemID: "i", Kind: reviewlog.KindQuiz, Grade: 3, ReviewedAt: &future}, ErrInvalidTimestamp},
		{"pre-epoch timestamp", Request{SessionID: "s", ItemID: "i", Kind: reviewlog.KindQuiz, Grade: 3, ReviewedAt: &past}, ErrInvalidTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.HandleReview(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, "validation", Reason(err))
		})
	}
}

func TestHandleReview_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.p.HandleReview(ctx, Request{SessionID: "nope", ItemID: "card-1", Kind: reviewlog.KindFlashcard, Grade: 3})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.p.HandleReview(ctx, f.req("missing", reviewlog.KindFlashcard, spacedrep.Good))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.p.HandleReview(ctx, f.req("orphan", reviewlog.KindFlashcard, spacedrep.Good))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.store.GetMemory(ctx, "student-1", "orphan")
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing may be written for a failed review")
}

func TestHandleReview_KindMismatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.HandleReview(context.Background(), f.req("card-1", reviewlog.KindQuiz, spacedrep.Good))
	require.ErrorIs(t, err, ErrInvalidItemKind)

	logs, err := f.store.ListCardLogs(context.Background(), "student-1", "card-1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestHandleReview_ConcurrentDuplicatesAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 16

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.p.HandleReview(ctx, f.req("card-1", reviewlog.KindFlashcard, spacedrep.Good))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	mem, err := f.store.GetMemory(ctx, "student-1", "card-1")
	require.NoError(t, err)
	assert.Equal(t, n, mem.State.Reps, "no submission may be lost")
	assert.Equal(t, int64(n), mem.Version)

	mas, err := f.store.GetMastery(ctx, "student-1", "fractions")
	require.NoError(t, err)
	assert.Equal(t, n, mas.State.ReviewCount)

	logs, err := f.store.ListCardLogs(ctx, "student-1", "card-1")
	require.NoError(t, err)
	assert.Len(t, logs, n)

	rep, err := f.p.Audit(ctx, "student-1", "card-1")
	require.NoError(t, err)
	assert.True(t, rep.Match)
}

// conflictRepo makes the first failures memory writes lose their
// compare-and-swap.
type conflictRepo struct {
	Repository
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *conflictRepo) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return r.Repository.Atomic(ctx, func(tx Tx) error {
		return fn(&conflictTx{Tx: tx, repo: r})
	})
}

type conflictTx struct {
	Tx
	repo *conflictRepo
}

func (t *conflictTx) PutMemory(ctx context.Context, rec *store.MemoryRecord) error {
	t.repo.mu.Lock()
	t.repo.calls++
	fail := t.repo.calls <= t.repo.failures
	t.repo.mu.Unlock()
	if fail {
		return store.ErrConflict
	}
	return t.Tx.PutMemory(ctx, rec)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHandleReview_RetriesConflicts(t *testing.T) {
	s := openStore(t)
	repo := &conflictRepo{Repository: NewRepository(s), failures: 2}
	f := newFixtureWithRepo(t, s, repo)
	ctx := context.Background()

	resp, err := f.p.HandleReview(ctx, f.req("card-1", reviewlog.KindFlashcard, spacedrep.Good))
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)

	logs, err := s.ListCardLogs(ctx, "student-1", "card-1")
	require.NoError(t, err)
	require.Len(t, logs, 1, "rolled back attempts leave no log entry")
	assert.Equal(t, resp.ReviewID, logs[0].ID)

	mas, err := s.GetMastery(ctx, "student-1", "fractions")
	require.NoError(t, err)
	assert.Equal(t, 1, mas.State.ReviewCount, "mastery written by failed attempts must be rolled back")
}

func TestHandleReview_ConflictSurfacesAfterRetries(t *testing.T) {
	s := openStore(t)
	repo := &conflictRepo{Repository: NewRepository(s), failures: 100}
	f := newFixtureWithRepo(t, s, repo)
	ctx := context.Background()

	_, err := f.p.HandleReview(ctx, f.req("card-1", reviewlog.KindFlashcard, spacedrep.Good))
	require.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, store.ErrConflict)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.Attempts)
	assert.Equal(t, []string{"memory:student-1:card-1", "mastery:student-1:fractions"}, ce.Keys)

	logs, err := s.ListCardLogs(ctx, "student-1", "card-1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

type brokenRepo struct {
	Repository
}

func (brokenRepo) Atomic(context.Context, func(tx Tx) error) error {
	return errors.New("disk I/O error")
}

// resetRepo deletes the student's data right before the review transaction.
type resetRepo struct {
	Repository
	s *store.Store
}

func (r resetRepo) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if _, err := r.s.DeleteStudent(ctx, "student-1"); err != nil {
		return err
	}
	return r.Repository.Atomic(ctx, fn)
}

func TestHandleReview_ResetDuringReview(t *testing.T) {
	s := openStore(t)
	f := newFixtureWithRepo(t, s, resetRepo{Repository: NewRepository(s), s: s})
	ctx := context.Background()

	_, err := f.p.HandleReview(ctx, f.req("card-1", reviewlog.KindFlashcard, spacedrep.Good))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetMemory(ctx, "student-1", "card-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	logs, err := s.ListCardLogs(ctx, "student-1", "card-1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestHandleReview_PersistenceFailure(t *testing.T) {
	s := openStore(t)
	f := newFixtureWithRepo(t, s, brokenRepo{Repository: NewRepository(s)})

	_, err := f.p.HandleReview(context.Background(), f.req("card-2", reviewlog.KindFlashcard, spacedrep.Good))
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "persistence", Reason(err))
}

func TestHandleReview_ReplayRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grades := []spacedrep.Grade{spacedrep.Good, spacedrep.Good, spacedrep.Again, spacedrep.Hard, spacedrep.Easy, spacedrep.Good, spacedrep.Again, spacedrep.Good}
	gaps := []time.Duration{0, 26 * time.Hour, 5*24*time.Hour + 17*time.Minute, 10 * time.Minute, 2 * 24 * time.Hour, 9*24*time.Hour + 333*time.Millisecond, 40 * 24 * time.Hour, time.Hour}
	for i, g := range grades {
		f.clock.Advance(gaps[i])
		_, err := f.p.HandleReview(ctx, f.req("card-1", reviewlog.KindFlashcard, g))
		require.NoError(t, err, "review %d", i)
	}

	rep, err := f.p.Audit(ctx, "student-1", "card-1")
	require.NoError(t, err)
	assert.Equal(t, len(grades), rep.Reviews)
	require.NotNil(t, rep.Stored)
	assert.True(t, rep.Match, "stored %+v\nreplayed %+v", *rep.Stored, rep.Replayed)
	assert.Equal(t, 2, rep.Replayed.Lapses)
}

func TestHandleReview_OfflineTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := start.Add(-26 * time.Hour)

	req := f.req("card-2", reviewlog.KindFlashcard, spacedrep.Good)
	req.ReviewedAt = &at
	resp, err := f.p.HandleReview(ctx, req)
	require.NoError(t, err)

	entry, err := f.store.GetReviewLog(ctx, resp.ReviewID)
	require.NoError(t, err)
	assert.True(t, entry.ReviewedAt.Equal(at))

	days, err := f.store.ListDailyActivity(ctx, "student-1", "2025-05-31", "2025-06-01")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2025-06-01", days[0].Day)
}

func TestHandleReview_BackdatedTimestampRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.p.HandleReview(ctx, f.req("card-2", reviewlog.KindFlashcard, spacedrep.Good))
	require.NoError(t, err)

	at := start.Add(-72 * time.Hour)
	req := f.req("card-2", reviewlog.KindFlashcard, spacedrep.Good)
	req.ReviewedAt = &at
	_, err = f.p.HandleReview(ctx, req)
	require.ErrorIs(t, err, ErrInvalidTimestamp)
	require.ErrorIs(t, err, ErrValidation)

	mem, err := f.store.GetMemory(ctx, "student-1", "card-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), mem.Version)
	assert.True(t, mem.State.DueAt.Equal(first.Memory.DueAt))
	assert.True(t, mem.State.LastReviewAt.Equal(start))

	logs, err := f.store.ListCardLogs(ctx, "student-1", "card-2")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	// The same instant as the last review is still accepted.
	same := start
	req.ReviewedAt = &same
	_, err = f.p.HandleReview(ctx, req)
	require.NoError(t, err)
}

func TestHandleReview_ServerClockBehindLastReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ahead := start.Add(4 * time.Minute)
	req := f.req("card-2", reviewlog.KindFlashcard, spacedrep.Good)
	req.ReviewedAt = &ahead
	first, err := f.p.HandleReview(ctx, req)
	require.NoError(t, err)

	second, err := f.p.HandleReview(ctx, f.req("card-2", reviewlog.KindFlashcard, spacedrep.Good))
	require.NoError(t, err)
	assert.False(t, second.Memory.DueAt.Before(first.Memory.DueAt))

	mem, err := f.store.GetMemory(ctx, "student-1", "card-2")
	require.NoError(t, err)
	assert.True(t, mem.State.LastReviewAt.Equal(ahead))

	rep, err := f.p.Audit(ctx, "student-1", "card-2")
	require.NoError(t, err)
	assert.True(t, rep.Match)
}

func TestHandleReview_DueNeverMovesBackwards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(11, 13))

	var prev *Response
	for i := 0; i < 60; i++ {
		switch rng.IntN(3) {
		case 0:
			f.clock.Advance(time.Duration(rng.IntN(30*24)) * time.Hour)
		case 1:
			f.clock.Advance(time.Duration(rng.IntN(90)) * time.Minute)
		}
		g := spacedrep.Grade(rng.IntN(4) + 1)
		req := f.req("card-1", reviewlog.KindFlashcard, g)
		if rng.IntN(4) == 0 {
			// Offline client: anywhere from a week ago to now.
			at := f.clock.Now().Add(-time.Duration(rng.IntN(7*24)) * time.Hour)
			req.ReviewedAt = &at
		}

		resp, err := f.p.HandleReview(ctx, req)
		if errors.Is(err, ErrInvalidTimestamp) {
			continue
		}
		require.NoError(t, err, "review %d", i)

		if prev != nil {
			lapse := g == spacedrep.Again && prev.Memory.Lifecycle == spacedrep.Review
			if !lapse {
				assert.False(t, resp.Memory.DueAt.Before(prev.Memory.DueAt),
					"review %d: %v on %v moved due %v -> %v", i, g, prev.Memory.Lifecycle, prev.Memory.DueAt, resp.Memory.DueAt)
			}
		}
		prev = resp
	}

	rep, err := f.p.Audit(ctx, "student-1", "card-1")
	require.NoError(t, err)
	assert.True(t, rep.Match)
}

func TestAudit_UnreviewedCard(t *testing.T) {
	f := newFixture(t)
	rep, err := f.p.Audit(context.Background(), "student-1", "card-2")
	require.NoError(t, err)
	assert.True(t, rep.Match)
	assert.Nil(t, rep.Stored)
	assert.Zero(t, rep.Reviews)
}

func TestStartSession(t *testing.T) {
	f := newFixture(t, WithIDGenerator(func() string { return "fixed-id" }))
	ctx := context.Background()

	sess, err := f.store.GetSession(ctx, "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, "student-1", sess.StudentID)
	assert.True(t, sess.StartedAt.Equal(start))

	_, err = f.p.StartSession(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.p.StartSession(ctx, "student-2")
	assert.ErrorIs(t, err, ErrConflict, "a reused id must not overwrite a session")
}

func TestMasterySnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.p.Mastery(ctx, "student-1", "fractions")
	require.NoError(t, err)
	assert.Equal(t, 0.5, st.PKnow)
	assert.Equal(t, mastery.ColorYellow, st.Color)
	assert.Zero(t, st.ReviewCount)

	_, err = f.store.GetMastery(ctx, "student-1", "fractions")
	assert.ErrorIs(t, err, store.ErrNotFound, "reading a snapshot must not persist it")

	_, err = f.p.HandleReview(ctx, f.req("card-1", reviewlog.KindFlashcard, spacedrep.Again))
	require.NoError(t, err)
	st, err = f.p.Mastery(ctx, "student-1", "fractions")
	require.NoError(t, err)
	assert.InDelta(t, 0.378, st.PKnow, 0.001)
	assert.Equal(t, mastery.ColorOrange, st.Color)

	_, err = f.p.Mastery(ctx, "student-1", "no-such-unit")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackoffBounds(t *testing.T) {
	p := &Pipeline{retryCfg: RetryConfig{MaxAttempts: 5, InitialWait: 10 * time.Millisecond, MaxWait: 30 * time.Millisecond, Multiplier: 2}}
	for attempt := range 5 {
		base := 10 * time.Millisecond << attempt
		if base > 30*time.Millisecond {
			base = 30 * time.Millisecond
		}
		for range 50 {
			d := p.backoff(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8)-time.Microsecond)
			assert.LessOrEqual(t, d, time.Duration(float64(base)*1.2)+time.Microsecond)
		}
	}
}
