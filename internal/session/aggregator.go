// Package session rolls review logs up into per-session and per-day
// statistics. It reads only the audit trail and the daily counters, never
// memory or mastery state.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/store"
)

// ErrInvalidWindow is returned for a window whose end is not after its start.
var ErrInvalidWindow = errors.New("session: window end must be after start")

// Source is the read side of storage used by the aggregator.
type Source interface {
	ListReviewLogs(ctx context.Context, studentID string, q store.LogQuery) ([]reviewlog.Entry, error)
	ListDailyActivity(ctx context.Context, studentID, from, to string) ([]store.DailyActivity, error)
}

// Window is the half-open interval [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// LastDays returns the window covering the n calendar days up to and
// including the day of now, in loc.
func LastDays(now time.Time, n int, loc *time.Location) Window {
	y, m, d := now.In(loc).Date()
	end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return Window{From: end.AddDate(0, 0, -max(n, 1)), To: end}
}

func (w Window) validate() error {
	if !w.To.After(w.From) {
		return fmt.Errorf("%w: %s .. %s", ErrInvalidWindow, w.From.Format(time.RFC3339), w.To.Format(time.RFC3339))
	}
	return nil
}

// days lists the calendar days the window touches, in loc.
func (w Window) days(loc *time.Location) []string {
	y, m, d := w.From.In(loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	var out []string
	for day.Before(w.To) {
		out = append(out, day.Format(store.DayLayout))
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// Stats summarizes a student's reviews in a window.
type Stats struct {
	StudentID    string  `json:"studentId"`
	From         string  `json:"from"`
	To           string  `json:"to"`
	Reviews      int     `json:"reviews"`
	Correct      int     `json:"correct"`
	Incorrect    int     `json:"incorrect"`
	Accuracy     float64 `json:"accuracy"`
	TimeOnTaskMs int64   `json:"timeOnTaskMs"`
	CardsStudied int     `json:"cardsStudied"`
	MasteryGains int     `json:"masteryGains"`

	ActiveDays           int `json:"activeDays"`
	CurrentDayStreak     int `json:"currentDayStreak"`
	LongestDayStreak     int `json:"longestDayStreak"`
	CurrentCorrectStreak int `json:"currentCorrectStreak"`
	BestCorrectStreak    int `json:"bestCorrectStreak"`
	NextStreakMilestone  int `json:"nextStreakMilestone"`

	Sessions []SessionStats `json:"sessions"`
	Days     []DayStats     `json:"days"`
}

// SessionStats is the breakdown for one session.
type SessionStats struct {
	SessionID    string    `json:"sessionId"`
	FirstReview  time.Time `json:"firstReview"`
	LastReview   time.Time `json:"lastReview"`
	Reviews      int       `json:"reviews"`
	Correct      int       `json:"correct"`
	Accuracy     float64   `json:"accuracy"`
	TimeOnTaskMs int64     `json:"timeOnTaskMs"`
}

// DayStats is the breakdown for one calendar day.
type DayStats struct {
	Day          string `json:"day"`
	Reviews      int    `json:"reviews"`
	Correct      int    `json:"correct"`
	Incorrect    int    `json:"incorrect"`
	TimeOnTaskMs int64  `json:"timeOnTaskMs"`
}

// Aggregator derives statistics from persisted review logs.
type Aggregator struct {
	src Source
	loc *time.Location
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLocation sets the time zone used to split reviews into days.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) { a.loc = loc }
}

// NewAggregator returns an Aggregator reading from src.
func NewAggregator(src Source, opts ...Option) *Aggregator {
	a := &Aggregator{src: src, loc: time.UTC}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Summarize computes the student's statistics for the window.
func (a *Aggregator) Summarize(ctx context.Context, studentID string, w Window) (*Stats, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	entries, err := a.src.ListReviewLogs(ctx, studentID, store.LogQuery{From: w.From, To: w.To})
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", studentID, err)
	}
	return a.summarize(studentID, w, entries), nil
}

func (a *Aggregator) summarize(studentID string, w Window, entries []reviewlog.Entry) *Stats {
	days := w.days(a.loc)
	st := &Stats{
		StudentID: studentID,
		From:      days[0],
		To:        days[len(days)-1],
		Sessions:  []SessionStats{},
		Days:      []DayStats{},
	}

	var (
		results   = make([]bool, 0, len(entries))
		cards     = make(map[string]bool)
		active    = make(map[string]bool)
		bySession = make(map[string]*SessionStats)
		order     []string
		byDay     = make(map[string]*DayStats)
	)
	for i := range entries {
		e := &entries[i]
		var rt int64
		if e.ResponseTimeMs != nil {
			rt = *e.ResponseTimeMs
		}

		st.Reviews++
		st.TimeOnTaskMs += rt
		if e.Correct {
			st.Correct++
		} else {
			st.Incorrect++
		}
		if e.HasMastery() && e.ColorAfter.Rank() > e.ColorBefore.Rank() {
			st.MasteryGains++
		}
		results = append(results, e.Correct)
		cards[e.ItemID] = true

		ss, ok := bySession[e.SessionID]
		if !ok {
			ss = &SessionStats{SessionID: e.SessionID, FirstReview: e.ReviewedAt}
			bySession[e.SessionID] = ss
			order = append(order, e.SessionID)
		}
		ss.Reviews++
		ss.TimeOnTaskMs += rt
		if e.Correct {
			ss.Correct++
		}
		if e.ReviewedAt.Before(ss.FirstReview) {
			ss.FirstReview = e.ReviewedAt
		}
		if e.ReviewedAt.After(ss.LastReview) {
			ss.LastReview = e.ReviewedAt
		}

		day := e.ReviewedAt.In(a.loc).Format(store.DayLayout)
		active[day] = true
		ds, ok := byDay[day]
		if !ok {
			ds = &DayStats{Day: day}
			byDay[day] = ds
		}
		ds.Reviews++
		ds.TimeOnTaskMs += rt
		if e.Correct {
			ds.Correct++
		} else {
			ds.Incorrect++
		}
	}

	st.Accuracy = ratio(st.Correct, st.Reviews)
	st.CardsStudied = len(cards)
	st.ActiveDays = len(active)
	st.CurrentDayStreak, st.LongestDayStreak = dayStreaks(days, active)
	st.CurrentCorrectStreak, st.BestCorrectStreak = correctStreaks(results)
	st.NextStreakMilestone = NextStreakMilestone(st.CurrentCorrectStreak)

	// Sessions in order of first appearance in the log.
	for _, id := range order {
		ss := bySession[id]
		ss.Accuracy = ratio(ss.Correct, ss.Reviews)
		st.Sessions = append(st.Sessions, *ss)
	}
	for _, d := range days {
		if ds, ok := byDay[d]; ok {
			st.Days = append(st.Days, *ds)
		}
	}
	return st
}

// Daily returns the persisted per-day counters for the window's days.
func (a *Aggregator) Daily(ctx context.Context, studentID string, w Window) ([]store.DailyActivity, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	days := w.days(a.loc)
	rows, err := a.src.ListDailyActivity(ctx, studentID, days[0], days[len(days)-1])
	if err != nil {
		return nil, fmt.Errorf("daily activity %s: %w", studentID, err)
	}
	if rows == nil {
		rows = []store.DailyActivity{}
	}
	return rows, nil
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
