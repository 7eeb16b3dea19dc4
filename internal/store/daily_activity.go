package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// DailyActivity holds a student's review counters for one calendar day.
type DailyActivity struct {
	StudentID    string `json:"studentId"`
	Day          string `json:"day"`
	Reviews      int    `json:"reviews"`
	Correct      int    `json:"correct"`
	Incorrect    int    `json:"incorrect"`
	TimeOnTaskMs int64  `json:"timeOnTaskMs"`
}

// BumpDailyActivity counts one review on the student's row for day,
// creating it when this is the first review of the day.
func (c conn) BumpDailyActivity(ctx context.Context, studentID string, day time.Time, correct bool, responseMs int64) error {
	ok, bad := 0, 1
	if correct {
		ok, bad = 1, 0
	}
	b := c.builder().Insert(tableDailyActivity).
		Columns("key", "student_id", "day", "reviews", "correct", "incorrect", "time_on_task_ms").
		Values(DailyActivityKey(studentID, day), studentID, day.Format(DayLayout), 1, ok, bad, responseMs).
		OnConflict(
			entsql.ConflictColumns("key"),
			entsql.ResolveWith(func(s *entsql.UpdateSet) {
				s.Add("reviews", 1)
				s.Add("correct", ok)
				s.Add("incorrect", bad)
				s.Add("time_on_task_ms", responseMs)
			}),
		)
	if _, err := c.exec(ctx, b); err != nil {
		return fmt.Errorf("bump daily activity %s: %w", DailyActivityKey(studentID, day), err)
	}
	return nil
}

// ListDailyActivity returns the student's rows for the days in [from, to],
// both given as DayLayout strings, oldest first.
func (c conn) ListDailyActivity(ctx context.Context, studentID, from, to string) ([]DailyActivity, error) {
	t := c.builder().Table(tableDailyActivity)
	b := c.builder().Select("student_id", "day", "reviews", "correct", "incorrect", "time_on_task_ms").
		From(t).
		Where(entsql.And(
			entsql.EQ(t.C("student_id"), studentID),
			entsql.GTE(t.C("day"), from),
			entsql.LTE(t.C("day"), to),
		)).
		OrderBy(t.C("day"))
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query daily activity: %w", err)
	}
	defer rows.Close()

	var out []DailyActivity
	for rows.Next() {
		var d DailyActivity
		if err := rows.Scan(&d.StudentID, &d.Day, &d.Reviews, &d.Correct, &d.Incorrect, &d.TimeOnTaskMs); err != nil {
			return nil, fmt.Errorf("scan daily activity: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily activity: %w", err)
	}
	return out, nil
}
