package store

import "time"

// DayLayout formats the calendar day of a daily activity row.
const DayLayout = "2006-01-02"

// MemoryKey is the logical key of a student's memory state for a card.
func MemoryKey(studentID, cardID string) string {
	return "memory:" + studentID + ":" + cardID
}

// MasteryKey is the logical key of a student's mastery state for a unit.
func MasteryKey(studentID, unitID string) string {
	return "mastery:" + studentID + ":" + unitID
}

// DailyActivityKey is the logical key of a student's counters for a day.
func DailyActivityKey(studentID string, day time.Time) string {
	return "dailyActivity:" + studentID + ":" + day.Format(DayLayout)
}
