package session

// NextStreakMilestone returns the next streak length above current worth
// celebrating.
func NextStreakMilestone(current int) int {
	milestones := []int{5, 10, 15, 20}
	for _, m := range milestones {
		if m > current {
			return m
		}
	}
	// Beyond 20, every 5.
	return ((current / 5) + 1) * 5
}

// correctStreaks returns the run of correct answers at the end of results
// and the longest run anywhere in it.
func correctStreaks(results []bool) (current, best int) {
	for _, ok := range results {
		if ok {
			current++
			best = max(best, current)
		} else {
			current = 0
		}
	}
	return current, best
}

// dayStreaks computes daily streaks over the window's calendar days, given
// in order. A day counts when it had at least one review. The current
// streak ends on the last day, or on the day before when the last day has
// no reviews yet.
func dayStreaks(days []string, active map[string]bool) (current, longest int) {
	run := 0
	for _, d := range days {
		if active[d] {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}

	end := len(days) - 1
	if end >= 0 && !active[days[end]] {
		end--
	}
	for i := end; i >= 0 && active[days[i]]; i-- {
		current++
	}
	return current, longest
}
