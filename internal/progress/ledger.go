package progress

import "time"

const isoDateLayout = "2006-01-02"

// ISODate returns the calendar date of t in loc, without a time-of-day part,
// so sessions finished on the same day merge into one ledger entry.
func ISODate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(isoDateLayout)
}

// ApplyTotals adds one session to the current week totals and the lifetime totals.
func (s *Settings) ApplyTotals(stat StatData) {
	s.WeekProgress.Minutes += stat.Time
	s.WeekProgress.WorkoutsCompleted++
	s.WeekProgress.Calories += stat.Calories
	s.CaloriesBurned += stat.Calories
	s.CompletedWorkouts++
}

// maxWeekGap bounds how many ledgers one session may append. The week index
// is maintained elsewhere and a stale value must not bloat the settings.
const maxWeekGap = 8

// EnsureWeek makes progress[weekIndex] addressable. Missing weeks in between
// are filled with empty ledgers, so ledger positions always line up with week
// indexes. It reports false, leaving progress untouched, when weekIndex lies
// maxWeekGap or more weeks past the last ledger.
func (s *Settings) EnsureWeek(weekIndex int) (*WeekLedger, bool) {
	if weekIndex < 0 || weekIndex-len(s.Progress) >= maxWeekGap {
		return nil, false
	}
	for len(s.Progress) <= weekIndex {
		s.Progress = append(s.Progress, NewWeekLedger())
	}
	return &s.Progress[weekIndex], true
}

// Add merges one session into the ledger under date.
func (w *WeekLedger) Add(date string, stat StatData) {
	w.Minutes = mergeDateEntry(w.Minutes, date, stat.Time)
	w.Calories = mergeDateEntry(w.Calories, date, stat.Calories)
}

// mergeDateEntry sums value into the entry holding date, or appends a new
// single-key entry when there is none. At most one entry per date exists.
func mergeDateEntry(entries []DateEntry, date string, value float64) []DateEntry {
	for _, entry := range entries {
		if _, ok := entry[date]; ok {
			entry[date] += value
			return entries
		}
	}
	return append(entries, DateEntry{date: value})
}

// Total sums every date entry of the sequence.
func Total(entries []DateEntry) float64 {
	var total float64
	for _, entry := range entries {
		for _, v := range entry {
			total += v
		}
	}
	return total
}
