package cron

import (
	"fmt"
	"time"
)

// MaxScanYears bounds the forward search in NextRun. The limit is four
// calendar years plus a day, so a Feb 29 run always reaches the next one.
const MaxScanYears = 4

// NextRun returns the smallest minute-aligned instant strictly after `after`
// that matches fs, evaluated in after's location.
//
// The scan moves forward minute by minute but skips the rest of a day whose
// date fields cannot match and the rest of an hour whose hour field cannot
// match, so it never steps over a candidate.
func NextRun(fs FieldSet, after time.Time) (time.Time, error) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(MaxScanYears, 0, 1)
	loc := after.Location()

	for !t.After(limit) {
		if !fs.matchesDate(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !match(fs.Hour, t.Hour()) {
			next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			if !next.After(t) {
				// DST fall-back can map the next wall hour onto t itself.
				next = t.Add(time.Hour).Truncate(time.Hour)
			}
			t = next
			continue
		}
		if !match(fs.Minute, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q has no match within %d years after %s",
		ErrNoValidSchedule, fs.String(), MaxScanYears, after.Format(time.RFC3339))
}

// ShouldRun reports whether job is due at now. A zero NextRun means never.
func ShouldRun(job Job, now time.Time) bool {
	if !job.Enabled || job.NextRun.IsZero() {
		return false
	}
	return !now.Before(job.NextRun)
}
