// Package periods aggregates start/stop spans into tracked durations.
package periods

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Period is one contiguous span of an activity being current. End is nil while open.
type Period struct {
	ActivityID uuid.UUID
	Start      time.Time
	End        *time.Time
}

// Open reports whether the period has not been closed.
func (p Period) Open() bool {
	return p.End == nil
}

// Duration returns the span length, measured up to now for open periods.
// Malformed spans that end before they start count as zero.
func (p Period) Duration(now time.Time) time.Duration {
	end := now
	if p.End != nil {
		end = *p.End
	}
	d := end.Sub(p.Start)
	if d < 0 {
		return 0
	}
	return d
}

// Total sums the durations of all periods of activityID.
func Total(ps []Period, activityID uuid.UUID, now time.Time) time.Duration {
	var total time.Duration
	for _, p := range ps {
		if p.ActivityID == activityID {
			total += p.Duration(now)
		}
	}
	return total
}

// Totals sums durations per activity.
func Totals(ps []Period, now time.Time) map[uuid.UUID]time.Duration {
	out := make(map[uuid.UUID]time.Duration)
	for _, p := range ps {
		out[p.ActivityID] += p.Duration(now)
	}
	return out
}

// Current returns the open period, preferring the latest start when more than
// one is open. It returns nil if nothing is running.
func Current(ps []Period) *Period {
	var cur *Period
	for i := range ps {
		p := &ps[i]
		if !p.Open() {
			continue
		}
		if cur == nil || p.Start.After(cur.Start) {
			cur = p
		}
	}
	return cur
}

// Format renders d with seconds precision as "1h 2m 3s", or "2m 3s" under an hour.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// FormatClock renders d as HH:MM:SS.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
