// Package progress turns per-activity counters into completion state and
// daily completion rates.
package progress

import (
	"math"

	"github.com/google/uuid"
)

// IsComplete reports whether count reached target. Targets below one count as one.
func IsComplete(count, target int) bool {
	return count >= normalizeTarget(target)
}

// Next returns the counter after one click: it increments until the target is
// reached and then wraps back to zero.
func Next(count, target int) int {
	target = normalizeTarget(target)
	if count >= target {
		return 0
	}
	if count < 0 {
		count = 0
	}
	return count + 1
}

// Clamp bounds count to [0, target].
func Clamp(count, target int) int {
	target = normalizeTarget(target)
	switch {
	case count < 0:
		return 0
	case count > target:
		return target
	default:
		return count
	}
}

func normalizeTarget(target int) int {
	if target < 1 {
		return 1
	}
	return target
}

// Counts maps activity ids to their progress for one day. Zero counts are not stored.
type Counts map[uuid.UUID]int

// Get returns the progress for id.
func (c Counts) Get(id uuid.UUID) int {
	return c[id]
}

// Increment applies Next for id and returns the new value.
func (c Counts) Increment(id uuid.UUID, target int) int {
	next := Next(c[id], target)
	if next == 0 {
		delete(c, id)
	} else {
		c[id] = next
	}
	return next
}

// FromLegacy converts the boolean completed-task list of older rows into
// counts. Each listed activity is considered complete, so it maps to its
// target; unknown activities map to one.
func FromLegacy(completed []uuid.UUID, targets map[uuid.UUID]int) Counts {
	out := make(Counts, len(completed))
	for _, id := range completed {
		t, ok := targets[id]
		if !ok {
			t = 1
		}
		out[id] = normalizeTarget(t)
	}
	return out
}

// Merge overlays explicit counts on legacy-derived ones.
func Merge(legacy, explicit Counts) Counts {
	out := make(Counts, len(legacy)+len(explicit))
	for id, n := range legacy {
		out[id] = n
	}
	for id, n := range explicit {
		out[id] = n
	}
	return out
}

// Item is a due activity evaluated for the day's completion rate.
type Item struct {
	Count  int
	Target int
	Avoid  bool
}

// Options tune CompletionRate.
type Options struct {
	// IncludeAvoid counts activities with the never routine in the rate.
	IncludeAvoid bool
}

// CompletionRate returns the rounded percentage of complete items. Avoid items
// are skipped unless opts.IncludeAvoid is set. The rate is 0 for no items.
func CompletionRate(items []Item, opts Options) int {
	var total, done int
	for _, it := range items {
		if it.Avoid && !opts.IncludeAvoid {
			continue
		}
		total++
		if IsComplete(it.Count, it.Target) {
			done++
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
