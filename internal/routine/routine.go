// Package routine parses activity recurrence descriptors and decides whether an
// activity is due on a calendar date.
//
// The serialized grammar is one of:
//
//	anytime | daily | never
//	weekly:<csv of 0-6>          (0 = Sunday)
//	monthly:<1-31>
//	custom:<n>:<days|weeks|months>
package routine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the recurrence variant.
type Kind string

const (
	KindAnytime Kind = "anytime"
	KindDaily   Kind = "daily"
	KindNever   Kind = "never"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
	KindCustom  Kind = "custom"
)

// Unit is the step unit of a custom interval.
type Unit string

const (
	UnitDays   Unit = "days"
	UnitWeeks  Unit = "weeks"
	UnitMonths Unit = "months"
)

// ErrInvalidRoutine is returned by Parse for malformed descriptors.
var ErrInvalidRoutine = errors.New("invalid routine")

// WeekdaySet is a bitmask of weekdays, bit 0 = Sunday.
type WeekdaySet uint8

// NewWeekdaySet builds a set from weekdays. Duplicates collapse.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Days returns the members in ascending order.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Empty reports whether no weekday is selected.
func (s WeekdaySet) Empty() bool {
	return s&0x7f == 0
}

// Routine is a parsed recurrence descriptor. Only the fields relevant to Kind
// are meaningful.
type Routine struct {
	Kind     Kind
	Weekdays WeekdaySet
	MonthDay int
	Interval int
	Unit     Unit
}

// Daily is the default routine.
var Daily = Routine{Kind: KindDaily}

// Parse parses a descriptor strictly. An empty string is daily.
func Parse(s string) (Routine, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Daily, nil
	}

	parts := strings.Split(s, ":")
	switch Kind(parts[0]) {
	case KindAnytime, KindDaily, KindNever:
		if len(parts) != 1 {
			return Routine{}, fmt.Errorf("%w: %q takes no parameters", ErrInvalidRoutine, parts[0])
		}
		return Routine{Kind: Kind(parts[0])}, nil

	case KindWeekly:
		if len(parts) != 2 || parts[1] == "" {
			return Routine{}, fmt.Errorf("%w: weekly requires a list of days", ErrInvalidRoutine)
		}
		var set WeekdaySet
		for _, field := range strings.Split(parts[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil || n < 0 || n > 6 {
				return Routine{}, fmt.Errorf("%w: weekday %q out of range 0-6", ErrInvalidRoutine, field)
			}
			set |= NewWeekdaySet(time.Weekday(n))
		}
		return Routine{Kind: KindWeekly, Weekdays: set}, nil

	case KindMonthly:
		if len(parts) != 2 {
			return Routine{}, fmt.Errorf("%w: monthly requires a day of month", ErrInvalidRoutine)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 || n > 31 {
			return Routine{}, fmt.Errorf("%w: day of month %q out of range 1-31", ErrInvalidRoutine, parts[1])
		}
		return Routine{Kind: KindMonthly, MonthDay: n}, nil

	case KindCustom:
		if len(parts) != 3 {
			return Routine{}, fmt.Errorf("%w: custom requires an interval and a unit", ErrInvalidRoutine)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 {
			return Routine{}, fmt.Errorf("%w: interval %q must be a positive integer", ErrInvalidRoutine, parts[1])
		}
		unit := Unit(parts[2])
		switch unit {
		case UnitDays, UnitWeeks, UnitMonths:
		default:
			return Routine{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidRoutine, parts[2])
		}
		return Routine{Kind: KindCustom, Interval: n, Unit: unit}, nil
	}

	return Routine{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRoutine, parts[0])
}

// ParseLenient parses s and falls back to daily on any error. Stored rows are
// evaluated with it so legacy or hand-edited values keep showing up.
func ParseLenient(s string) Routine {
	r, err := Parse(s)
	if err != nil {
		return Daily
	}
	return r
}

// String returns the canonical serialized form.
func (r Routine) String() string {
	switch r.Kind {
	case KindWeekly:
		days := r.Weekdays.Days()
		fields := make([]string, len(days))
		for i, d := range days {
			fields[i] = strconv.Itoa(int(d))
		}
		return "weekly:" + strings.Join(fields, ",")
	case KindMonthly:
		return "monthly:" + strconv.Itoa(r.MonthDay)
	case KindCustom:
		return fmt.Sprintf("custom:%d:%s", r.Interval, r.Unit)
	case "":
		return string(KindDaily)
	default:
		return string(r.Kind)
	}
}

// IsAvoid reports whether the routine marks something to avoid.
func (r Routine) IsAvoid() bool {
	return r.Kind == KindNever
}

// DueOn reports whether an activity with this routine is due on target.
// createdAt anchors custom intervals; its calendar date is taken in its own
// location, so callers convert it to the user's zone first. target is read as
// a calendar date.
func (r Routine) DueOn(createdAt *time.Time, target time.Time) bool {
	switch r.Kind {
	case KindAnytime, KindNever, KindDaily, "":
		return true
	case KindWeekly:
		return r.Weekdays.Has(target.Weekday())
	case KindMonthly:
		return target.Day() == r.MonthDay
	case KindCustom:
		if createdAt == nil || r.Interval < 1 {
			return false
		}
		return r.customDue(*createdAt, target)
	default:
		return true
	}
}

func (r Routine) customDue(anchor, target time.Time) bool {
	switch r.Unit {
	case UnitDays:
		k := DaysBetween(anchor, target)
		return k >= 0 && k%r.Interval == 0
	case UnitWeeks:
		k := DaysBetween(anchor, target)
		return k >= 0 && k%7 == 0 && (k/7)%r.Interval == 0
	case UnitMonths:
		m := MonthsBetween(anchor, target)
		return m >= 0 && m%r.Interval == 0 && target.Day() == anchor.Day()
	default:
		return false
	}
}

// IsDue evaluates a stored descriptor against target, treating malformed
// descriptors as daily.
func IsDue(descriptor string, createdAt *time.Time, target time.Time) bool {
	return ParseLenient(descriptor).DueOn(createdAt, target)
}

// DaysBetween counts whole calendar days from a's date to b's date. Each
// argument is read in its own location, so DST shifts do not matter.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

// MonthsBetween counts calendar months from a's month to b's month.
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

var weekdayShort = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Describe renders a short human label.
func (r Routine) Describe() string {
	switch r.Kind {
	case KindAnytime:
		return "Anytime"
	case KindNever:
		return "Avoid"
	case KindWeekly:
		days := r.Weekdays.Days()
		names := make([]string, len(days))
		for i, d := range days {
			names[i] = weekdayShort[d]
		}
		return "Every " + strings.Join(names, ", ")
	case KindMonthly:
		return "Monthly on day " + strconv.Itoa(r.MonthDay)
	case KindCustom:
		if r.Interval == 1 {
			return "Every " + strings.TrimSuffix(string(r.Unit), "s")
		}
		return fmt.Sprintf("Every %d %s", r.Interval, r.Unit)
	default:
		return "Daily"
	}
}
