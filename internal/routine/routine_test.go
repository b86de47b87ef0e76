package routine

import (
	"errors"
	"testing"
	"time"
)

const dateFormat = "2006-01-02"

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(dateFormat, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

// eachDay calls fn for every date of year.
func eachDay(year int, fn func(time.Time)) {
	for d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC); d.Year() == year; d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Routine
		wantErr bool
	}{
		{name: "empty is daily", input: "", want: Daily},
		{name: "daily", input: "daily", want: Routine{Kind: KindDaily}},
		{name: "anytime", input: "anytime", want: Routine{Kind: KindAnytime}},
		{name: "never", input: "never", want: Routine{Kind: KindNever}},
		{name: "weekly", input: "weekly:1,3,5", want: Routine{Kind: KindWeekly, Weekdays: NewWeekdaySet(time.Monday, time.Wednesday, time.Friday)}},
		{name: "weekly duplicates collapse", input: "weekly:5,1,1,5", want: Routine{Kind: KindWeekly, Weekdays: NewWeekdaySet(time.Monday, time.Friday)}},
		{name: "monthly", input: "monthly:31", want: Routine{Kind: KindMonthly, MonthDay: 31}},
		{name: "custom days", input: "custom:3:days", want: Routine{Kind: KindCustom, Interval: 3, Unit: UnitDays}},
		{name: "custom weeks", input: "custom:2:weeks", want: Routine{Kind: KindCustom, Interval: 2, Unit: UnitWeeks}},
		{name: "custom months", input: "custom:6:months", want: Routine{Kind: KindCustom, Interval: 6, Unit: UnitMonths}},
		{name: "unknown kind", input: "fortnightly", wantErr: true},
		{name: "daily with param", input: "daily:2", wantErr: true},
		{name: "weekly without days", input: "weekly:", wantErr: true},
		{name: "weekly out of range", input: "weekly:7", wantErr: true},
		{name: "weekly garbage", input: "weekly:mon", wantErr: true},
		{name: "monthly zero", input: "monthly:0", wantErr: true},
		{name: "monthly 32", input: "monthly:32", wantErr: true},
		{name: "custom zero interval", input: "custom:0:days", wantErr: true},
		{name: "custom negative interval", input: "custom:-2:days", wantErr: true},
		{name: "custom bad unit", input: "custom:2:years", wantErr: true},
		{name: "custom missing unit", input: "custom:2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %+v", tt.input, got)
				}
				if !errors.Is(err, ErrInvalidRoutine) {
					t.Errorf("Parse(%q) error %v does not wrap ErrInvalidRoutine", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLenient_FallsBackToDaily(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"bogus", "weekly:", "monthly:99", "custom:x:days"} {
		if got := ParseLenient(s); got != Daily {
			t.Errorf("ParseLenient(%q) = %+v, want daily", s, got)
		}
	}
}

func TestRoutine_String(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":               "daily",
		"never":          "never",
		"weekly:6,0,3,3": "weekly:0,3,6",
		"monthly:15":     "monthly:15",
		"custom:2:weeks": "custom:2:weeks",
	}
	for input, want := range tests {
		r, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", input, err)
		}
		if got := r.String(); got != want {
			t.Errorf("Parse(%q).String() = %q, want %q", input, got, want)
		}
	}
}

func TestDueOn_AlwaysDueKinds(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "daily", "anytime", "never", "garbage:1"} {
		eachDay(2025, func(d time.Time) {
			if !IsDue(s, nil, d) {
				t.Errorf("IsDue(%q, %s) = false, want true", s, d.Format(dateFormat))
			}
		})
	}
}

func TestDueOn_WeeklyAllSubsets(t *testing.T) {
	t.Parallel()

	for mask := WeekdaySet(1); mask < 1<<7; mask++ {
		r := Routine{Kind: KindWeekly, Weekdays: mask}
		eachDay(2024, func(d time.Time) {
			want := mask&(1<<uint(d.Weekday())) != 0
			if got := r.DueOn(nil, d); got != want {
				t.Fatalf("%s on %s = %v, want %v", r, d.Format(dateFormat), got, want)
			}
		})
	}
}

func TestDueOn_WeeklyLeapDay(t *testing.T) {
	t.Parallel()

	// 2024-02-29 is a Thursday.
	r, _ := Parse("weekly:4")
	if !r.DueOn(nil, mustDate(t, "2024-02-29")) {
		t.Error("expected weekly:4 to be due on 2024-02-29")
	}
	if r.DueOn(nil, mustDate(t, "2024-03-01")) {
		t.Error("expected weekly:4 not to be due on 2024-03-01")
	}
}

func TestDueOn_Monthly(t *testing.T) {
	t.Parallel()

	for day := 1; day <= 31; day++ {
		r := Routine{Kind: KindMonthly, MonthDay: day}
		eachDay(2024, func(d time.Time) {
			if got, want := r.DueOn(nil, d), d.Day() == day; got != want {
				t.Fatalf("%s on %s = %v, want %v", r, d.Format(dateFormat), got, want)
			}
		})
	}
}

func TestDueOn_MonthlyNoClamping(t *testing.T) {
	t.Parallel()

	r := Routine{Kind: KindMonthly, MonthDay: 31}
	for d := mustDate(t, "2024-04-01"); d.Month() == time.April; d = d.AddDate(0, 0, 1) {
		if r.DueOn(nil, d) {
			t.Errorf("monthly:31 should never be due in April, due on %s", d.Format(dateFormat))
		}
	}
}

func TestDueOn_CustomDays(t *testing.T) {
	t.Parallel()

	anchor := mustDate(t, "2024-03-10")
	for n := 1; n <= 5; n++ {
		r := Routine{Kind: KindCustom, Interval: n, Unit: UnitDays}
		for k := -20; k <= 60; k++ {
			target := anchor.AddDate(0, 0, k)
			want := k >= 0 && k%n == 0
			if got := r.DueOn(&anchor, target); got != want {
				t.Errorf("%s k=%d got %v, want %v", r, k, got, want)
			}
		}
	}
}

func TestDueOn_CustomWeeks(t *testing.T) {
	t.Parallel()

	anchor := mustDate(t, "2024-01-03")
	for n := 1; n <= 4; n++ {
		r := Routine{Kind: KindCustom, Interval: n, Unit: UnitWeeks}
		for k := -10; k <= 20; k++ {
			if got, want := r.DueOn(&anchor, anchor.AddDate(0, 0, 7*k)), k >= 0 && k%n == 0; got != want {
				t.Errorf("%s week k=%d got %v, want %v", r, k, got, want)
			}
		}
		for off := 1; off < 7; off++ {
			if r.DueOn(&anchor, anchor.AddDate(0, 0, 7*n+off)) {
				t.Errorf("%s due on a date not aligned to the anchor weekday (offset %d)", r, off)
			}
		}
	}
}

func TestDueOn_CustomMonths(t *testing.T) {
	t.Parallel()

	anchor := mustDate(t, "2024-01-15")
	r := Routine{Kind: KindCustom, Interval: 2, Unit: UnitMonths}

	eachDay(2024, func(d time.Time) {
		m := MonthsBetween(anchor, d)
		want := m >= 0 && m%2 == 0 && d.Day() == 15
		if got := r.DueOn(&anchor, d); got != want {
			t.Errorf("%s on %s = %v, want %v", r, d.Format(dateFormat), got, want)
		}
	})

	before := mustDate(t, "2023-11-15")
	if r.DueOn(&anchor, before) {
		t.Error("custom months must not be due before the anchor")
	}
}

func TestDueOn_CustomWithoutAnchor(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"custom:1:days", "custom:1:weeks", "custom:1:months"} {
		if IsDue(s, nil, mustDate(t, "2024-01-01")) {
			t.Errorf("IsDue(%q) without created_at should be false", s)
		}
	}
}

func TestDueOn_TwoWeekScenario(t *testing.T) {
	t.Parallel()

	created := mustDate(t, "2024-01-01")
	tests := []struct {
		date string
		want bool
	}{
		{"2024-01-01", true},
		{"2024-01-08", false},
		{"2024-01-15", true},
		{"2024-01-16", false},
		{"2024-01-29", true},
	}
	for _, tt := range tests {
		if got := IsDue("custom:2:weeks", &created, mustDate(t, tt.date)); got != tt.want {
			t.Errorf("custom:2:weeks on %s = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestDueOn_AnchorTimeOfDayIgnored(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	// Created late in the evening the day before DST starts.
	created := time.Date(2024, time.March, 9, 23, 30, 0, 0, loc)
	target := time.Date(2024, time.March, 11, 0, 0, 0, 0, loc)

	if !IsDue("custom:2:days", &created, target) {
		t.Error("expected custom:2:days due two calendar days after creation across DST")
	}
	if IsDue("custom:2:days", &created, target.AddDate(0, 0, -1)) {
		t.Error("expected custom:2:days not due one calendar day after creation")
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"daily":           "Daily",
		"never":           "Avoid",
		"weekly:1,3":      "Every Mon, Wed",
		"monthly:5":       "Monthly on day 5",
		"custom:1:weeks":  "Every week",
		"custom:3:months": "Every 3 months",
	}
	for input, want := range tests {
		if got := ParseLenient(input).Describe(); got != want {
			t.Errorf("Describe(%q) = %q, want %q", input, got, want)
		}
	}
}
