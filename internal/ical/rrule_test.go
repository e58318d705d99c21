package ical

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"freetrack/internal/model"
)

func originAt(start time.Time, dur time.Duration) model.Occurrence {
	return model.Occurrence{
		ID:         "origin",
		Title:      "Recurring",
		Start:      start,
		End:        start.Add(dur),
		SourceName: "cal",
	}
}

func TestParseRule(t *testing.T) {
	r := parseRule("FREQ=WEEKLY;INTERVAL=2;COUNT=10;BYDAY=2TU,-1FR,MO")

	assert.Equal(t, "WEEKLY", r.freq)
	assert.Equal(t, 2, r.interval)
	assert.Equal(t, 10, r.count)
	// Ordinals and signs are stripped; only the weekday code survives.
	assert.Equal(t, []time.Weekday{time.Tuesday, time.Friday, time.Monday}, r.byDay)
	assert.Nil(t, r.until)
}

func TestParseRule_IgnoresUnknownAndBroken(t *testing.T) {
	r := parseRule("FREQ=DAILY;BYMONTHDAY=15;BYSETPOS=2;INTERVAL=zero;COUNT=-3;NOEQUALS")

	assert.Equal(t, "DAILY", r.freq)
	assert.Equal(t, 1, r.interval)
	assert.Equal(t, 0, r.count)
	assert.Empty(t, r.byDay)
}

func TestParseRule_Until(t *testing.T) {
	r := parseRule("FREQ=DAILY;UNTIL=20260910T000000Z")

	require.NotNil(t, r.until)
	assert.True(t, r.until.Equal(time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)))
}

// TestExpand_WeeklyByDay covers the explicit weekly pattern over a 14-day
// range: a Tuesday origin with BYDAY=TU,TH yields the origin plus the
// following Thursday and the next week's Tuesday and Thursday.
func TestExpand_WeeklyByDay(t *testing.T) {
	// 2026-09-01 is a Tuesday.
	text := strings.Join([]string{
		"BEGIN:VEVENT",
		"UID:weekly",
		"DTSTART:20260901T100000Z",
		"DTEND:20260901T110000Z",
		"RRULE:FREQ=WEEKLY;BYDAY=TU,TH",
		"END:VEVENT",
	}, "\n")

	rangeStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := rangeStart.AddDate(0, 0, 14)
	occs := Parse(text, "cal", rangeStart, rangeEnd)

	require.Len(t, occs, 4)

	wantStarts := []time.Time{
		time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),  // origin Tuesday
		time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC),  // Thursday
		time.Date(2026, 9, 8, 10, 0, 0, 0, time.UTC),  // next Tuesday
		time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC), // next Thursday
	}
	seen := map[string]bool{}
	for i, occ := range occs {
		assert.True(t, occ.Start.Equal(wantStarts[i]), "occurrence %d start %v", i, occ.Start)
		assert.False(t, occ.Start.Before(wantStarts[0]), "no instance before the origin")
		assert.False(t, seen[occ.ID], "duplicate id %s", occ.ID)
		seen[occ.ID] = true
	}
	assert.Equal(t, "weekly", occs[0].ID)
	assert.True(t, strings.HasPrefix(occs[1].ID, "weekly-"))
}

func TestExpand_WeeklyByDayUntil(t *testing.T) {
	origin := originAt(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), time.Hour)
	r := parseRule("FREQ=WEEKLY;BYDAY=TU,TH;UNTIL=20260908T100000Z")

	rangeStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	out := expandRule(origin, r, rangeStart, rangeStart.AddDate(0, 0, 28))

	// Instances after UNTIL are excluded; the one exactly at UNTIL stays.
	require.Len(t, out, 2)
	assert.True(t, out[0].Start.Equal(time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC)))
	assert.True(t, out[1].Start.Equal(time.Date(2026, 9, 8, 10, 0, 0, 0, time.UTC)))
}

func TestExpand_WeeklyByDayIgnoresCount(t *testing.T) {
	origin := originAt(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), time.Hour)
	r := parseRule("FREQ=WEEKLY;BYDAY=TU;COUNT=2")

	rangeStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	out := expandRule(origin, r, rangeStart, rangeStart.AddDate(0, 0, 28))

	// COUNT applies only on the stepped branch; four weeks of Tuesdays
	// minus the origin instance.
	require.Len(t, out, 3)
}

func TestExpand_DailyCount(t *testing.T) {
	origin := originAt(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), 30*time.Minute)
	r := parseRule("FREQ=DAILY;COUNT=3")

	rangeStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	out := expandRule(origin, r, rangeStart, rangeStart.AddDate(0, 0, 30))

	// COUNT includes the origin, so two generated instances.
	require.Len(t, out, 2)
	assert.True(t, out[0].Start.Equal(time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)))
	assert.True(t, out[1].Start.Equal(time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, 30*time.Minute, out[0].End.Sub(out[0].Start))
}

func TestExpand_DailyInterval(t *testing.T) {
	origin := originAt(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), time.Hour)
	r := parseRule("FREQ=DAILY;INTERVAL=2")

	rangeStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	out := expandRule(origin, r, rangeStart, rangeStart.AddDate(0, 0, 7))

	// First instance is one period after the origin, then interval steps.
	require.Len(t, out, 3)
	assert.True(t, out[0].Start.Equal(time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)))
	assert.True(t, out[1].Start.Equal(time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC)))
	assert.True(t, out[2].Start.Equal(time.Date(2026, 9, 6, 9, 0, 0, 0, time.UTC)))
}

func TestExpand_MonthlyAndYearly(t *testing.T) {
	origin := originAt(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), time.Hour)
	rangeStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	monthly := expandRule(origin, parseRule("FREQ=MONTHLY"), rangeStart, rangeStart.AddDate(0, 4, 0))
	require.Len(t, monthly, 3)
	assert.True(t, monthly[0].Start.Equal(time.Date(2026, 2, 15, 9, 0, 0, 0, time.UTC)))

	yearly := expandRule(origin, parseRule("FREQ=YEARLY"), rangeStart, rangeStart.AddDate(3, 0, 0))
	require.Len(t, yearly, 2)
	assert.True(t, yearly[1].Start.Equal(time.Date(2028, 1, 15, 9, 0, 0, 0, time.UTC)))
}

func TestExpand_NoFreqNoExpansion(t *testing.T) {
	origin := originAt(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), time.Hour)

	assert.Empty(t, expandRule(origin, parseRule("INTERVAL=2;COUNT=5"), origin.Start, origin.Start.AddDate(0, 0, 30)))
	assert.Empty(t, expandRule(origin, parseRule("FREQ=SECONDLY"), origin.Start, origin.Start.AddDate(0, 0, 30)))
}

func TestExpand_IterationCap(t *testing.T) {
	origin := originAt(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), time.Hour)
	r := parseRule("FREQ=DAILY")

	out := expandRule(origin, r, origin.Start, origin.Start.AddDate(0, 0, 1000))

	assert.Len(t, out, maxExpandIterations)
}

func TestExpand_InstanceIDsUseStartMillis(t *testing.T) {
	origin := originAt(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), time.Hour)
	r := parseRule("FREQ=DAILY;COUNT=2")

	out := expandRule(origin, r, origin.Start, origin.Start.AddDate(0, 0, 10))

	require.Len(t, out, 1)
	want := fmt.Sprintf("origin-%d", time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC).UnixMilli())
	assert.Equal(t, want, out[0].ID)
}

// TestExpand_MatchesRRuleLibrary cross-checks the approximation against
// teambition/rrule-go for the rule shapes both implement identically.
func TestExpand_MatchesRRuleLibrary(t *testing.T) {
	originStart := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) // Tuesday
	rangeEnd := originStart.AddDate(0, 0, 28)

	cases := []struct {
		name   string
		raw    string
		option rrule.ROption
	}{
		{
			name:   "daily",
			raw:    "FREQ=DAILY",
			option: rrule.ROption{Freq: rrule.DAILY, Dtstart: originStart},
		},
		{
			name:   "weekly by day",
			raw:    "FREQ=WEEKLY;BYDAY=TU,TH",
			option: rrule.ROption{Freq: rrule.WEEKLY, Byweekday: []rrule.Weekday{rrule.TU, rrule.TH}, Wkst: rrule.SU, Dtstart: originStart},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			origin := originAt(originStart, time.Hour)
			got := expandRule(origin, parseRule(tc.raw), originStart, rangeEnd)

			lib, err := rrule.NewRRule(tc.option)
			require.NoError(t, err)
			// The library's stream includes the origin; ours never does.
			libTimes := lib.Between(originStart, rangeEnd.Add(-time.Second), true)
			require.NotEmpty(t, libTimes)
			require.True(t, libTimes[0].Equal(originStart))
			libTimes = libTimes[1:]

			require.Len(t, got, len(libTimes))
			for i := range got {
				assert.True(t, got[i].Start.Equal(libTimes[i]), "instance %d: got %v want %v", i, got[i].Start, libTimes[i])
			}
		})
	}
}
