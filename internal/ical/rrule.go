package ical

import (
	"strconv"
	"strings"
	"time"

	"freetrack/internal/model"
)

// Recurrence expansion is deliberately approximate: it covers
// FREQ/INTERVAL/UNTIL/COUNT/BYDAY and silently ignores every other
// qualifier (BYMONTHDAY, BYSETPOS, EXDATE, ...), so the instance stream
// is not guaranteed complete for complex rules.

// maxExpandIterations caps recurrence expansion so a malformed or
// unbounded rule can never loop forever.
const maxExpandIterations = 365

// rule is a decoded RRULE, consumed once during expansion.
type rule struct {
	freq     string
	interval int
	until    *time.Time
	count    int
	byDay    []time.Weekday
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// parseRule decodes a raw RRULE value. Unknown sub-keys and unparseable
// values are ignored; a missing FREQ yields a rule that expands nothing.
func parseRule(raw string) rule {
	r := rule{interval: 1}

	for _, part := range strings.Split(raw, ";") {
		eq := strings.Index(part, "=")
		if eq < 0 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(part[:eq]))
		val := strings.TrimSpace(part[eq+1:])

		switch key {
		case "FREQ":
			r.freq = strings.ToUpper(val)
		case "INTERVAL":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				r.interval = n
			}
		case "UNTIL":
			if t, _, err := decodeDateTime(val, ""); err == nil {
				r.until = &t
			}
		case "COUNT":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				r.count = n
			}
		case "BYDAY":
			for _, tok := range strings.Split(val, ",") {
				// Strip a leading ordinal/sign ("2TU", "-1FR"); only the
				// two-letter weekday code is used.
				tok = strings.TrimSpace(tok)
				if len(tok) < 2 {
					continue
				}
				if wd, ok := weekdayCodes[strings.ToUpper(tok[len(tok)-2:])]; ok {
					r.byDay = append(r.byDay, wd)
				}
			}
		}
	}

	return r
}

// expandRule generates the recurrence instances of origin within
// [rangeStart, rangeEnd). The origin instance itself is never among the
// generated instances. Each instance keeps the origin's duration and is
// keyed originID-<startMillis>.
func expandRule(origin model.Occurrence, r rule, rangeStart, rangeEnd time.Time) []model.Occurrence {
	if r.freq == "" {
		return nil
	}

	if r.freq == "WEEKLY" && len(r.byDay) > 0 {
		return expandWeeklyByDay(origin, r, rangeStart, rangeEnd)
	}

	return expandStepped(origin, r, rangeStart, rangeEnd)
}

// expandWeeklyByDay handles the explicit weekly pattern: one instance per
// listed weekday per week, weeks being Sunday-aligned and stepped by the
// rule's interval. COUNT does not apply on this branch, only UNTIL.
func expandWeeklyByDay(origin model.Occurrence, r rule, rangeStart, rangeEnd time.Time) []model.Occurrence {
	dur := origin.End.Sub(origin.Start)

	// Sunday-aligned start of the origin's week, at the origin's
	// time-of-day.
	weekBase := origin.Start.AddDate(0, 0, -int(origin.Start.Weekday()))

	var out []model.Occurrence
	for week := 0; week < maxExpandIterations; week++ {
		base := weekBase.AddDate(0, 0, week*r.interval*7)
		if !base.Before(rangeEnd) {
			break
		}
		for _, wd := range r.byDay {
			inst := base.AddDate(0, 0, int(wd))
			if inst.Equal(origin.Start) || inst.Before(origin.Start) {
				continue
			}
			if !inst.Before(rangeEnd) {
				continue
			}
			if r.until != nil && inst.After(*r.until) {
				continue
			}
			if inst.Before(rangeStart) {
				continue
			}
			out = append(out, instanceOf(origin, inst, dur))
		}
	}
	return out
}

// expandStepped handles DAILY, WEEKLY without BYDAY, MONTHLY and YEARLY by
// stepping the origin start forward one period at a time. The first
// candidate is the instance one period after the original; subsequent
// candidates step by the rule's interval.
func expandStepped(origin model.Occurrence, r rule, rangeStart, rangeEnd time.Time) []model.Occurrence {
	var step func(t time.Time, n int) time.Time
	switch r.freq {
	case "DAILY":
		step = func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) }
	case "WEEKLY":
		step = func(t time.Time, n int) time.Time { return t.AddDate(0, 0, 7*n) }
	case "MONTHLY":
		step = func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) }
	case "YEARLY":
		step = func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) }
	default:
		return nil
	}

	dur := origin.End.Sub(origin.Start)

	var out []model.Occurrence
	t := step(origin.Start, 1)
	for i := 0; i < maxExpandIterations; i++ {
		if !t.Before(rangeEnd) {
			break
		}
		if r.until != nil && t.After(*r.until) {
			break
		}
		if r.count > 0 && i >= r.count-1 {
			break
		}
		if !t.Before(rangeStart) {
			out = append(out, instanceOf(origin, t, dur))
		}
		t = step(t, r.interval)
	}
	return out
}

func instanceOf(origin model.Occurrence, start time.Time, dur time.Duration) model.Occurrence {
	return model.Occurrence{
		ID:         origin.ID + "-" + strconv.FormatInt(start.UnixMilli(), 10),
		Title:      origin.Title,
		Start:      start,
		End:        start.Add(dur),
		AllDay:     origin.AllDay,
		SourceName: origin.SourceName,
	}
}
