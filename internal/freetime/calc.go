// Package freetime derives free/busy statistics from event occurrences:
// it clips busy time to the daily tracking window over the lookahead
// horizon, merges overlapping intervals, and classifies the remaining
// free hours.
package freetime

import (
	"sort"
	"strings"
	"time"

	"freetrack/internal/model"
)

// Config is the user-owned tracking configuration, read-only to the
// calculator. Validation is an external concern; degenerate values (e.g.
// TrackingEndHour <= TrackingStartHour) produce degenerate but
// mathematically valid output.
type Config struct {
	TrackingStartHour int
	TrackingEndHour   int
	IncludeWeekends   bool
	ExcludedKeywords  []string

	WarningThresholdHours  float64
	CriticalThresholdHours float64

	LookaheadDays int
}

// Calculate produces a FreeTimeResult from the given occurrences. It is a
// pure function of its inputs and never fails; empty input yields
// freeHours == totalTrackableHours.
func Calculate(occurrences []model.Occurrence, cfg Config, now time.Time) model.FreeTimeResult {
	periodStart, periodEnd := Period(now, cfg.LookaheadDays)

	// Both endpoints are inclusive here, so a lookahead of N covers N+1
	// calendar days.
	days := trackableDays(periodStart, periodEnd, cfg.IncludeWeekends)

	totalTrackableHours := float64(len(days)) * float64(cfg.TrackingEndHour-cfg.TrackingStartHour)

	kept := excludeByKeyword(occurrences, cfg.ExcludedKeywords)
	clipped := clipToWindows(kept, days, cfg.TrackingStartHour, cfg.TrackingEndHour)
	blocks := mergeBlocks(clipped)

	var scheduledMinutes int64
	for _, b := range blocks {
		scheduledMinutes += b.DurationMinutes
	}
	scheduledHours := float64(scheduledMinutes) / 60

	freeHours := totalTrackableHours - scheduledHours
	if freeHours < 0 {
		freeHours = 0
	}

	percentageFree := 0.0
	if totalTrackableHours > 0 {
		percentageFree = freeHours / totalTrackableHours * 100
	}

	return model.FreeTimeResult{
		TotalTrackableHours: totalTrackableHours,
		ScheduledHours:      scheduledHours,
		FreeHours:           freeHours,
		PercentageFree:      percentageFree,
		PeriodStart:         periodStart,
		PeriodEnd:           periodEnd,
		BusyBlocks:          blocks,
		WarningLevel:        classify(freeHours, cfg),
	}
}

// Period returns the evaluation window for a calculation anchored at now:
// local midnight of now's day through the millisecond-aligned end of the
// day lookaheadDays later. Both endpoints are treated as inclusive when
// enumerating trackable days.
func Period(now time.Time, lookaheadDays int) (time.Time, time.Time) {
	loc := now.Location()
	periodStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	lastDay := periodStart.AddDate(0, 0, lookaheadDays)
	periodEnd := time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day(), 23, 59, 59, 999*int(time.Millisecond), loc)
	return periodStart, periodEnd
}

// trackableDays enumerates the local midnights of every date in
// [periodStart, periodEnd], keeping weekend dates only when requested.
func trackableDays(periodStart, periodEnd time.Time, includeWeekends bool) []time.Time {
	var days []time.Time
	for d := periodStart; !d.After(periodEnd); d = d.AddDate(0, 0, 1) {
		wd := d.Weekday()
		if !includeWeekends && (wd == time.Saturday || wd == time.Sunday) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// excludeByKeyword drops occurrences whose title contains any excluded
// keyword, case-insensitively. An empty keyword list passes everything
// through.
func excludeByKeyword(occurrences []model.Occurrence, keywords []string) []model.Occurrence {
	if len(keywords) == 0 {
		return occurrences
	}

	kept := make([]model.Occurrence, 0, len(occurrences))
	for _, occ := range occurrences {
		title := strings.ToLower(occ.Title)
		excluded := false
		for _, kw := range keywords {
			if kw != "" && strings.Contains(title, strings.ToLower(kw)) {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, occ)
		}
	}
	return kept
}

// clipToWindows tests every non-all-day occurrence against every trackable
// day's window [day@startHour, day@endHour) and emits a day-scoped copy
// clipped to the window. An occurrence spanning multiple tracked windows
// yields multiple copies; all-day occurrences never consume tracked hours.
func clipToWindows(occurrences []model.Occurrence, days []time.Time, startHour, endHour int) []model.Occurrence {
	var clipped []model.Occurrence

	for _, occ := range occurrences {
		if occ.AllDay {
			continue
		}
		for _, day := range days {
			winStart := time.Date(day.Year(), day.Month(), day.Day(), startHour, 0, 0, 0, day.Location())
			winEnd := time.Date(day.Year(), day.Month(), day.Day(), endHour, 0, 0, 0, day.Location())

			if !occ.Start.Before(winEnd) || !occ.End.After(winStart) {
				continue
			}

			clipStart := maxTime(occ.Start, winStart)
			clipEnd := minTime(occ.End, winEnd)
			if !clipEnd.After(clipStart) {
				// Zero or negative span contributes zero busy time.
				continue
			}

			clipped = append(clipped, model.Occurrence{
				ID:         occ.ID + "-" + day.Format("2006-01-02"),
				Title:      occ.Title,
				Start:      clipStart,
				End:        clipEnd,
				SourceName: occ.SourceName,
			})
		}
	}
	return clipped
}

// mergeBlocks merges touching or overlapping occurrences into a minimal
// set of maximal busy blocks ordered by start time.
func mergeBlocks(occurrences []model.Occurrence) []model.TimeBlock {
	blocks := make([]model.TimeBlock, 0, len(occurrences))
	if len(occurrences) == 0 {
		return blocks
	}

	sorted := make([]model.Occurrence, len(occurrences))
	copy(sorted, occurrences)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	curStart := sorted[0].Start
	curEnd := sorted[0].End
	for _, occ := range sorted[1:] {
		if !occ.Start.After(curEnd) {
			curEnd = maxTime(curEnd, occ.End)
			continue
		}
		blocks = append(blocks, newBlock(curStart, curEnd))
		curStart = occ.Start
		curEnd = occ.End
	}
	blocks = append(blocks, newBlock(curStart, curEnd))

	return blocks
}

func newBlock(start, end time.Time) model.TimeBlock {
	return model.TimeBlock{
		Start:           start,
		End:             end,
		DurationMinutes: int64(end.Sub(start) / time.Minute),
	}
}

// classify applies the inclusive thresholds, critical first. A critical
// threshold above the warning threshold leaves the warning band
// unreachable; the order is never corrected here.
func classify(freeHours float64, cfg Config) model.WarningLevel {
	switch {
	case freeHours <= cfg.CriticalThresholdHours:
		return model.WarningCritical
	case freeHours <= cfg.WarningThresholdHours:
		return model.WarningWarning
	default:
		return model.WarningNone
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
