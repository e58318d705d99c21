// Package ical implements a fail-soft iCalendar reader: it extracts
// concrete event occurrences (including recurrence-expanded instances)
// from raw feed text, skipping anything it cannot interpret.
package ical

import (
	"errors"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	appLog "freetrack/internal/log"
	"freetrack/internal/model"
)

// pendingEvent accumulates properties of an open VEVENT until END:VEVENT,
// where it is validated into an immutable model.Occurrence.
type pendingEvent struct {
	id       string
	title    string
	start    time.Time
	end      time.Time
	hasStart bool
	hasEnd   bool
	allDay   bool
	rawRRule string
}

// Parse extracts all event occurrences from a single feed's raw text that
// overlap [rangeStart, rangeEnd). Recurring events are expanded within the
// same range. Parse never fails: malformed properties and events are
// skipped and whatever could be extracted is returned.
func Parse(feedText, sourceName string, rangeStart, rangeEnd time.Time) []model.Occurrence {
	lines := unfoldLines(feedText)

	occurrences := make([]model.Occurrence, 0)
	var cur *pendingEvent

	for _, line := range lines {
		switch {
		case strings.EqualFold(line, "BEGIN:VEVENT"):
			cur = &pendingEvent{}

		case strings.EqualFold(line, "END:VEVENT"):
			if cur != nil {
				occurrences = append(occurrences, finalizeEvent(cur, sourceName, rangeStart, rangeEnd)...)
			}
			cur = nil

		default:
			if cur == nil {
				continue
			}
			key, params, value, ok := splitProperty(line)
			if !ok {
				continue
			}
			applyProperty(cur, key, params, value)
		}
	}

	appLog.Debug("ical parse completed", "source", sourceName, "occurrence_count", len(occurrences))
	return occurrences
}

// unfoldLines splits raw feed text into logical lines, applying RFC-5545
// line unfolding: a continuation line starts with one space or tab, which
// is stripped and the remainder appended to the previous logical line.
func unfoldLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSuffix(line, "\r")
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(out) > 0 {
			out[len(out)-1] += line[1:]
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitProperty splits a logical line into base key, parameter block and
// value. The parameter block (after the first ';' in the key part) is
// returned separately since it can change value decoding.
func splitProperty(line string) (key, params, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", "", false
	}
	keyPart := line[:idx]
	value = line[idx+1:]

	if semi := strings.Index(keyPart, ";"); semi >= 0 {
		key = keyPart[:semi]
		params = keyPart[semi+1:]
	} else {
		key = keyPart
	}
	return strings.ToUpper(key), params, value, true
}

func applyProperty(ev *pendingEvent, key, params, value string) {
	switch key {
	case "UID":
		ev.id = value
	case "SUMMARY":
		// TEXT unescaping: \n \, \; \\ in a single pass, never re-scanned.
		ev.title = ics.FromText(value)
	case "DTSTART":
		t, isDate, err := decodeDateTime(value, params)
		if err != nil {
			return
		}
		ev.start = t
		ev.hasStart = true
		// All-day-ness is taken from DTSTART only.
		ev.allDay = isDate
	case "DTEND":
		t, _, err := decodeDateTime(value, params)
		if err != nil {
			return
		}
		ev.end = t
		ev.hasEnd = true
	case "RRULE":
		// Kept raw; decoded only if the event closes successfully.
		ev.rawRRule = value
	}
}

// decodeDateTime decodes an iCalendar DATE or DATE-TIME value.
//
// A value is a date (all-day) when the parameter block carries VALUE=DATE
// or the value is exactly 8 characters (YYYYMMDD, local calendar).
// Otherwise it is YYYYMMDDTHHMMSS, optionally suffixed Z for UTC; without
// the suffix it is naive local wall-clock time. A TZID parameter is
// recognized syntactically but deliberately does not affect the decoded
// instant. Seconds default to 0 when absent or unparseable.
func decodeDateTime(value, params string) (t time.Time, isDate bool, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, errors.New("empty date value")
	}

	if strings.Contains(strings.ToUpper(params), "VALUE=DATE") || len(value) == 8 {
		t, err = time.ParseInLocation("20060102", value, time.Local)
		return t, true, err
	}

	loc := time.Local
	if strings.HasSuffix(value, "Z") {
		loc = time.UTC
		value = strings.TrimSuffix(value, "Z")
	}

	if len(value) < 13 || value[8] != 'T' {
		return time.Time{}, false, errors.New("unrecognized date-time value")
	}

	year, err1 := strconv.Atoi(value[0:4])
	month, err2 := strconv.Atoi(value[4:6])
	day, err3 := strconv.Atoi(value[6:8])
	hour, err4 := strconv.Atoi(value[9:11])
	minute, err5 := strconv.Atoi(value[11:13])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return time.Time{}, false, errors.New("unrecognized date-time value")
	}

	sec := 0
	if len(value) >= 15 {
		if s, serr := strconv.Atoi(value[13:15]); serr == nil {
			sec = s
		}
	}

	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, loc), false, nil
}

// finalizeEvent validates a closed VEVENT and returns the occurrences it
// contributes: the original instance if it overlaps the range, plus any
// recurrence-expanded instances. An event lacking a decodable start or end
// is dropped entirely.
func finalizeEvent(ev *pendingEvent, sourceName string, rangeStart, rangeEnd time.Time) []model.Occurrence {
	if !ev.hasStart || !ev.hasEnd {
		appLog.Debug("ical event dropped: undecodable dates", "source", sourceName, "uid", ev.id)
		return nil
	}

	origin := model.Occurrence{
		ID:         ev.id,
		Title:      ev.title,
		Start:      ev.start,
		End:        ev.end,
		AllDay:     ev.allDay,
		SourceName: sourceName,
	}

	var out []model.Occurrence
	if overlaps(origin.Start, origin.End, rangeStart, rangeEnd) {
		out = append(out, origin)
	}

	// Expansion runs regardless of whether the original instance itself is
	// in range; it applies its own per-instance range filter.
	if ev.rawRRule != "" {
		rule := parseRule(ev.rawRRule)
		out = append(out, expandRule(origin, rule, rangeStart, rangeEnd)...)
	}

	return out
}

// overlaps applies the half-open interval test against [rangeStart, rangeEnd).
func overlaps(start, end, rangeStart, rangeEnd time.Time) bool {
	return end.After(rangeStart) && start.Before(rangeEnd)
}
