package model

import "time"

// Occurrence represents one concrete happening of a calendar event,
// whether the original instance or one generated by recurrence expansion.
type Occurrence struct {
	// ID is unique per occurrence: the base UID for the original instance,
	// UID-<startMillis> for expanded recurrence instances, and further
	// suffixed with the calendar day when clipped into a tracking window.
	ID string

	Title string

	Start time.Time
	End   time.Time

	AllDay bool

	// SourceName is the display name of the calendar feed this came from.
	SourceName string
}

// Duration returns the occurrence's span. Malformed feeds can yield
// zero or negative durations; callers treat those as zero busy time.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// TimeBlock is a maximal merged interval of overlapping or touching busy
// occurrences. Immutable once emitted.
type TimeBlock struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int64     `json:"duration_minutes"`
}

// WarningLevel classifies how much free time remains.
type WarningLevel string

const (
	WarningNone     WarningLevel = "none"
	WarningWarning  WarningLevel = "warning"
	WarningCritical WarningLevel = "critical"
)

// FreeTimeResult is the sole output artifact of a calculation cycle.
type FreeTimeResult struct {
	TotalTrackableHours float64 `json:"total_trackable_hours"`
	ScheduledHours      float64 `json:"scheduled_hours"`
	FreeHours           float64 `json:"free_hours"`
	PercentageFree      float64 `json:"percentage_free"`

	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	BusyBlocks []TimeBlock `json:"busy_blocks"`

	WarningLevel WarningLevel `json:"warning_level"`
}
