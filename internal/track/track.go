// Package track orchestrates a refresh cycle: fetch every enabled feed,
// parse it, aggregate the occurrences and calculate free time. A failure
// fetching or parsing one feed contributes zero occurrences and never
// prevents aggregation of the others.
package track

import (
	"context"
	"sync"
	"time"

	"freetrack/internal/config"
	"freetrack/internal/feed"
	"freetrack/internal/freetime"
	"freetrack/internal/ical"
	appLog "freetrack/internal/log"
	"freetrack/internal/model"
)

// Presenter receives each calculation result. The binary installs a
// logging presenter; other collaborators (status bars, notifiers) plug in
// the same way.
type Presenter interface {
	Present(result model.FreeTimeResult)
}

// Tracker runs refresh cycles against the configured calendar sources.
type Tracker struct {
	cfg   *config.Config
	fetch feed.FetchFunc

	// refreshMu serializes cycles: the feed cache underneath the fetch
	// capability is not required to be thread-safe.
	refreshMu sync.Mutex

	latestMu sync.RWMutex
	latest   *model.FreeTimeResult
}

// New creates a Tracker using the given fetch capability. Passing nil
// installs the default HTTP fetcher with a fresh feed cache.
func New(cfg *config.Config, fetch feed.FetchFunc) *Tracker {
	if fetch == nil {
		fetch = feed.NewFetcher(feed.NewCache()).Fetch
	}
	return &Tracker{cfg: cfg, fetch: fetch}
}

// Refresh runs one full cycle anchored at now and returns the result. It
// never fails: unreachable feeds are logged and skipped, and zero enabled
// feeds is simply a zero-occurrence result.
func (t *Tracker) Refresh(ctx context.Context, now time.Time) model.FreeTimeResult {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	rangeStart, rangeEnd := freetime.Period(now, t.cfg.LookaheadDays)

	occurrences := make([]model.Occurrence, 0)
	for _, src := range t.cfg.Calendars {
		if !src.IsEnabled() || src.URL == "" {
			continue
		}

		name := src.Name
		if name == "" {
			name = src.URL
		}

		body, err := t.fetch(ctx, feed.NormalizeURL(src.URL))
		if err != nil {
			appLog.Error("feed fetch failed; contributing zero occurrences", err, "source", name)
			continue
		}

		occurrences = append(occurrences, ical.Parse(body, name, rangeStart, rangeEnd)...)
	}

	result := freetime.Calculate(occurrences, freetime.Config{
		TrackingStartHour:      t.cfg.TrackingStartHour,
		TrackingEndHour:        t.cfg.TrackingEndHour,
		IncludeWeekends:        t.cfg.IncludeWeekends,
		ExcludedKeywords:       t.cfg.ExcludedKeywords,
		WarningThresholdHours:  t.cfg.WarningHours,
		CriticalThresholdHours: t.cfg.CriticalHours,
		LookaheadDays:          t.cfg.LookaheadDays,
	}, now)

	t.latestMu.Lock()
	t.latest = &result
	t.latestMu.Unlock()

	appLog.Info("refresh completed",
		"occurrence_count", len(occurrences),
		"busy_blocks", len(result.BusyBlocks),
		"scheduled_hours", result.ScheduledHours,
		"free_hours", result.FreeHours,
		"warning_level", result.WarningLevel,
	)

	return result
}

// Latest returns the most recent result, if any cycle has completed.
func (t *Tracker) Latest() (model.FreeTimeResult, bool) {
	t.latestMu.RLock()
	defer t.latestMu.RUnlock()
	if t.latest == nil {
		return model.FreeTimeResult{}, false
	}
	return *t.latest, true
}

// LogPresenter writes each result to the application log.
type LogPresenter struct{}

func (LogPresenter) Present(result model.FreeTimeResult) {
	msg := "free time status"
	kv := []any{
		"free_hours", result.FreeHours,
		"scheduled_hours", result.ScheduledHours,
		"total_trackable_hours", result.TotalTrackableHours,
		"percentage_free", result.PercentageFree,
	}
	switch result.WarningLevel {
	case model.WarningCritical:
		appLog.Warn(msg+": critically low", kv...)
	case model.WarningWarning:
		appLog.Warn(msg+": running low", kv...)
	default:
		appLog.Info(msg, kv...)
	}
}
