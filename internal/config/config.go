package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarSource describes a single subscribed calendar feed.
type CalendarSource struct {
	// URL is the iCalendar endpoint. webcal:// URLs are normalized to
	// https:// before fetching.
	URL string `yaml:"url" json:"url"`
	// Name is a human-friendly label used as the occurrence source name.
	Name string `yaml:"name" json:"name"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled reports whether the source participates in refresh cycles.
func (c CalendarSource) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// TrackingStartHour / TrackingEndHour bound the daily clock-time
	// window (0-23) counted toward the free-time budget.
	TrackingStartHour int `yaml:"tracking_start_hour" json:"tracking_start_hour"`
	TrackingEndHour   int `yaml:"tracking_end_hour" json:"tracking_end_hour"`

	// IncludeWeekends counts Saturdays and Sundays as trackable days.
	IncludeWeekends bool `yaml:"include_weekends" json:"include_weekends"`

	// ExcludedKeywords drops occurrences whose title contains any of
	// these, case-insensitively.
	ExcludedKeywords []string `yaml:"excluded_keywords" json:"excluded_keywords"`

	// WarningHours / CriticalHours are the inclusive free-hour thresholds
	// for the warning classification.
	WarningHours  float64 `yaml:"warning_hours" json:"warning_hours"`
	CriticalHours float64 `yaml:"critical_hours" json:"critical_hours"`

	// LookaheadDays is the forward-looking horizon in days.
	LookaheadDays int `yaml:"lookahead_days" json:"lookahead_days"`

	// Calendars is the list of subscribed feeds.
	Calendars []CalendarSource `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            "127.0.0.1:8080",
		RefreshCron:       "*/15 * * * *",
		TrackingStartHour: 9,
		TrackingEndHour:   20,
		IncludeWeekends:   false,
		ExcludedKeywords:  []string{},
		WarningHours:      15,
		CriticalHours:     5,
		LookaheadDays:     7,
		Calendars:         []CalendarSource{},
		BasicAuth:         nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. Tracking hours are
// clamped to 0-23 but their ordering is left alone: an end hour at or
// before the start hour is a degenerate window, not an error.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	c.TrackingStartHour = clampHour(c.TrackingStartHour)
	c.TrackingEndHour = clampHour(c.TrackingEndHour)
	if c.WarningHours < 0 {
		c.WarningHours = 0
	}
	if c.CriticalHours < 0 {
		c.CriticalHours = 0
	}
	if c.LookaheadDays <= 0 {
		c.LookaheadDays = 7
	}
	if c.ExcludedKeywords == nil {
		c.ExcludedKeywords = []string{}
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarSource{}
	}
}

func clampHour(h int) int {
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (creating
// the parent directory if needed) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".freetrack-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
