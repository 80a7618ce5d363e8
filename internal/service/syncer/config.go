package syncer

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/config"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/retry"
)

// Config tunes scheduling, retries and fetch fan-out.
type Config struct {
	RosterInterval     time.Duration
	AttendanceInterval time.Duration
	Retry              retry.Policy
	ChunkDays          int
	FetchConcurrency   int
	MaxPages           int
	MaxWindowDays      int
	InitialCursor      string
}

func ConfigFrom(c config.SyncConfig) Config {
	return Config{
		RosterInterval:     c.RosterInterval,
		AttendanceInterval: c.AttendanceInterval,
		Retry: retry.Policy{
			MaxRetries: c.MaxRetries,
			Delay:      c.RetryDelay,
			MaxDelay:   c.MaxRetryDelay,
			Backoff:    retry.Backoff(c.Backoff),
		},
		ChunkDays:        c.ChunkDays,
		FetchConcurrency: c.FetchConcurrency,
		MaxPages:         c.MaxPages,
		MaxWindowDays:    c.MaxWindowDays,
		InitialCursor:    c.InitialCursor,
	}
}

// Validate returns a *syncrun.ConfigurationError for the first unusable setting.
func (c Config) Validate() error {
	fail := func(field, reason string) error {
		return &syncrun.ConfigurationError{Field: field, Reason: reason}
	}

	switch {
	case c.RosterInterval <= 0:
		return fail("roster_interval", "must be positive")
	case c.AttendanceInterval <= 0:
		return fail("attendance_interval", "must be positive")
	case c.Retry.MaxRetries < 0:
		return fail("max_retries", "must not be negative")
	case c.Retry.Delay < 0 || c.Retry.MaxDelay < 0:
		return fail("retry_delay", "must not be negative")
	case c.Retry.Backoff != retry.BackoffFixed && c.Retry.Backoff != retry.BackoffExponential:
		return fail("backoff", "must be fixed or exponential")
	case c.ChunkDays < 1:
		return fail("chunk_days", "must be at least 1")
	case c.FetchConcurrency < 1:
		return fail("fetch_concurrency", "must be at least 1")
	case c.MaxPages < 1:
		return fail("max_pages", "must be at least 1")
	case c.MaxWindowDays < 1:
		return fail("max_window_days", "must be at least 1")
	}

	if c.InitialCursor != "" {
		if _, err := provider.ParseCursor(c.InitialCursor); err != nil {
			return fail("initial_cursor", err.Error())
		}
	}
	return nil
}
