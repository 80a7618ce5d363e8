package syncer

import (
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/config"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWindow(t *testing.T) {
	cal := attendance.NewCalendar(wib, nil, nil)
	chunks := splitWindow(cal, punch(1, "00:00"), punch(8, "00:00"), 3)

	require.Len(t, chunks, 3)
	assert.Equal(t, punch(1, "00:00"), chunks[0].from)
	assert.Equal(t, punch(3, "23:59"), chunks[0].to)
	assert.Equal(t, punch(4, "00:00"), chunks[1].from)
	assert.Equal(t, punch(7, "00:00"), chunks[2].from)
	assert.Equal(t, punch(8, "23:59"), chunks[2].to)
}

func TestTouchedRange(t *testing.T) {
	cal := attendance.NewCalendar(wib, nil, nil)

	_, ok := touchedRange([]provider.PunchEvent{{EmployeeCode: "1"}}, cal)
	assert.False(t, ok)

	r, ok := touchedRange([]provider.PunchEvent{
		{EmployeeCode: "1", Timestamp: punch(9, "18:00")},
		{EmployeeCode: "2"},
		{EmployeeCode: "1", Timestamp: punch(7, "08:00")},
	}, cal)
	require.True(t, ok)
	assert.Equal(t, punch(7, "00:00"), r.from)
	assert.Equal(t, punch(9, "23:59"), r.to)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "roster interval", mutate: func(c *Config) { c.RosterInterval = 0 }, wantErr: "roster_interval"},
		{name: "negative retries", mutate: func(c *Config) { c.Retry.MaxRetries = -1 }, wantErr: "max_retries"},
		{name: "unknown backoff", mutate: func(c *Config) { c.Retry.Backoff = retry.Backoff("linear") }, wantErr: "backoff"},
		{name: "bad initial cursor", mutate: func(c *Config) { c.InitialCursor = "2025-10" }, wantErr: "initial_cursor"},
		{name: "good initial cursor", mutate: func(c *Config) { c.InitialCursor = "102025$0" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *syncrun.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.wantErr, cfgErr.Field)
		})
	}
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Location:           wib,
		WorkDays:           []time.Weekday{time.Monday, time.Friday},
		MinMatchScore:      0.5,
		AutoMapThreshold:   0.8,
		MaxCandidates:      5,
		RosterInterval:     24 * time.Hour,
		AttendanceInterval: 5 * time.Minute,
		MaxRetries:         4,
		RetryDelay:         2 * time.Second,
		MaxRetryDelay:      time.Minute,
		Backoff:            "fixed",
		ChunkDays:          7,
		FetchConcurrency:   3,
		MaxPages:           50,
		MaxWindowDays:      92,
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(testSyncConfig())
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
	assert.Equal(t, retry.BackoffFixed, cfg.Retry.Backoff)
	assert.Equal(t, 2*time.Second, cfg.Retry.Delay)
	assert.NoError(t, cfg.Validate())
}
