package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	JWT      JWTConfig
	App      AppConfig
	Provider ProviderConfig
	Sync     SyncConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// JWTConfig holds the secret used to verify operator tokens
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port           int
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

// ProviderConfig holds the time-and-attendance provider credentials.
type ProviderConfig struct {
	BaseURL     string
	CorporateID string
	Username    string
	Password    string
	Timeout     time.Duration
	RateLimit   float64
	Location    *time.Location
}

// SyncConfig tunes matching, normalization and scheduling.
type SyncConfig struct {
	Location           *time.Location
	WorkDays           []time.Weekday
	Holidays           []string
	MinMatchScore      float64
	AutoMapThreshold   float64
	MaxCandidates      int
	RosterInterval     time.Duration
	AttendanceInterval time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	MaxRetryDelay      time.Duration
	Backoff            string
	ChunkDays          int
	FetchConcurrency   int
	MaxPages           int
	MaxWindowDays      int
	InitialCursor      string
}

// ConfigError is returned for missing or unsafe settings.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %s", e.Key, e.Reason)
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{}
	var err error

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "attendance_sync"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:           appPort,
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS"),
	}

	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	// Provider configuration
	providerTimeout, err := time.ParseDuration(getEnv("PROVIDER_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
	}
	providerRate, err := strconv.ParseFloat(getEnv("PROVIDER_RATE_LIMIT", "2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_RATE_LIMIT: %w", err)
	}
	providerLoc, err := time.LoadLocation(getEnv("PROVIDER_TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEZONE: %w", err)
	}

	config.Provider = ProviderConfig{
		BaseURL:     getEnv("PROVIDER_BASE_URL", ""),
		CorporateID: getEnv("PROVIDER_CORPORATE_ID", ""),
		Username:    getEnv("PROVIDER_USERNAME", ""),
		Password:    getEnv("PROVIDER_PASSWORD", ""),
		Timeout:     providerTimeout,
		RateLimit:   providerRate,
		Location:    providerLoc,
	}

	config.Sync, err = loadSyncConfig()
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadSyncConfig() (SyncConfig, error) {
	var cfg SyncConfig
	var err error

	if cfg.Location, err = time.LoadLocation(getEnv("SYNC_TIMEZONE", "Asia/Kolkata")); err != nil {
		return cfg, fmt.Errorf("invalid SYNC_TIMEZONE: %w", err)
	}
	if cfg.WorkDays, err = parseWeekdays(getEnv("SYNC_WORK_DAYS", "mon,tue,wed,thu,fri,sat")); err != nil {
		return cfg, fmt.Errorf("invalid SYNC_WORK_DAYS: %w", err)
	}
	cfg.Holidays = getEnvSlice("SYNC_HOLIDAYS")
	for _, h := range cfg.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return cfg, fmt.Errorf("invalid SYNC_HOLIDAYS entry %q: %w", h, err)
		}
	}

	floats := []struct {
		key      string
		fallback string
		dst      *float64
	}{
		{"SYNC_MIN_MATCH_SCORE", "0.5", &cfg.MinMatchScore},
		{"SYNC_AUTO_MAP_THRESHOLD", "0.8", &cfg.AutoMapThreshold},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(getEnv(f.key, f.fallback), 64); err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", f.key, err)
		}
	}

	ints := []struct {
		key      string
		fallback string
		dst      *int
	}{
		{"SYNC_MAX_CANDIDATES", "5", &cfg.MaxCandidates},
		{"SYNC_MAX_RETRIES", "5", &cfg.MaxRetries},
		{"SYNC_CHUNK_DAYS", "7", &cfg.ChunkDays},
		{"SYNC_FETCH_CONCURRENCY", "3", &cfg.FetchConcurrency},
		{"SYNC_MAX_PAGES", "50", &cfg.MaxPages},
		{"SYNC_MAX_WINDOW_DAYS", "92", &cfg.MaxWindowDays},
	}
	for _, i := range ints {
		if *i.dst, err = strconv.Atoi(getEnv(i.key, i.fallback)); err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", i.key, err)
		}
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"SYNC_ROSTER_INTERVAL", "24h", &cfg.RosterInterval},
		{"SYNC_ATTENDANCE_INTERVAL", "5m", &cfg.AttendanceInterval},
		{"SYNC_RETRY_DELAY", "2s", &cfg.RetryDelay},
		{"SYNC_MAX_RETRY_DELAY", "1m", &cfg.MaxRetryDelay},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getEnv(d.key, d.fallback)); err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	cfg.Backoff = getEnv("SYNC_BACKOFF", "exponential")
	cfg.InitialCursor = getEnv("SYNC_INITIAL_CURSOR", "")
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return &ConfigError{Key: "DB_PASSWORD", Reason: "is required"}
	}
	if c.JWT.Secret == "" {
		return &ConfigError{Key: "JWT_SECRET_KEY", Reason: "is required"}
	}
	if err := c.Provider.Validate(); err != nil {
		return err
	}
	return c.Sync.Validate()
}

// Validate checks provider credentials. A partially configured provider is
// never used with defaults.
func (p ProviderConfig) Validate() error {
	switch {
	case p.BaseURL == "":
		return &ConfigError{Key: "PROVIDER_BASE_URL", Reason: "is required"}
	case p.CorporateID == "":
		return &ConfigError{Key: "PROVIDER_CORPORATE_ID", Reason: "is required"}
	case p.Username == "":
		return &ConfigError{Key: "PROVIDER_USERNAME", Reason: "is required"}
	case p.Password == "":
		return &ConfigError{Key: "PROVIDER_PASSWORD", Reason: "is required"}
	case p.Timeout <= 0:
		return &ConfigError{Key: "PROVIDER_TIMEOUT", Reason: "must be positive"}
	}
	return nil
}

// Validate checks thresholds and cadences.
func (s SyncConfig) Validate() error {
	switch {
	case s.Location == nil:
		return &ConfigError{Key: "SYNC_TIMEZONE", Reason: "is required"}
	case len(s.WorkDays) == 0:
		return &ConfigError{Key: "SYNC_WORK_DAYS", Reason: "must name at least one day"}
	case s.MinMatchScore <= 0 || s.MinMatchScore > 1:
		return &ConfigError{Key: "SYNC_MIN_MATCH_SCORE", Reason: "must be in (0, 1]"}
	case s.AutoMapThreshold < s.MinMatchScore || s.AutoMapThreshold > 1:
		return &ConfigError{Key: "SYNC_AUTO_MAP_THRESHOLD", Reason: "must be in [SYNC_MIN_MATCH_SCORE, 1]"}
	case s.MaxCandidates < 1:
		return &ConfigError{Key: "SYNC_MAX_CANDIDATES", Reason: "must be at least 1"}
	case s.RosterInterval <= 0:
		return &ConfigError{Key: "SYNC_ROSTER_INTERVAL", Reason: "must be positive"}
	case s.AttendanceInterval <= 0:
		return &ConfigError{Key: "SYNC_ATTENDANCE_INTERVAL", Reason: "must be positive"}
	case s.MaxRetries < 0:
		return &ConfigError{Key: "SYNC_MAX_RETRIES", Reason: "must not be negative"}
	case s.RetryDelay < 0:
		return &ConfigError{Key: "SYNC_RETRY_DELAY", Reason: "must not be negative"}
	case s.Backoff != "fixed" && s.Backoff != "exponential":
		return &ConfigError{Key: "SYNC_BACKOFF", Reason: "must be fixed or exponential"}
	case s.ChunkDays < 1:
		return &ConfigError{Key: "SYNC_CHUNK_DAYS", Reason: "must be at least 1"}
	case s.FetchConcurrency < 1:
		return &ConfigError{Key: "SYNC_FETCH_CONCURRENCY", Reason: "must be at least 1"}
	case s.MaxPages < 1:
		return &ConfigError{Key: "SYNC_MAX_PAGES", Reason: "must be at least 1"}
	case s.MaxWindowDays < 1:
		return &ConfigError{Key: "SYNC_MAX_WINDOW_DAYS", Reason: "must be at least 1"}
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (a AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(a.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseWeekdays(value string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(value, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if len(name) > 3 {
			name = name[:3]
		}
		day, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		days = append(days, day)
	}
	return days, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
