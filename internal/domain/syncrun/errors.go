package syncrun

import (
	"errors"
	"fmt"
)

var (
	ErrSyncInProgress      = errors.New("a sync of this type is already running")
	ErrOrchestratorStopped = errors.New("orchestrator is not accepting new runs")
	ErrAlreadyStarted      = errors.New("orchestrator already started")
	ErrInvalidSyncType     = errors.New("invalid sync type")
	ErrInvalidMode         = errors.New("invalid sync mode")
	ErrWindowRequired      = errors.New("full sync requires start_date and end_date")
	ErrWindowTooLarge      = errors.New("sync window exceeds the configured maximum")
	ErrRunNotFound         = errors.New("sync run not found")
	ErrNotRunning          = errors.New("no sync of this type is running")
	ErrRunCancelled        = errors.New("sync run cancelled by operator")
)

// ConfigurationError is raised when required settings are missing or
// unsafe. The orchestrator refuses to start.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}
