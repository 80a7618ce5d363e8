package attendance

import "errors"

var (
	// ErrManualOverride means a provider write lost to a manually corrected
	// record. It is informational, not a failure.
	ErrManualOverride = errors.New("attendance record is manually maintained")

	ErrAttendanceNotFound = errors.New("attendance record not found")
	ErrInvalidDateRange   = errors.New("invalid date range")
)
