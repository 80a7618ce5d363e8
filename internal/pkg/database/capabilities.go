package database

import (
	"context"
	"fmt"
	"log/slog"
)

// Capabilities records optional schema features present in the connected
// database. They are detected once at start-up; repositories choose their
// statements from them instead of retrying with older column sets.
type Capabilities struct {
	// AttendanceMissingCheckOut is set when daily_attendance has the
	// missing_check_out column (migration 0002).
	AttendanceMissingCheckOut bool
	// AttendancePunchCount is set when daily_attendance has punch_count
	// (migration 0002).
	AttendancePunchCount bool
}

type columnRef struct {
	table  string
	column string
	dst    *bool
}

// DetectCapabilities inspects information_schema for optional columns.
func DetectCapabilities(ctx context.Context, q Querier) (Capabilities, error) {
	var caps Capabilities
	refs := []columnRef{
		{"daily_attendance", "missing_check_out", &caps.AttendanceMissingCheckOut},
		{"daily_attendance", "punch_count", &caps.AttendancePunchCount},
	}

	for _, ref := range refs {
		var exists bool
		err := q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
			)`, ref.table, ref.column).Scan(&exists)
		if err != nil {
			return Capabilities{}, fmt.Errorf("detect column %s.%s: %w", ref.table, ref.column, err)
		}
		*ref.dst = exists
	}

	slog.Info("Schema capabilities detected",
		"attendance_missing_check_out", caps.AttendanceMissingCheckOut,
		"attendance_punch_count", caps.AttendancePunchCount,
	)
	return caps, nil
}

// AllCapabilities is the capability set of a fully migrated schema.
func AllCapabilities() Capabilities {
	return Capabilities{AttendanceMissingCheckOut: true, AttendancePunchCount: true}
}
