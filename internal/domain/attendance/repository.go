package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AttendanceRepository persists daily attendance records.
type AttendanceRepository interface {
	// Upsert inserts or replaces the record for (identity, date). When the
	// stored row is manual and the write is not, nothing changes and
	// ErrManualOverride is returned.
	Upsert(ctx context.Context, record DailyRecord) (DailyRecord, error)

	// GetByIdentityAndDate returns nil when no record exists.
	GetByIdentityAndDate(ctx context.Context, localIdentityID uuid.UUID, date time.Time) (*DailyRecord, error)

	// ListByDateRange returns records with date in [from, to].
	ListByDateRange(ctx context.Context, from, to time.Time) ([]DailyRecord, error)
}
