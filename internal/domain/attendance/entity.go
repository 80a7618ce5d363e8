package attendance

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPresent    Status = "present"
	StatusInProgress Status = "in_progress"
	StatusAbsent     Status = "absent"
	StatusHoliday    Status = "holiday"
)

type Source string

const (
	SourceManual    Source = "manual"
	SourceProvider  Source = "provider"
	SourceBiometric Source = "biometric"
	SourceImport    Source = "import"
)

// DedupKey identifies one logical attendance record.
type DedupKey struct {
	LocalIdentityID uuid.UUID
	Date            string // 2006-01-02
	Source          Source
}

// DailyRecord is the reconciled attendance of one identity on one day.
// Date is midnight of the calendar day in the calendar's zone.
type DailyRecord struct {
	LocalIdentityID uuid.UUID
	Date            time.Time
	CheckInAt       *time.Time
	CheckOutAt      *time.Time
	WorkMinutes     int
	Status          Status
	Source          Source
	MissingCheckOut bool
	PunchCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Key returns the record's dedup key.
func (r DailyRecord) Key() DedupKey {
	return DedupKey{
		LocalIdentityID: r.LocalIdentityID,
		Date:            r.Date.Format(DateLayout),
		Source:          r.Source,
	}
}

const DateLayout = "2006-01-02"
