package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/google/uuid"
)

type AttendanceServiceImpl struct {
	attendance.AttendanceRepository
	cal attendance.Calendar
	now func() time.Time
}

var _ attendance.Service = (*AttendanceServiceImpl)(nil)

func NewAttendanceService(repo attendance.AttendanceRepository, cal attendance.Calendar) *AttendanceServiceImpl {
	return &AttendanceServiceImpl{
		AttendanceRepository: repo,
		cal:                  cal,
		now:                  time.Now,
	}
}

// Calendar implements attendance.Service.
func (s *AttendanceServiceImpl) Calendar() attendance.Calendar {
	return s.cal
}

// Normalize implements attendance.Service.
func (s *AttendanceServiceImpl) Normalize(events []provider.PunchEvent, mapping map[string]uuid.UUID) attendance.NormalizeResult {
	return Normalize(events, mapping, s.cal, s.now())
}

// Backfill implements attendance.Service.
func (s *AttendanceServiceImpl) Backfill(from, to time.Time, identities []identity.LocalIdentity, existing attendance.NormalizeResult) attendance.NormalizeResult {
	return Backfill(from, to, identities, existing, s.cal, s.now())
}

// Apply implements attendance.Service. Records are written one at a time;
// a failed record never stops the rest.
func (s *AttendanceServiceImpl) Apply(ctx context.Context, records []attendance.DailyRecord) attendance.ApplyResult {
	var out attendance.ApplyResult

	for _, rec := range records {
		_, err := s.AttendanceRepository.Upsert(ctx, rec)
		switch {
		case err == nil:
			out.Written++
		case errors.Is(err, attendance.ErrManualOverride):
			out.Skipped++
			slog.Info("Keeping manual attendance record",
				"local_identity_id", rec.LocalIdentityID,
				"date", rec.Date.Format(attendance.DateLayout),
			)
		default:
			out.Errors = append(out.Errors, fmt.Errorf("upsert attendance %s %s: %w",
				rec.LocalIdentityID, rec.Date.Format(attendance.DateLayout), err))
		}
	}

	return out
}
