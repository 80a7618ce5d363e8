package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type attendanceRepository struct {
	db       *database.DB
	caps     database.Capabilities
	location *time.Location
	columns  []string
}

// NewAttendanceRepository builds the daily attendance store. loc is the
// work calendar's zone; stored dates are returned as midnight in loc.
func NewAttendanceRepository(db *database.DB, caps database.Capabilities, loc *time.Location) attendance.AttendanceRepository {
	columns := []string{
		"local_identity_id", "date", "check_in_at", "check_out_at", "work_minutes", "status", "source",
	}
	if caps.AttendanceMissingCheckOut {
		columns = append(columns, "missing_check_out")
	}
	if caps.AttendancePunchCount {
		columns = append(columns, "punch_count")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &attendanceRepository{db: db, caps: caps, location: loc, columns: columns}
}

// Upsert implements attendance.AttendanceRepository. The conflict update is
// guarded so that a non-manual write never touches a manual row; when the
// guard suppresses the update no row is returned.
func (a *attendanceRepository) Upsert(ctx context.Context, record attendance.DailyRecord) (attendance.DailyRecord, error) {
	q := GetQuerier(ctx, a.db)

	args := []interface{}{
		record.LocalIdentityID, record.Date, record.CheckInAt, record.CheckOutAt,
		record.WorkMinutes, record.Status, record.Source,
	}
	if a.caps.AttendanceMissingCheckOut {
		args = append(args, record.MissingCheckOut)
	}
	if a.caps.AttendancePunchCount {
		args = append(args, record.PunchCount)
	}

	placeholders := make([]string, len(a.columns))
	updates := make([]string, 0, len(a.columns))
	for i, col := range a.columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "local_identity_id" && col != "date" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO daily_attendance (%s, created_at, updated_at)
		VALUES (%s, NOW(), NOW())
		ON CONFLICT (local_identity_id, date) DO UPDATE SET
			%s,
			updated_at = NOW()
		WHERE daily_attendance.source <> 'manual' OR EXCLUDED.source = 'manual'
		RETURNING created_at, updated_at
	`, strings.Join(a.columns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ",\n\t\t\t"))

	err := q.QueryRow(ctx, query, args...).Scan(&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.DailyRecord{}, fmt.Errorf("identity %s on %s: %w",
				record.LocalIdentityID, record.Date.Format(attendance.DateLayout), attendance.ErrManualOverride)
		}
		return attendance.DailyRecord{}, fmt.Errorf("failed to upsert attendance: %w", err)
	}

	return record, nil
}

// GetByIdentityAndDate implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetByIdentityAndDate(ctx context.Context, localIdentityID uuid.UUID, date time.Time) (*attendance.DailyRecord, error) {
	q := GetQuerier(ctx, a.db)

	query := fmt.Sprintf(`
		SELECT %s, created_at, updated_at
		FROM daily_attendance
		WHERE local_identity_id = $1 AND date = $2
	`, strings.Join(a.columns, ", "))

	rec, err := a.scan(q.QueryRow(ctx, query, localIdentityID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}

	return &rec, nil
}

// ListByDateRange implements attendance.AttendanceRepository.
func (a *attendanceRepository) ListByDateRange(ctx context.Context, from, to time.Time) ([]attendance.DailyRecord, error) {
	if to.Before(from) {
		return nil, attendance.ErrInvalidDateRange
	}
	q := GetQuerier(ctx, a.db)

	query := fmt.Sprintf(`
		SELECT %s, created_at, updated_at
		FROM daily_attendance
		WHERE date BETWEEN $1 AND $2
		ORDER BY date ASC, local_identity_id ASC
	`, strings.Join(a.columns, ", "))

	rows, err := q.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	var records []attendance.DailyRecord
	for rows.Next() {
		rec, err := a.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance: %w", err)
	}

	return records, nil
}

func (a *attendanceRepository) scan(row pgx.Row) (attendance.DailyRecord, error) {
	var rec attendance.DailyRecord
	var date time.Time

	dest := []interface{}{
		&rec.LocalIdentityID, &date, &rec.CheckInAt, &rec.CheckOutAt,
		&rec.WorkMinutes, &rec.Status, &rec.Source,
	}
	if a.caps.AttendanceMissingCheckOut {
		dest = append(dest, &rec.MissingCheckOut)
	}
	if a.caps.AttendancePunchCount {
		dest = append(dest, &rec.PunchCount)
	}
	dest = append(dest, &rec.CreatedAt, &rec.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return attendance.DailyRecord{}, err
	}

	rec.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, a.location)
	return rec, nil
}
