package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/repository/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceRepository_ManualWins(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	loc := time.UTC

	caps, err := database.DetectCapabilities(ctx, setup.DB)
	require.NoError(t, err)
	assert.Equal(t, database.AllCapabilities(), caps)

	repo := postgresql.NewAttendanceRepository(setup.DB, caps, loc)
	id := setup.CreateIdentity(t, "John Doe", "", true)
	date := time.Date(2025, 10, 9, 0, 0, 0, 0, loc)
	in := time.Date(2025, 10, 9, 9, 2, 0, 0, loc)
	out := time.Date(2025, 10, 9, 18, 11, 0, 0, loc)

	_, err = repo.Upsert(ctx, attendance.DailyRecord{
		LocalIdentityID: id, Date: date, CheckInAt: &in, CheckOutAt: &out,
		WorkMinutes: 549, Status: attendance.StatusPresent, Source: attendance.SourceManual,
	})
	require.NoError(t, err)

	later := out.Add(time.Hour)
	_, err = repo.Upsert(ctx, attendance.DailyRecord{
		LocalIdentityID: id, Date: date, CheckInAt: &in, CheckOutAt: &later,
		WorkMinutes: 609, Status: attendance.StatusPresent, Source: attendance.SourceProvider, PunchCount: 2,
	})
	assert.ErrorIs(t, err, attendance.ErrManualOverride)

	stored, err := repo.GetByIdentityAndDate(ctx, id, date)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, attendance.SourceManual, stored.Source)
	assert.True(t, stored.CheckOutAt.Equal(out))
	assert.Equal(t, 549, stored.WorkMinutes)
	assert.Equal(t, date, stored.Date)
}

func TestAttendanceRepository_ProviderOverwritesProvider(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	loc := time.FixedZone("IST", 5*3600+1800)
	repo := postgresql.NewAttendanceRepository(setup.DB, database.AllCapabilities(), loc)
	id := setup.CreateIdentity(t, "John Doe", "", true)

	date := time.Date(2025, 10, 9, 0, 0, 0, 0, loc)
	in := time.Date(2025, 10, 9, 9, 2, 0, 0, loc)

	_, err := repo.Upsert(ctx, attendance.DailyRecord{
		LocalIdentityID: id, Date: date, CheckInAt: &in,
		Status: attendance.StatusInProgress, Source: attendance.SourceProvider, PunchCount: 1,
	})
	require.NoError(t, err)

	out := in.Add(549 * time.Minute)
	_, err = repo.Upsert(ctx, attendance.DailyRecord{
		LocalIdentityID: id, Date: date, CheckInAt: &in, CheckOutAt: &out,
		WorkMinutes: 549, Status: attendance.StatusPresent, Source: attendance.SourceProvider, PunchCount: 2,
	})
	require.NoError(t, err)

	records, err := repo.ListByDateRange(ctx, date, date)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, attendance.StatusPresent, records[0].Status)
	assert.Equal(t, 2, records[0].PunchCount)
	assert.Equal(t, date, records[0].Date)

	missing, err := repo.GetByIdentityAndDate(ctx, id, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.ListByDateRange(ctx, date, date.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, attendance.ErrInvalidDateRange)
}

func TestAttendanceRepository_LegacySchemaColumns(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	repo := postgresql.NewAttendanceRepository(setup.DB, database.Capabilities{}, time.UTC)
	id := setup.CreateIdentity(t, "John Doe", "", true)
	date := time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC)

	_, err := repo.Upsert(ctx, attendance.DailyRecord{
		LocalIdentityID: id, Date: date, Status: attendance.StatusAbsent, Source: attendance.SourceProvider,
		MissingCheckOut: true,
	})
	require.NoError(t, err)

	stored, err := repo.GetByIdentityAndDate(ctx, id, date)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.MissingCheckOut)
}
