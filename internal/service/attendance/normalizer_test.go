package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jakarta = time.FixedZone("WIB", 7*3600)

func weekdayCalendar(holidays ...string) attendance.Calendar {
	return attendance.NewCalendar(jakarta, []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}, holidays)
}

func at(date string, clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, jakarta)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNormalize_PresentDayWorkMinutes(t *testing.T) {
	id := uuid.New()
	now := at("2025-10-10", "08:00")
	events := []provider.PunchEvent{
		{EmployeeCode: "0001", Timestamp: at("2025-10-09", "18:11")},
		{EmployeeCode: "0001", Timestamp: at("2025-10-09", "09:02")},
	}

	res := Normalize(events, map[string]uuid.UUID{"0001": id}, weekdayCalendar(), now)

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, id, rec.LocalIdentityID)
	assert.Equal(t, "2025-10-09", rec.Date.Format(attendance.DateLayout))
	require.NotNil(t, rec.CheckInAt)
	require.NotNil(t, rec.CheckOutAt)
	assert.Equal(t, "09:02", rec.CheckInAt.Format("15:04"))
	assert.Equal(t, "18:11", rec.CheckOutAt.Format("15:04"))
	assert.Equal(t, 549, rec.WorkMinutes)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	assert.Equal(t, attendance.SourceProvider, rec.Source)
	assert.False(t, rec.MissingCheckOut)
	assert.Equal(t, 2, rec.PunchCount)
	assert.Equal(t, attendance.DedupKey{LocalIdentityID: id, Date: "2025-10-09", Source: attendance.SourceProvider}, rec.Key())
}

func TestNormalize_StatusRules(t *testing.T) {
	id := uuid.New()
	mapping := map[string]uuid.UUID{"0001": id}
	now := at("2025-10-09", "12:00")

	cases := []struct {
		name           string
		punches        []time.Time
		cal            attendance.Calendar
		wantStatus     attendance.Status
		wantOut        bool
		wantMinutes    int
		wantMissingOut bool
		wantPunchCount int
	}{
		{
			name:           "single punch today is in progress",
			punches:        []time.Time{at("2025-10-09", "09:00")},
			cal:            weekdayCalendar(),
			wantStatus:     attendance.StatusInProgress,
			wantPunchCount: 1,
		},
		{
			name:           "single punch on elapsed day misses check-out",
			punches:        []time.Time{at("2025-10-08", "09:00")},
			cal:            weekdayCalendar(),
			wantStatus:     attendance.StatusPresent,
			wantMissingOut: true,
			wantPunchCount: 1,
		},
		{
			name:           "identical punches collapse",
			punches:        []time.Time{at("2025-10-08", "09:00"), at("2025-10-08", "09:00")},
			cal:            weekdayCalendar(),
			wantStatus:     attendance.StatusPresent,
			wantMissingOut: true,
			wantPunchCount: 1,
		},
		{
			name:           "middle punches are ignored",
			punches:        []time.Time{at("2025-10-08", "12:00"), at("2025-10-08", "08:00"), at("2025-10-08", "17:30")},
			cal:            weekdayCalendar(),
			wantStatus:     attendance.StatusPresent,
			wantOut:        true,
			wantMinutes:    570,
			wantPunchCount: 3,
		},
		{
			name:           "weekend punches are holiday",
			punches:        []time.Time{at("2025-10-04", "10:00"), at("2025-10-04", "12:00")},
			cal:            weekdayCalendar(),
			wantStatus:     attendance.StatusHoliday,
			wantOut:        true,
			wantMinutes:    120,
			wantPunchCount: 2,
		},
		{
			name:           "configured holiday wins over work day",
			punches:        []time.Time{at("2025-10-08", "10:00")},
			cal:            weekdayCalendar("2025-10-08"),
			wantStatus:     attendance.StatusHoliday,
			wantPunchCount: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var events []provider.PunchEvent
			for _, p := range tc.punches {
				events = append(events, provider.PunchEvent{EmployeeCode: "0001", Timestamp: p})
			}

			res := Normalize(events, mapping, tc.cal, now)
			require.Len(t, res.Records, 1)
			rec := res.Records[0]
			assert.Equal(t, tc.wantStatus, rec.Status)
			assert.Equal(t, tc.wantOut, rec.CheckOutAt != nil)
			assert.Equal(t, tc.wantMinutes, rec.WorkMinutes)
			assert.Equal(t, tc.wantMissingOut, rec.MissingCheckOut)
			assert.Equal(t, tc.wantPunchCount, rec.PunchCount)
		})
	}
}

func TestNormalize_GroupsByCalendarZone(t *testing.T) {
	id := uuid.New()
	// 23:30 UTC on the 8th is 06:30 on the 9th in WIB.
	utcPunch := time.Date(2025, 10, 8, 23, 30, 0, 0, time.UTC)
	res := Normalize(
		[]provider.PunchEvent{{EmployeeCode: "0001", Timestamp: utcPunch}},
		map[string]uuid.UUID{"0001": id},
		weekdayCalendar(),
		at("2025-10-20", "00:00"),
	)

	require.Len(t, res.Records, 1)
	assert.Equal(t, "2025-10-09", res.Records[0].Date.Format(attendance.DateLayout))
	assert.Equal(t, jakarta, res.Records[0].CheckInAt.Location())
}

func TestNormalize_SkipsMalformedAndUnmapped(t *testing.T) {
	id := uuid.New()
	events := []provider.PunchEvent{
		{EmployeeCode: "", Timestamp: at("2025-10-08", "09:00")},
		{EmployeeCode: "0001"},
		{EmployeeCode: "0404", Timestamp: at("2025-10-08", "09:00")},
		{EmployeeCode: "0404", Timestamp: at("2025-10-08", "18:00")},
		{EmployeeCode: "0001", Timestamp: at("2025-10-08", "09:00")},
	}

	res := Normalize(events, map[string]uuid.UUID{"0001": id}, weekdayCalendar(), at("2025-10-10", "00:00"))

	assert.Len(t, res.Records, 1)
	assert.Equal(t, 2, res.Unmapped)
	require.Len(t, res.Malformed, 2)
	assert.True(t, errors.Is(res.Malformed[0], provider.ErrMissingCode))
	assert.True(t, errors.Is(res.Malformed[1], provider.ErrMissingTime))
}

func TestNormalize_IsOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	mapping := map[string]uuid.UUID{"A": a, "B": b}
	events := []provider.PunchEvent{
		{EmployeeCode: "A", Timestamp: at("2025-10-07", "09:00")},
		{EmployeeCode: "B", Timestamp: at("2025-10-08", "08:30")},
		{EmployeeCode: "A", Timestamp: at("2025-10-07", "17:00")},
		{EmployeeCode: "B", Timestamp: at("2025-10-07", "08:00")},
		{EmployeeCode: "B", Timestamp: at("2025-10-08", "16:45")},
	}
	reversed := make([]provider.PunchEvent, len(events))
	for i, ev := range events {
		reversed[len(events)-1-i] = ev
	}

	now := at("2025-10-10", "00:00")
	first := Normalize(events, mapping, weekdayCalendar(), now)
	second := Normalize(reversed, mapping, weekdayCalendar(), now)

	require.Len(t, first.Records, 3)
	assert.Equal(t, first.Records, second.Records)
	for i := 1; i < len(first.Records); i++ {
		assert.False(t, first.Records[i].Date.Before(first.Records[i-1].Date))
	}
}

func TestBackfill_HolidayForAllMapped(t *testing.T) {
	li := identity.LocalIdentity{ID: uuid.New(), Name: "John Doe", Active: true}
	cal := weekdayCalendar()
	now := at("2025-10-10", "09:00")

	// Saturday the 4th through Tuesday the 7th.
	out := Backfill(at("2025-10-04", "00:00"), at("2025-10-07", "00:00"),
		[]identity.LocalIdentity{li}, attendance.NormalizeResult{}, cal, now)

	require.Len(t, out.Records, 4)
	byDate := make(map[string]attendance.Status)
	for _, rec := range out.Records {
		byDate[rec.Date.Format(attendance.DateLayout)] = rec.Status
		assert.Equal(t, attendance.SourceProvider, rec.Source)
		assert.Nil(t, rec.CheckInAt)
	}
	assert.Equal(t, attendance.StatusHoliday, byDate["2025-10-04"])
	assert.Equal(t, attendance.StatusHoliday, byDate["2025-10-05"])
	assert.Equal(t, attendance.StatusAbsent, byDate["2025-10-06"])
	assert.Equal(t, attendance.StatusAbsent, byDate["2025-10-07"])
}

func TestBackfill_KeepsExistingAndSkipsOpenDays(t *testing.T) {
	id := uuid.New()
	cal := weekdayCalendar()
	now := at("2025-10-09", "12:00")
	existing := Normalize(
		[]provider.PunchEvent{
			{EmployeeCode: "0001", Timestamp: at("2025-10-08", "09:00")},
			{EmployeeCode: "0001", Timestamp: at("2025-10-08", "17:00")},
		},
		map[string]uuid.UUID{"0001": id}, cal, now,
	)

	out := Backfill(at("2025-10-07", "00:00"), at("2025-10-10", "00:00"),
		[]identity.LocalIdentity{{ID: id, Active: true}}, existing, cal, now)

	require.Len(t, out.Records, 2)
	assert.Equal(t, "2025-10-07", out.Records[0].Date.Format(attendance.DateLayout))
	assert.Equal(t, attendance.StatusAbsent, out.Records[0].Status)
	assert.Equal(t, attendance.StatusPresent, out.Records[1].Status)
}
