package attendance

import (
	"bytes"
	"sort"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/google/uuid"
)

type dayKey struct {
	id   uuid.UUID
	date string
}

// Normalize reduces raw punches to one provider record per identity and
// calendar day. It performs no I/O and yields the same output for the same
// input regardless of event order.
func Normalize(events []provider.PunchEvent, mapping map[string]uuid.UUID, cal attendance.Calendar, now time.Time) attendance.NormalizeResult {
	var res attendance.NormalizeResult
	groups := make(map[dayKey][]time.Time)
	dates := make(map[dayKey]time.Time)

	for _, ev := range events {
		if ev.EmployeeCode == "" {
			res.Malformed = append(res.Malformed, &provider.MalformedRecordError{
				Kind: "punch", Reason: provider.ErrMissingCode,
			})
			continue
		}
		if ev.Timestamp.IsZero() {
			res.Malformed = append(res.Malformed, &provider.MalformedRecordError{
				Kind: "punch", Code: ev.EmployeeCode, Reason: provider.ErrMissingTime,
			})
			continue
		}

		id, ok := mapping[ev.EmployeeCode]
		if !ok {
			res.Unmapped++
			continue
		}

		date := cal.DateOf(ev.Timestamp)
		key := dayKey{id: id, date: date.Format(attendance.DateLayout)}
		groups[key] = append(groups[key], ev.Timestamp.In(cal.Location))
		dates[key] = date
	}

	for key, punches := range groups {
		res.Records = append(res.Records, buildRecord(key.id, dates[key], punches, cal, now))
	}
	sortRecords(res.Records)

	return res
}

func buildRecord(id uuid.UUID, date time.Time, punches []time.Time, cal attendance.Calendar, now time.Time) attendance.DailyRecord {
	sort.Slice(punches, func(i, j int) bool { return punches[i].Before(punches[j]) })

	unique := punches[:0:0]
	for _, p := range punches {
		if len(unique) > 0 && unique[len(unique)-1].Equal(p) {
			continue
		}
		unique = append(unique, p)
	}

	rec := attendance.DailyRecord{
		LocalIdentityID: id,
		Date:            date,
		Source:          attendance.SourceProvider,
		PunchCount:      len(unique),
	}

	checkIn := unique[0]
	rec.CheckInAt = &checkIn
	if last := unique[len(unique)-1]; last.After(checkIn) {
		rec.CheckOutAt = &last
		rec.WorkMinutes = max(0, int(last.Sub(checkIn)/time.Minute))
	}

	switch {
	case !cal.IsWorkDay(date):
		rec.Status = attendance.StatusHoliday
	case rec.CheckOutAt != nil:
		rec.Status = attendance.StatusPresent
	case !cal.Elapsed(date, now):
		rec.Status = attendance.StatusInProgress
	default:
		rec.Status = attendance.StatusPresent
		rec.MissingCheckOut = true
	}

	return rec
}

// Backfill emits absent or holiday records for every identity and elapsed
// day in [from, to] that has no record in existing. Days that have not yet
// ended are left alone.
func Backfill(from, to time.Time, identities []identity.LocalIdentity, existing attendance.NormalizeResult, cal attendance.Calendar, now time.Time) attendance.NormalizeResult {
	covered := make(map[dayKey]bool, len(existing.Records))
	for _, rec := range existing.Records {
		covered[dayKey{id: rec.LocalIdentityID, date: rec.Date.Format(attendance.DateLayout)}] = true
	}

	out := attendance.NormalizeResult{
		Records:   append([]attendance.DailyRecord(nil), existing.Records...),
		Unmapped:  existing.Unmapped,
		Malformed: existing.Malformed,
	}

	for _, day := range cal.Days(from, to) {
		if !cal.Elapsed(day, now) {
			continue
		}
		status := attendance.StatusAbsent
		if !cal.IsWorkDay(day) {
			status = attendance.StatusHoliday
		}

		for _, li := range identities {
			if covered[dayKey{id: li.ID, date: day.Format(attendance.DateLayout)}] {
				continue
			}
			out.Records = append(out.Records, attendance.DailyRecord{
				LocalIdentityID: li.ID,
				Date:            day,
				Status:          status,
				Source:          attendance.SourceProvider,
			})
		}
	}

	sortRecords(out.Records)
	return out
}

func sortRecords(records []attendance.DailyRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return bytes.Compare(records[i].LocalIdentityID[:], records[j].LocalIdentityID[:]) < 0
	})
}
