package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type dateRange struct {
	from time.Time
	to   time.Time
}

// syncAttendanceIncremental walks provider pages from the stored cursor.
// Each page only says which days changed; those days are refetched in full
// so every record is rebuilt from its complete punch set. A failed fetch on
// any page fails the run; cursors saved by earlier pages are kept.
func (o *Orchestrator) syncAttendanceIncremental(ctx context.Context, ar *activeRun, run *syncrun.SyncRun) bool {
	cursor, err := o.loadCursor(ctx)
	if err != nil {
		run.AddError(err)
		return true
	}
	before := cursor.String()
	run.CursorBefore = &before

	mapping, err := o.identities.ActiveMappings(ctx)
	if err != nil {
		run.AddError(fmt.Errorf("load mappings: %w", err))
		return true
	}

	cal := o.attendance.Calendar()
	for page := 0; page < o.cfg.MaxPages; page++ {
		if ar.cancelled.Load() {
			run.AddError(syncrun.ErrRunCancelled)
			break
		}

		var pg provider.PunchPage
		res := o.withRetry(ctx, run.Type, "punches_since", func(ctx context.Context) error {
			var err error
			pg, err = o.client.PunchesSince(ctx, cursor, provider.AllEmployees)
			return err
		})
		run.Attempts += res.Attempts
		if res.Err != nil {
			run.AddError(fmt.Errorf("fetch punches since %s: %w", cursor, res.Err))
			return true
		}
		if len(pg.Events) == 0 {
			break
		}

		events := pg.Events
		if touched, ok := touchedRange(pg.Events, cal); ok {
			var full []provider.PunchEvent
			res := o.withRetry(ctx, run.Type, "punches_between", func(ctx context.Context) error {
				var err error
				full, err = o.client.PunchesBetween(ctx, touched.from, touched.to, provider.AllEmployees)
				return err
			})
			run.Attempts += res.Attempts
			if res.Err != nil {
				run.AddError(fmt.Errorf("refetch %s to %s: %w",
					touched.from.Format(attendance.DateLayout), touched.to.Format(attendance.DateLayout), res.Err))
				return true
			}
			events = full
		}

		o.persist(ctx, run, o.attendance.Normalize(events, mapping), len(pg.Events))

		if err := o.runs.SaveCursor(ctx, syncrun.TypeAttendance, pg.Next.String()); err != nil {
			run.AddError(fmt.Errorf("save cursor: %w", err))
			break
		}
		after := pg.Next.String()
		run.CursorAfter = &after
		o.progress(ar, *run)

		if pg.Next == cursor {
			break
		}
		cursor = pg.Next
	}

	return false
}

func (o *Orchestrator) loadCursor(ctx context.Context) (provider.Cursor, error) {
	stored, ok, err := o.runs.GetCursor(ctx, syncrun.TypeAttendance)
	if err != nil {
		return provider.Cursor{}, fmt.Errorf("load cursor: %w", err)
	}

	switch {
	case ok:
		return provider.ParseCursor(stored)
	case o.cfg.InitialCursor != "":
		return provider.ParseCursor(o.cfg.InitialCursor)
	default:
		return provider.InitialCursor(o.now().In(o.attendance.Calendar().Location)), nil
	}
}

// touchedRange spans every calendar day that has a parsable punch. The end
// is the last minute of the last day since the provider filters by minute.
func touchedRange(events []provider.PunchEvent, cal attendance.Calendar) (dateRange, bool) {
	var r dateRange
	found := false
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			continue
		}
		day := cal.DateOf(ev.Timestamp)
		if !found || day.Before(r.from) {
			r.from = day
		}
		if !found || day.After(r.to) {
			r.to = day
		}
		found = true
	}
	if found {
		r.to = r.to.AddDate(0, 0, 1).Add(-time.Minute)
	}
	return r, found
}

// syncAttendanceFull fetches the window in chunks concurrently, then writes
// every record and the absence backfill from a single goroutine.
func (o *Orchestrator) syncAttendanceFull(ctx context.Context, ar *activeRun, run *syncrun.SyncRun, start, end time.Time) bool {
	cal := o.attendance.Calendar()
	chunks := splitWindow(cal, start, end, o.cfg.ChunkDays)

	results := make([][]provider.PunchEvent, len(chunks))
	attempts := make([]int, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.FetchConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			if ar.cancelled.Load() {
				return syncrun.ErrRunCancelled
			}
			res := o.withRetry(gctx, run.Type, "punches_between", func(ctx context.Context) error {
				var err error
				results[i], err = o.client.PunchesBetween(ctx, chunk.from, chunk.to, provider.AllEmployees)
				return err
			})
			attempts[i] = res.Attempts
			if res.Err != nil {
				return fmt.Errorf("fetch %s to %s: %w",
					chunk.from.Format(attendance.DateLayout), chunk.to.Format(attendance.DateLayout), res.Err)
			}
			return nil
		})
	}
	err := g.Wait()
	for _, n := range attempts {
		run.Attempts += n
	}
	if err != nil {
		if errors.Is(err, syncrun.ErrRunCancelled) {
			slog.Info("Full attendance sync cancelled before writing", "run_id", run.ID)
		}
		run.AddError(err)
		return true
	}

	var events []provider.PunchEvent
	for _, chunkEvents := range results {
		events = append(events, chunkEvents...)
	}

	mapping, err := o.identities.ActiveMappings(ctx)
	if err != nil {
		run.AddError(fmt.Errorf("load mappings: %w", err))
		return true
	}

	normalized := o.attendance.Normalize(events, mapping)
	if mapped, err := o.mappedIdentities(ctx, mapping); err != nil {
		run.AddError(fmt.Errorf("load identities for backfill: %w", err))
	} else {
		normalized = o.attendance.Backfill(start, end, mapped, normalized)
	}

	o.persist(ctx, run, normalized, len(events))
	return false
}

func (o *Orchestrator) mappedIdentities(ctx context.Context, mapping map[string]uuid.UUID) ([]identity.LocalIdentity, error) {
	identities, err := o.identities.ListIdentities(ctx, true)
	if err != nil {
		return nil, err
	}

	mapped := make(map[uuid.UUID]bool, len(mapping))
	for _, id := range mapping {
		mapped[id] = true
	}

	out := identities[:0:0]
	for _, li := range identities {
		if mapped[li.ID] {
			out = append(out, li)
		}
	}
	return out, nil
}

// persist applies normalized records and folds the outcome into run. found
// is the number of new provider events behind them.
func (o *Orchestrator) persist(ctx context.Context, run *syncrun.SyncRun, normalized attendance.NormalizeResult, found int) {
	run.RecordsFound += found
	run.Unmapped += normalized.Unmapped
	for _, malformed := range normalized.Malformed {
		run.AddError(malformed)
	}

	applied := o.attendance.Apply(ctx, normalized.Records)
	run.RecordsProcessed += len(normalized.Records) + len(normalized.Malformed)
	run.RecordsWritten += applied.Written
	run.RecordsSkipped += applied.Skipped
	for _, err := range applied.Errors {
		run.AddError(err)
	}
}

// splitWindow cuts [start, end] into runs of at most days calendar days.
func splitWindow(cal attendance.Calendar, start, end time.Time, days int) []dateRange {
	all := cal.Days(start, end)
	var chunks []dateRange
	for i := 0; i < len(all); i += days {
		last := all[min(i+days, len(all))-1]
		chunks = append(chunks, dateRange{
			from: all[i],
			to:   last.AddDate(0, 0, 1).Add(-time.Minute),
		})
	}
	return chunks
}
