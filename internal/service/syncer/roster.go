package syncer

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
)

func (o *Orchestrator) syncRoster(ctx context.Context, ar *activeRun, run *syncrun.SyncRun) bool {
	var employees []provider.Employee
	res := o.withRetry(ctx, run.Type, "roster", func(ctx context.Context) error {
		var err error
		employees, err = o.client.Roster(ctx)
		return err
	})
	run.Attempts += res.Attempts
	if res.Err != nil {
		run.AddError(fmt.Errorf("fetch roster: %w", res.Err))
		return true
	}
	run.RecordsFound = len(employees)

	if ar.cancelled.Load() {
		run.AddError(syncrun.ErrRunCancelled)
		return false
	}

	resolution, applied, err := o.identities.ResolveRoster(ctx, employees)
	if err != nil {
		run.AddError(fmt.Errorf("resolve roster: %w", err))
		return true
	}

	for _, malformed := range resolution.Malformed {
		run.AddError(malformed)
	}
	for _, applyErr := range applied.Errors {
		run.AddError(applyErr)
	}

	run.RecordsProcessed = len(resolution.Results) + len(resolution.Malformed)
	run.RecordsWritten = applied.AutoMapped + applied.NeedsReview
	run.RecordsSkipped = applied.AlreadyMapped + applied.Conflicts
	run.Unmapped = applied.Unmatched

	return false
}
