package attendance

import (
	"context"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/google/uuid"
)

// NormalizeResult is the pure output of normalization.
type NormalizeResult struct {
	Records   []DailyRecord
	Unmapped  int
	Malformed []error
}

// ApplyResult summarizes persisting normalized records.
type ApplyResult struct {
	Written int
	Skipped int
	Errors  []error
}

// Service turns punches into persisted daily records.
type Service interface {
	// Normalize reduces events to daily records without touching storage.
	Normalize(events []provider.PunchEvent, mapping map[string]uuid.UUID) NormalizeResult

	// Backfill adds absent/holiday records for days in [from, to] that have
	// no punches for the given identities.
	Backfill(from, to time.Time, identities []identity.LocalIdentity, existing NormalizeResult) NormalizeResult

	// Apply upserts records one at a time.
	Apply(ctx context.Context, records []DailyRecord) ApplyResult

	Calendar() Calendar
}
