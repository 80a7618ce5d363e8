package syncrun

import (
	"context"
	"time"
)

// Repository persists runs, cursors and single-flight locks so they survive
// restarts.
type Repository interface {
	CreateRun(ctx context.Context, run SyncRun) error
	FinishRun(ctx context.Context, run SyncRun) error
	LastRun(ctx context.Context, syncType Type) (*SyncRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]SyncRun, error)

	GetCursor(ctx context.Context, syncType Type) (string, bool, error)
	SaveCursor(ctx context.Context, syncType Type, cursor string) error

	// AcquireLock returns false when another run holds the lock.
	AcquireLock(ctx context.Context, syncType Type, runID string) (bool, error)
	ReleaseLock(ctx context.Context, syncType Type, runID string) error

	// ReleaseStaleLocks drops every lock and marks the runs that held them
	// failed. It returns the affected run IDs.
	ReleaseStaleLocks(ctx context.Context, finishedAt time.Time, reason string) ([]string, error)
}
