package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
)

const runColumns = `id, sync_type, mode, window_start, window_end, status,
	records_found, records_processed, records_written, records_skipped, unmapped, attempts,
	errors, cursor_before, cursor_after, started_at, finished_at`

// syncStateRepository keeps runs, cursors and locks. It is written against
// database/sql so the pool can be shared through stdlib.OpenDBFromPool.
type syncStateRepository struct {
	db *sql.DB
}

func NewSyncStateRepository(db *sql.DB) syncrun.Repository {
	return &syncStateRepository{db: db}
}

// CreateRun implements syncrun.Repository.
func (r *syncStateRepository) CreateRun(ctx context.Context, run syncrun.SyncRun) error {
	errs, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}

	query := `INSERT INTO sync_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, string(run.Type), string(run.Mode), run.WindowStart, run.WindowEnd, string(run.Status),
		run.RecordsFound, run.RecordsProcessed, run.RecordsWritten, run.RecordsSkipped, run.Unmapped, run.Attempts,
		errs, run.CursorBefore, run.CursorAfter, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// FinishRun implements syncrun.Repository.
func (r *syncStateRepository) FinishRun(ctx context.Context, run syncrun.SyncRun) error {
	errs, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}

	query := `
		UPDATE sync_runs SET
			status = $2, records_found = $3, records_processed = $4, records_written = $5,
			records_skipped = $6, unmapped = $7, attempts = $8, errors = $9,
			cursor_after = $10, finished_at = $11
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		run.ID, string(run.Status), run.RecordsFound, run.RecordsProcessed, run.RecordsWritten,
		run.RecordsSkipped, run.Unmapped, run.Attempts, errs, run.CursorAfter, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return syncrun.ErrRunNotFound
	}
	return nil
}

// LastRun implements syncrun.Repository. It returns nil when the type never ran.
func (r *syncStateRepository) LastRun(ctx context.Context, syncType syncrun.Type) (*syncrun.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs
		WHERE sync_type = $1
		ORDER BY started_at DESC
		LIMIT 1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, string(syncType)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last sync run: %w", err)
	}
	return &run, nil
}

// ListRuns implements syncrun.Repository.
func (r *syncStateRepository) ListRuns(ctx context.Context, filter syncrun.RunFilter) ([]syncrun.SyncRun, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if filter.Type != nil {
		rows, err = r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM sync_runs
			WHERE sync_type = $1 ORDER BY started_at DESC LIMIT $2`, string(*filter.Type), limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM sync_runs
			ORDER BY started_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []syncrun.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetCursor implements syncrun.Repository.
func (r *syncStateRepository) GetCursor(ctx context.Context, syncType syncrun.Type) (string, bool, error) {
	var cursor string
	err := r.db.QueryRowContext(ctx, `SELECT cursor FROM sync_cursors WHERE sync_type = $1`, string(syncType)).Scan(&cursor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get sync cursor: %w", err)
	}
	return cursor, true, nil
}

// SaveCursor implements syncrun.Repository.
func (r *syncStateRepository) SaveCursor(ctx context.Context, syncType syncrun.Type, cursor string) error {
	query := `
		INSERT INTO sync_cursors (sync_type, cursor, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (sync_type) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, string(syncType), cursor); err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}

// AcquireLock implements syncrun.Repository.
func (r *syncStateRepository) AcquireLock(ctx context.Context, syncType syncrun.Type, runID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_locks (sync_type, run_id, acquired_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (sync_type) DO NOTHING`, string(syncType), runID)
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	return n == 1, nil
}

// ReleaseLock implements syncrun.Repository.
func (r *syncStateRepository) ReleaseLock(ctx context.Context, syncType syncrun.Type, runID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_locks WHERE sync_type = $1 AND run_id = $2`, string(syncType), runID)
	if err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}

// ReleaseStaleLocks implements syncrun.Repository. Runs still marked
// running belong to a previous process and are finalized failed.
func (r *syncStateRepository) ReleaseStaleLocks(ctx context.Context, finishedAt time.Time, reason string) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_locks`); err != nil {
		return nil, fmt.Errorf("failed to clear sync locks: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		UPDATE sync_runs
		SET status = 'failed', finished_at = $1, errors = errors || jsonb_build_array($2::text)
		WHERE status = 'running'
		RETURNING id`, finishedAt, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stale runs: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan stale run: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (syncrun.SyncRun, error) {
	var run syncrun.SyncRun
	var syncType, mode, status string
	var windowStart, windowEnd, finishedAt sql.NullTime
	var cursorBefore, cursorAfter sql.NullString
	var errs []byte

	err := row.Scan(
		&run.ID, &syncType, &mode, &windowStart, &windowEnd, &status,
		&run.RecordsFound, &run.RecordsProcessed, &run.RecordsWritten, &run.RecordsSkipped, &run.Unmapped, &run.Attempts,
		&errs, &cursorBefore, &cursorAfter, &run.StartedAt, &finishedAt,
	)
	if err != nil {
		return syncrun.SyncRun{}, err
	}

	run.Type = syncrun.Type(syncType)
	run.Mode = syncrun.Mode(mode)
	run.Status = syncrun.Status(status)
	if windowStart.Valid {
		run.WindowStart = &windowStart.Time
	}
	if windowEnd.Valid {
		run.WindowEnd = &windowEnd.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if cursorBefore.Valid {
		run.CursorBefore = &cursorBefore.String
	}
	if cursorAfter.Valid {
		run.CursorAfter = &cursorAfter.String
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &run.Errors); err != nil {
			return syncrun.SyncRun{}, fmt.Errorf("decode run errors: %w", err)
		}
	}
	return run, nil
}

func encodeErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("encode run errors: %w", err)
	}
	return string(b), nil
}
