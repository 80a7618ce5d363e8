package syncrun

import (
	"time"
)

type Type string

const (
	TypeRoster     Type = "roster"
	TypeAttendance Type = "attendance"
)

// Types lists every sync type in a stable order.
var Types = []Type{TypeRoster, TypeAttendance}

func (t Type) IsValid() bool {
	return t == TypeRoster || t == TypeAttendance
}

type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusDegraded  Status = "degraded"
	StatusFailed    Status = "failed"
)

// IsFinal reports whether the run has ended.
func (s Status) IsFinal() bool {
	return s == StatusSucceeded || s == StatusDegraded || s == StatusFailed
}

// SyncRun records one execution of a sync. It is retained for
// observability only.
type SyncRun struct {
	ID               string
	Type             Type
	Mode             Mode
	WindowStart      *time.Time
	WindowEnd        *time.Time
	Status           Status
	RecordsFound     int
	// RecordsProcessed counts every record the run tried to handle,
	// including malformed ones. Failures are judged against it.
	RecordsProcessed int
	RecordsWritten   int
	RecordsSkipped   int
	Unmapped         int
	Attempts         int
	Errors           []string
	CursorBefore     *string
	CursorAfter      *string
	StartedAt        time.Time
	FinishedAt       *time.Time
}

// AddError appends a per-record or run-level failure.
func (r *SyncRun) AddError(err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// Classify derives the final status from the error list. fetchFailed marks
// a run whose primary fetch never completed. A run is failed once errors
// reach the number of records it processed.
func (r *SyncRun) Classify(fetchFailed bool) Status {
	switch {
	case fetchFailed:
		return StatusFailed
	case len(r.Errors) == 0:
		return StatusSucceeded
	case len(r.Errors) >= max(r.RecordsProcessed, 1):
		return StatusFailed
	default:
		return StatusDegraded
	}
}

// Duration returns how long the run took, or zero while running.
func (r SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Totals aggregates finished runs since the orchestrator started.
type Totals struct {
	Runs             int            `json:"runs"`
	ByStatus         map[Status]int `json:"by_status"`
	RecordsFound     int            `json:"records_found"`
	RecordsProcessed int            `json:"records_processed"`
	RecordsWritten   int            `json:"records_written"`
	Errors           int            `json:"errors"`
}

// Add folds a finished run into the totals.
func (t *Totals) Add(run SyncRun) {
	if t.ByStatus == nil {
		t.ByStatus = make(map[Status]int)
	}
	t.Runs++
	t.ByStatus[run.Status]++
	t.RecordsFound += run.RecordsFound
	t.RecordsProcessed += run.RecordsProcessed
	t.RecordsWritten += run.RecordsWritten
	t.Errors += len(run.Errors)
}

// Snapshot is the orchestrator status exposed to operators.
type Snapshot struct {
	Started  bool
	Running  map[Type]bool
	LastRuns map[Type]SyncRun
	Cursor   string
	Totals   Totals
}
