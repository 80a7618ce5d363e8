package syncrun

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
)

type RunFilter struct {
	Type  *Type
	Limit int
}

// AttendanceRequest selects the attendance sync mode. Start and End are
// inclusive dates and only used in full mode.
type AttendanceRequest struct {
	Mode      Mode   `json:"mode"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func (r *AttendanceRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.Mode == "" {
		r.Mode = ModeIncremental
	}

	switch r.Mode {
	case ModeIncremental:
	case ModeFull:
		start, okStart := validator.IsValidDate(r.StartDate)
		end, okEnd := validator.IsValidDate(r.EndDate)
		if !okStart {
			errs = append(errs, validator.ValidationError{
				Field:   "start_date",
				Message: "start_date must be in YYYY-MM-DD format",
			})
		}
		if !okEnd {
			errs = append(errs, validator.ValidationError{
				Field:   "end_date",
				Message: "end_date must be in YYYY-MM-DD format",
			})
		}
		if okStart && okEnd && end.Before(start) {
			errs = append(errs, validator.ValidationError{
				Field:   "end_date",
				Message: "end_date must not be before start_date",
			})
		}
	default:
		errs = append(errs, validator.ValidationError{
			Field:   "mode",
			Message: "mode must be full or incremental",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Window parses the request dates in loc. Call Validate first.
func (r *AttendanceRequest) Window(loc *time.Location) (time.Time, time.Time) {
	start, _ := time.ParseInLocation("2006-01-02", r.StartDate, loc)
	end, _ := time.ParseInLocation("2006-01-02", r.EndDate, loc)
	return start, end
}

type RunResponse struct {
	ID               string   `json:"id"`
	Type             string   `json:"sync_type"`
	Mode             string   `json:"mode"`
	WindowStart      *string  `json:"window_start,omitempty"`
	WindowEnd        *string  `json:"window_end,omitempty"`
	Status           string   `json:"status"`
	RecordsFound     int      `json:"records_found"`
	RecordsProcessed int      `json:"records_processed"`
	RecordsWritten   int      `json:"records_written"`
	RecordsSkipped   int      `json:"records_skipped"`
	Unmapped         int      `json:"unmapped"`
	Attempts         int      `json:"attempts"`
	Errors           []string `json:"errors"`
	CursorBefore     *string  `json:"cursor_before,omitempty"`
	CursorAfter      *string  `json:"cursor_after,omitempty"`
	StartedAt        string   `json:"started_at"`
	FinishedAt       *string  `json:"finished_at,omitempty"`
}

func timePtrToString(t *time.Time, layout string) *string {
	if t == nil {
		return nil
	}
	s := t.Format(layout)
	return &s
}

func NewRunResponse(run SyncRun) RunResponse {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	return RunResponse{
		ID:               run.ID,
		Type:             string(run.Type),
		Mode:             string(run.Mode),
		WindowStart:      timePtrToString(run.WindowStart, "2006-01-02"),
		WindowEnd:        timePtrToString(run.WindowEnd, "2006-01-02"),
		Status:           string(run.Status),
		RecordsFound:     run.RecordsFound,
		RecordsProcessed: run.RecordsProcessed,
		RecordsWritten:   run.RecordsWritten,
		RecordsSkipped:   run.RecordsSkipped,
		Unmapped:         run.Unmapped,
		Attempts:         run.Attempts,
		Errors:           errs,
		CursorBefore:     run.CursorBefore,
		CursorAfter:      run.CursorAfter,
		StartedAt:        run.StartedAt.Format(time.RFC3339),
		FinishedAt:       timePtrToString(run.FinishedAt, time.RFC3339),
	}
}

type StatusResponse struct {
	Started  bool                 `json:"started"`
	Running  map[Type]bool        `json:"running"`
	LastRuns map[Type]RunResponse `json:"last_runs"`
	Cursor   string               `json:"cursor"`
	Totals   Totals               `json:"totals"`
}

func NewStatusResponse(s Snapshot) StatusResponse {
	last := make(map[Type]RunResponse, len(s.LastRuns))
	for t, run := range s.LastRuns {
		last[t] = NewRunResponse(run)
	}
	return StatusResponse{
		Started:  s.Started,
		Running:  s.Running,
		LastRuns: last,
		Cursor:   s.Cursor,
		Totals:   s.Totals,
	}
}

type EventTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
