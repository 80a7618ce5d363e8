package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/cron"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/ids"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/metrics"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/retry"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/sse"
)

// EventTopic is the SSE topic sync lifecycle events are published on.
const EventTopic = "sync"

const staleLockReason = "process stopped before the run finished"

// IdentityService is the identity surface the orchestrator needs: roster
// resolution plus the directory listing used for backfill.
type IdentityService interface {
	identity.Service
	ListIdentities(ctx context.Context, activeOnly bool) ([]identity.LocalIdentity, error)
}

// syncFunc does the work of one run. It reports whether the primary fetch
// failed, which finalizes the run as failed regardless of counts.
type syncFunc func(ctx context.Context, ar *activeRun, run *syncrun.SyncRun) (aborted bool)

type activeRun struct {
	run       syncrun.SyncRun
	cancelled atomic.Bool
}

// Orchestrator owns the per-type run state machine. Build one per process
// and hand it to whatever needs to trigger or inspect syncs.
type Orchestrator struct {
	cfg        Config
	client     provider.Client
	identities IdentityService
	attendance attendance.Service
	runs       syncrun.Repository
	hub        *sse.Hub
	clock      retry.Clock
	now        func() time.Time
	scheduler  *cron.Scheduler

	mu       sync.Mutex
	active   map[syncrun.Type]*activeRun
	lastRuns map[syncrun.Type]syncrun.SyncRun
	totals   syncrun.Totals
	started  bool
	stopped  bool
	wg       sync.WaitGroup
}

type Option func(*Orchestrator)

// WithHub publishes run lifecycle events to hub.
func WithHub(hub *sse.Hub) Option {
	return func(o *Orchestrator) { o.hub = hub }
}

// WithClock replaces the retry timer source.
func WithClock(c retry.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithNow replaces the wall clock used for run timestamps and cursors.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(
	cfg Config,
	client provider.Client,
	identities IdentityService,
	attendanceService attendance.Service,
	runs syncrun.Repository,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		client:     client,
		identities: identities,
		attendance: attendanceService,
		runs:       runs,
		clock:      retry.RealClock,
		now:        time.Now,
		scheduler:  cron.NewScheduler(),
		active:     make(map[syncrun.Type]*activeRun),
		lastRuns:   make(map[syncrun.Type]syncrun.SyncRun),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start validates configuration, finalizes runs orphaned by a previous
// process and starts the periodic jobs.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.stopped:
		return syncrun.ErrOrchestratorStopped
	case o.started:
		return syncrun.ErrAlreadyStarted
	}

	if err := o.cfg.Validate(); err != nil {
		return err
	}

	orphaned, err := o.runs.ReleaseStaleLocks(ctx, o.now().UTC(), staleLockReason)
	if err != nil {
		return fmt.Errorf("failed to release stale sync locks: %w", err)
	}
	if len(orphaned) > 0 {
		slog.Warn("Finalized sync runs left running by a previous process", "run_ids", orphaned)
	}

	if err := o.scheduler.AddJob("roster-sync", o.cfg.RosterInterval, o.scheduledRoster); err != nil {
		return err
	}
	if err := o.scheduler.AddJob("attendance-sync", o.cfg.AttendanceInterval, o.scheduledAttendance); err != nil {
		return err
	}
	o.scheduler.Start()
	o.started = true

	slog.Info("Sync orchestrator started",
		"roster_interval", o.cfg.RosterInterval,
		"attendance_interval", o.cfg.AttendanceInterval,
	)
	return nil
}

// Stop refuses new runs, stops the scheduler and waits for in-flight runs.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()

	o.scheduler.Stop()
	o.wg.Wait()
	slog.Info("Sync orchestrator stopped")
}

func (o *Orchestrator) scheduledRoster(ctx context.Context) error {
	_, err := o.RunRoster(ctx)
	return ignoreBusy(err)
}

func (o *Orchestrator) scheduledAttendance(ctx context.Context) error {
	_, err := o.RunAttendance(ctx, syncrun.AttendanceRequest{Mode: syncrun.ModeIncremental})
	return ignoreBusy(err)
}

func ignoreBusy(err error) error {
	if errors.Is(err, syncrun.ErrSyncInProgress) || errors.Is(err, syncrun.ErrOrchestratorStopped) {
		return nil
	}
	return err
}

// TriggerRoster starts a roster sync in the background and returns the
// running run. While one is running it returns that run with
// syncrun.ErrSyncInProgress.
func (o *Orchestrator) TriggerRoster(ctx context.Context) (syncrun.SyncRun, error) {
	return o.launch(ctx, syncrun.TypeRoster, syncrun.ModeFull, nil, nil, o.syncRoster, false)
}

// RunRoster runs a roster sync to completion and returns the final run.
func (o *Orchestrator) RunRoster(ctx context.Context) (syncrun.SyncRun, error) {
	return o.launch(ctx, syncrun.TypeRoster, syncrun.ModeFull, nil, nil, o.syncRoster, true)
}

// TriggerAttendance starts an attendance sync in the background.
func (o *Orchestrator) TriggerAttendance(ctx context.Context, req syncrun.AttendanceRequest) (syncrun.SyncRun, error) {
	mode, start, end, fn, err := o.prepareAttendance(req)
	if err != nil {
		return syncrun.SyncRun{}, err
	}
	return o.launch(ctx, syncrun.TypeAttendance, mode, start, end, fn, false)
}

// RunAttendance runs an attendance sync to completion.
func (o *Orchestrator) RunAttendance(ctx context.Context, req syncrun.AttendanceRequest) (syncrun.SyncRun, error) {
	mode, start, end, fn, err := o.prepareAttendance(req)
	if err != nil {
		return syncrun.SyncRun{}, err
	}
	return o.launch(ctx, syncrun.TypeAttendance, mode, start, end, fn, true)
}

func (o *Orchestrator) prepareAttendance(req syncrun.AttendanceRequest) (syncrun.Mode, *time.Time, *time.Time, syncFunc, error) {
	if err := req.Validate(); err != nil {
		return "", nil, nil, nil, err
	}
	if req.Mode == syncrun.ModeIncremental {
		return syncrun.ModeIncremental, nil, nil, o.syncAttendanceIncremental, nil
	}

	cal := o.attendance.Calendar()
	start, end := req.Window(cal.Location)
	if len(cal.Days(start, end))-1 > o.cfg.MaxWindowDays {
		return "", nil, nil, nil, fmt.Errorf("%w: %d days allowed", syncrun.ErrWindowTooLarge, o.cfg.MaxWindowDays)
	}

	fn := func(ctx context.Context, ar *activeRun, run *syncrun.SyncRun) bool {
		return o.syncAttendanceFull(ctx, ar, run, start, end)
	}
	return syncrun.ModeFull, &start, &end, fn, nil
}

// Cancel asks the running sync of type t to stop at its next page or chunk
// boundary. Requests already in flight complete.
func (o *Orchestrator) Cancel(t syncrun.Type) error {
	if !t.IsValid() {
		return syncrun.ErrInvalidSyncType
	}

	o.mu.Lock()
	ar, ok := o.active[t]
	var runID string
	if ok {
		runID = ar.run.ID
	}
	o.mu.Unlock()

	if !ok {
		return syncrun.ErrNotRunning
	}
	if ar.cancelled.CompareAndSwap(false, true) {
		slog.Info("Sync cancellation requested", "sync_type", t, "run_id", runID)
		o.publishEvent("sync.cancelling", map[string]string{"sync_type": string(t), "run_id": runID})
	}
	return nil
}

// Status returns running flags, the latest run per type, the attendance
// cursor and totals since start-up.
func (o *Orchestrator) Status(ctx context.Context) (syncrun.Snapshot, error) {
	o.mu.Lock()
	snap := syncrun.Snapshot{
		Started:  o.started && !o.stopped,
		Running:  make(map[syncrun.Type]bool, len(syncrun.Types)),
		LastRuns: make(map[syncrun.Type]syncrun.SyncRun, len(syncrun.Types)),
		Totals:   copyTotals(o.totals),
	}
	for _, t := range syncrun.Types {
		_, snap.Running[t] = o.active[t]
	}
	for t, run := range o.lastRuns {
		snap.LastRuns[t] = cloneRun(run)
	}
	o.mu.Unlock()

	for _, t := range syncrun.Types {
		if _, ok := snap.LastRuns[t]; ok {
			continue
		}
		last, err := o.runs.LastRun(ctx, t)
		if err != nil {
			return syncrun.Snapshot{}, fmt.Errorf("failed to load last %s run: %w", t, err)
		}
		if last != nil {
			snap.LastRuns[t] = *last
		}
	}

	cursor, _, err := o.runs.GetCursor(ctx, syncrun.TypeAttendance)
	if err != nil {
		return syncrun.Snapshot{}, fmt.Errorf("failed to load attendance cursor: %w", err)
	}
	snap.Cursor = cursor

	return snap, nil
}

// ListRuns returns persisted run history, newest first.
func (o *Orchestrator) ListRuns(ctx context.Context, filter syncrun.RunFilter) ([]syncrun.SyncRun, error) {
	if filter.Type != nil && !filter.Type.IsValid() {
		return nil, syncrun.ErrInvalidSyncType
	}
	return o.runs.ListRuns(ctx, filter)
}

func (o *Orchestrator) launch(ctx context.Context, t syncrun.Type, mode syncrun.Mode, start, end *time.Time, fn syncFunc, wait bool) (syncrun.SyncRun, error) {
	ar, run, err := o.begin(ctx, t, mode, start, end)
	if err != nil {
		return run, err
	}
	if wait {
		return o.execute(ctx, ar, fn), nil
	}
	go o.execute(ctx, ar, fn)
	return run, nil
}

// begin claims the in-process slot, then the persisted lock, then records
// the run. Losing either claim returns ErrSyncInProgress.
func (o *Orchestrator) begin(ctx context.Context, t syncrun.Type, mode syncrun.Mode, start, end *time.Time) (*activeRun, syncrun.SyncRun, error) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, syncrun.SyncRun{}, syncrun.ErrOrchestratorStopped
	}
	if cur, ok := o.active[t]; ok {
		run := cloneRun(cur.run)
		o.mu.Unlock()
		metrics.SyncRejectedTotal.WithLabelValues(string(t)).Inc()
		slog.Info("Sync already running, trigger ignored", "sync_type", t, "run_id", run.ID)
		return nil, run, syncrun.ErrSyncInProgress
	}

	ar := &activeRun{run: syncrun.SyncRun{
		ID:          ids.New(),
		Type:        t,
		Mode:        mode,
		WindowStart: start,
		WindowEnd:   end,
		Status:      syncrun.StatusRunning,
		StartedAt:   o.now().UTC(),
	}}
	o.active[t] = ar
	o.wg.Add(1)
	o.mu.Unlock()

	acquired, err := o.runs.AcquireLock(ctx, t, ar.run.ID)
	if err != nil {
		o.release(t)
		return nil, syncrun.SyncRun{}, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		o.release(t)
		metrics.SyncRejectedTotal.WithLabelValues(string(t)).Inc()
		slog.Info("Sync lock held elsewhere, trigger ignored", "sync_type", t)
		if holder, err := o.runs.LastRun(ctx, t); err == nil && holder != nil && holder.Status == syncrun.StatusRunning {
			return nil, *holder, syncrun.ErrSyncInProgress
		}
		return nil, syncrun.SyncRun{Type: t, Status: syncrun.StatusRunning}, syncrun.ErrSyncInProgress
	}

	if err := o.runs.CreateRun(ctx, ar.run); err != nil {
		if relErr := o.runs.ReleaseLock(ctx, t, ar.run.ID); relErr != nil {
			slog.Error("Failed to release sync lock", "sync_type", t, "run_id", ar.run.ID, "error", relErr)
		}
		o.release(t)
		return nil, syncrun.SyncRun{}, fmt.Errorf("failed to record sync run: %w", err)
	}

	metrics.SyncRunning.WithLabelValues(string(t)).Set(1)
	slog.Info("Sync run started", "sync_type", t, "mode", mode, "run_id", ar.run.ID)
	o.publish("sync.started", ar.run)

	return ar, cloneRun(ar.run), nil
}

func (o *Orchestrator) release(t syncrun.Type) {
	o.mu.Lock()
	delete(o.active, t)
	o.mu.Unlock()
	o.wg.Done()
}

// execute detaches from the caller's cancellation so an HTTP client going
// away does not abandon a half-written run.
func (o *Orchestrator) execute(ctx context.Context, ar *activeRun, fn syncFunc) syncrun.SyncRun {
	defer o.wg.Done()

	ctx = context.WithoutCancel(ctx)
	run := cloneRun(ar.run)

	aborted := func() (aborted bool) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Sync run panicked", "sync_type", run.Type, "run_id", run.ID, "panic", r)
				run.AddError(fmt.Errorf("internal error: %v", r))
				aborted = true
			}
		}()
		return fn(ctx, ar, &run)
	}()

	return o.finish(ctx, run, aborted)
}

func (o *Orchestrator) finish(ctx context.Context, run syncrun.SyncRun, aborted bool) syncrun.SyncRun {
	finishedAt := o.now().UTC()
	run.FinishedAt = &finishedAt
	run.Status = run.Classify(aborted)

	if err := o.runs.FinishRun(ctx, run); err != nil {
		slog.Error("Failed to persist sync run", "run_id", run.ID, "error", err)
	}
	if err := o.runs.ReleaseLock(ctx, run.Type, run.ID); err != nil {
		slog.Error("Failed to release sync lock", "sync_type", run.Type, "run_id", run.ID, "error", err)
	}

	o.mu.Lock()
	delete(o.active, run.Type)
	o.lastRuns[run.Type] = cloneRun(run)
	o.totals.Add(run)
	o.mu.Unlock()

	syncType := string(run.Type)
	metrics.SyncRunning.WithLabelValues(syncType).Set(0)
	metrics.SyncRunsTotal.WithLabelValues(syncType, string(run.Status)).Inc()
	metrics.SyncRunDuration.WithLabelValues(syncType).Observe(run.Duration().Seconds())
	metrics.SyncRecordsTotal.WithLabelValues(syncType, "found").Add(float64(run.RecordsFound))
	metrics.SyncRecordsTotal.WithLabelValues(syncType, "written").Add(float64(run.RecordsWritten))
	metrics.SyncRecordsTotal.WithLabelValues(syncType, "skipped").Add(float64(run.RecordsSkipped))
	metrics.SyncRecordsTotal.WithLabelValues(syncType, "unmapped").Add(float64(run.Unmapped))
	metrics.SyncRecordsTotal.WithLabelValues(syncType, "error").Add(float64(len(run.Errors)))

	attrs := []any{
		"sync_type", run.Type,
		"mode", run.Mode,
		"run_id", run.ID,
		"status", run.Status,
		"found", run.RecordsFound,
		"written", run.RecordsWritten,
		"skipped", run.RecordsSkipped,
		"errors", len(run.Errors),
		"attempts", run.Attempts,
		"duration", run.Duration(),
	}
	switch run.Status {
	case syncrun.StatusFailed:
		slog.Error("Sync run failed", attrs...)
	case syncrun.StatusDegraded:
		slog.Warn("Sync run finished with errors", attrs...)
	default:
		slog.Info("Sync run succeeded", attrs...)
	}

	o.publish("sync.finished", run)
	return run
}

// progress exposes the run's counters to Status while it is running.
func (o *Orchestrator) progress(ar *activeRun, run syncrun.SyncRun) {
	o.mu.Lock()
	ar.run = cloneRun(run)
	o.mu.Unlock()
	o.publish("sync.progress", run)
}

func (o *Orchestrator) withRetry(ctx context.Context, t syncrun.Type, op string, fn func(ctx context.Context) error) retry.Result {
	r := retry.New(o.cfg.Retry, provider.IsRetryable,
		retry.WithClock(o.clock),
		retry.OnRetry(func(attempt int, delay time.Duration, err error) {
			metrics.ProviderRetriesTotal.WithLabelValues(string(t)).Inc()
			slog.Warn("Provider request failed, retrying",
				"sync_type", t,
				"operation", op,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}),
	)

	res := r.Do(ctx, fn)
	if res.State == retry.StateExhausted {
		slog.Error("Provider request retries exhausted", "sync_type", t, "operation", op, "attempts", res.Attempts, "error", res.Err)
	}
	return res
}

func (o *Orchestrator) publish(event string, run syncrun.SyncRun) {
	o.publishEvent(event, syncrun.NewRunResponse(run))
}

func (o *Orchestrator) publishEvent(event string, data any) {
	if o.hub == nil {
		return
	}
	o.hub.Publish(sse.Event{Topic: EventTopic, Event: event, Data: data})
}

func cloneRun(run syncrun.SyncRun) syncrun.SyncRun {
	run.Errors = append([]string(nil), run.Errors...)
	return run
}

func copyTotals(t syncrun.Totals) syncrun.Totals {
	out := t
	out.ByStatus = make(map[syncrun.Status]int, len(t.ByStatus))
	for k, v := range t.ByStatus {
		out.ByStatus[k] = v
	}
	return out
}
