package syncer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
	"github.com/google/uuid"
)

type instantClock struct{}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type fakeClient struct {
	mu      sync.Mutex
	roster  func(ctx context.Context) ([]provider.Employee, error)
	since   func(ctx context.Context, cursor provider.Cursor) (provider.PunchPage, error)
	between func(ctx context.Context, from, to time.Time) ([]provider.PunchEvent, error)
	calls   map[string]int
	windows [][2]time.Time
}

func newFakeClient() *fakeClient {
	return &fakeClient{calls: make(map[string]int)}
}

func (f *fakeClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeClient) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeClient) Roster(ctx context.Context) ([]provider.Employee, error) {
	f.record("roster")
	if f.roster == nil {
		return nil, nil
	}
	return f.roster(ctx)
}

func (f *fakeClient) PunchesBetween(ctx context.Context, from, to time.Time, filter string) ([]provider.PunchEvent, error) {
	f.record("between")
	f.mu.Lock()
	f.windows = append(f.windows, [2]time.Time{from, to})
	f.mu.Unlock()
	if f.between == nil {
		return nil, nil
	}
	return f.between(ctx, from, to)
}

func (f *fakeClient) PunchesSince(ctx context.Context, cursor provider.Cursor, filter string) (provider.PunchPage, error) {
	f.record("since")
	if f.since == nil {
		return provider.PunchPage{Next: cursor}, nil
	}
	return f.since(ctx, cursor)
}

type fakeIdentities struct {
	identities []identity.LocalIdentity
	mapping    map[string]uuid.UUID
	resolve    func(employees []provider.Employee) (identity.Resolution, identity.ApplyResult, error)
}

func (f *fakeIdentities) ResolveRoster(ctx context.Context, employees []provider.Employee) (identity.Resolution, identity.ApplyResult, error) {
	if f.resolve != nil {
		return f.resolve(employees)
	}
	var res identity.Resolution
	for _, e := range employees {
		res.Results = append(res.Results, identity.MatchResult{ProviderCode: e.Code, Outcome: identity.OutcomeUnmatched})
	}
	return res, identity.ApplyResult{Unmatched: len(employees)}, nil
}

func (f *fakeIdentities) ActiveMappings(ctx context.Context) (map[string]uuid.UUID, error) {
	return f.mapping, nil
}

func (f *fakeIdentities) ListMappings(ctx context.Context, filter identity.MappingFilter) ([]identity.Mapping, error) {
	return nil, nil
}

func (f *fakeIdentities) ConfirmMapping(ctx context.Context, req identity.ReviewMappingRequest) (identity.Mapping, error) {
	return identity.Mapping{}, nil
}

func (f *fakeIdentities) RejectMapping(ctx context.Context, req identity.ReviewMappingRequest) (identity.Mapping, error) {
	return identity.Mapping{}, nil
}

func (f *fakeIdentities) ListIdentities(ctx context.Context, activeOnly bool) ([]identity.LocalIdentity, error) {
	return f.identities, nil
}

type fakeRuns struct {
	mu         sync.Mutex
	runs       map[string]syncrun.SyncRun
	cursors    map[syncrun.Type]string
	locks      map[syncrun.Type]string
	staleCalls int
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{
		runs:    make(map[string]syncrun.SyncRun),
		cursors: make(map[syncrun.Type]string),
		locks:   make(map[syncrun.Type]string),
	}
}

func (f *fakeRuns) CreateRun(ctx context.Context, run syncrun.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRuns) FinishRun(ctx context.Context, run syncrun.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.ID]; !ok {
		return syncrun.ErrRunNotFound
	}
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRuns) LastRun(ctx context.Context, t syncrun.Type) (*syncrun.SyncRun, error) {
	runs, _ := f.ListRuns(ctx, syncrun.RunFilter{Type: &t, Limit: 1})
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (f *fakeRuns) ListRuns(ctx context.Context, filter syncrun.RunFilter) ([]syncrun.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []syncrun.SyncRun
	for _, run := range f.runs {
		if filter.Type != nil && run.Type != *filter.Type {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeRuns) GetCursor(ctx context.Context, t syncrun.Type) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cursors[t]
	return c, ok, nil
}

func (f *fakeRuns) SaveCursor(ctx context.Context, t syncrun.Type, cursor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors[t] = cursor
	return nil
}

func (f *fakeRuns) AcquireLock(ctx context.Context, t syncrun.Type, runID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.locks[t]; held {
		return false, nil
	}
	f.locks[t] = runID
	return true, nil
}

func (f *fakeRuns) ReleaseLock(ctx context.Context, t syncrun.Type, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[t] == runID {
		delete(f.locks, t)
	}
	return nil
}

func (f *fakeRuns) ReleaseStaleLocks(ctx context.Context, finishedAt time.Time, reason string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleCalls++

	var released []string
	for t, id := range f.locks {
		run := f.runs[id]
		run.Status = syncrun.StatusFailed
		run.Errors = append(run.Errors, reason)
		run.FinishedAt = &finishedAt
		f.runs[id] = run
		released = append(released, id)
		delete(f.locks, t)
	}
	return released, nil
}

func (f *fakeRuns) get(id string) syncrun.SyncRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

func (f *fakeRuns) lockCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.locks)
}

type memAttendance struct {
	mu   sync.Mutex
	rows map[attendance.DedupKey]attendance.DailyRecord
	fail func(rec attendance.DailyRecord) error
}

func newMemAttendance() *memAttendance {
	return &memAttendance{rows: make(map[attendance.DedupKey]attendance.DailyRecord)}
}

func (m *memAttendance) Upsert(ctx context.Context, rec attendance.DailyRecord) (attendance.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		if err := m.fail(rec); err != nil {
			return attendance.DailyRecord{}, err
		}
	}
	key := attendance.DedupKey{LocalIdentityID: rec.LocalIdentityID, Date: rec.Date.Format(attendance.DateLayout)}
	if cur, ok := m.rows[key]; ok && cur.Source == attendance.SourceManual && rec.Source != attendance.SourceManual {
		return attendance.DailyRecord{}, attendance.ErrManualOverride
	}
	m.rows[key] = rec
	return rec, nil
}

func (m *memAttendance) GetByIdentityAndDate(ctx context.Context, id uuid.UUID, date time.Time) (*attendance.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[attendance.DedupKey{LocalIdentityID: id, Date: date.Format(attendance.DateLayout)}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memAttendance) ListByDateRange(ctx context.Context, from, to time.Time) ([]attendance.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.DailyRecord
	for _, rec := range m.rows {
		if !rec.Date.Before(from) && !rec.Date.After(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}
