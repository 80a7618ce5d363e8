package identity

import (
	"context"
	"sort"
	"sync"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/google/uuid"
)

type fakeIdentityRepo struct {
	identities []identity.LocalIdentity
	err        error
}

func (f *fakeIdentityRepo) ListIdentities(ctx context.Context, activeOnly bool) ([]identity.LocalIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []identity.LocalIdentity
	for _, li := range f.identities {
		if activeOnly && !li.Active {
			continue
		}
		out = append(out, li)
	}
	return out, nil
}

type mappingKey struct {
	code string
	id   uuid.UUID
}

// fakeMappingRepo mirrors the SQL upsert rules and the partial unique index.
type fakeMappingRepo struct {
	mu   sync.Mutex
	rows map[mappingKey]identity.Mapping
}

func newFakeMappingRepo(seed ...identity.Mapping) *fakeMappingRepo {
	f := &fakeMappingRepo{rows: make(map[mappingKey]identity.Mapping)}
	for _, m := range seed {
		f.rows[mappingKey{m.ProviderCode, m.LocalIdentityID}] = m
	}
	return f
}

func (f *fakeMappingRepo) activeFor(code string, except uuid.UUID) bool {
	for k, m := range f.rows {
		if k.code == code && k.id != except && m.Status.IsActive() {
			return true
		}
	}
	return false
}

func (f *fakeMappingRepo) Upsert(ctx context.Context, m identity.Mapping) (identity.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := mappingKey{m.ProviderCode, m.LocalIdentityID}
	existing, ok := f.rows[key]
	next := m
	if ok {
		next = existing
		switch {
		case existing.Status == identity.StatusConfirmed || existing.Status == identity.StatusRejected:
		case existing.Status == identity.StatusAutoMapped && m.Status == identity.StatusNeedsReview:
			next.MatchScore = m.MatchScore
		default:
			next.MatchScore = m.MatchScore
			next.Status = m.Status
		}
	}
	if next.Status.IsActive() && f.activeFor(m.ProviderCode, m.LocalIdentityID) {
		return identity.Mapping{}, identity.ErrActiveMappingExists
	}
	f.rows[key] = next
	return next, nil
}

func (f *fakeMappingRepo) ListActive(ctx context.Context) ([]identity.Mapping, error) {
	active := identity.StatusAutoMapped
	confirmed := identity.StatusConfirmed
	a, _ := f.List(ctx, identity.MappingFilter{Status: &active})
	c, _ := f.List(ctx, identity.MappingFilter{Status: &confirmed})
	return append(a, c...), nil
}

func (f *fakeMappingRepo) List(ctx context.Context, filter identity.MappingFilter) ([]identity.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []identity.Mapping
	for _, m := range f.rows {
		if filter.ProviderCode != nil && m.ProviderCode != *filter.ProviderCode {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProviderCode != out[j].ProviderCode {
			return out[i].ProviderCode < out[j].ProviderCode
		}
		return out[i].MatchScore > out[j].MatchScore
	})
	return out, nil
}

func (f *fakeMappingRepo) Get(ctx context.Context, code string, id uuid.UUID) (identity.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.rows[mappingKey{code, id}]
	if !ok {
		return identity.Mapping{}, identity.ErrMappingNotFound
	}
	return m, nil
}

func (f *fakeMappingRepo) SetStatus(ctx context.Context, code string, id uuid.UUID, status identity.MappingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := mappingKey{code, id}
	m, ok := f.rows[key]
	if !ok {
		return identity.ErrMappingNotFound
	}
	if status.IsActive() && f.activeFor(code, id) {
		return identity.ErrActiveMappingExists
	}
	m.Status = status
	f.rows[key] = m
	return nil
}

func (f *fakeMappingRepo) activeCount(code string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for k, m := range f.rows {
		if k.code == code && m.Status.IsActive() {
			n++
		}
	}
	return n
}
