package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRoster_WritesMappings(t *testing.T) {
	ctx := context.Background()
	john := newIdentity("John Doe", "john@example.com")
	sakshi := newIdentity("Sakshi Saglotia", "sakshi@example.com")
	mappings := newFakeMappingRepo()
	svc := NewIdentityService(nil, &fakeIdentityRepo{identities: []identity.LocalIdentity{john, sakshi}}, mappings, identity.DefaultMatchConfig())

	employees := []provider.Employee{
		{Code: "0001", Name: "John Doe", Email: "john@example.com"},
		{Code: "0002", Name: "Sakshi", Email: "sakshi@example.com"},
		{Code: "0003", Name: "Stranger"},
		{Code: "", Name: "Broken"},
	}

	res, applied, err := svc.ResolveRoster(ctx, employees)
	require.NoError(t, err)
	assert.Len(t, res.Malformed, 1)
	assert.Equal(t, 1, applied.AutoMapped)
	assert.Equal(t, 1, applied.NeedsReview)
	assert.Equal(t, 1, applied.Unmatched)
	assert.Empty(t, applied.Errors)

	active, err := svc.ActiveMappings(ctx)
	require.NoError(t, err)
	assert.Equal(t, john.ID, active["0001"])
	_, ok := active["0002"]
	assert.False(t, ok)

	review, err := mappings.Get(ctx, "0002", sakshi.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusNeedsReview, review.Status)

	// A second pass is idempotent.
	_, applied, err = svc.ResolveRoster(ctx, employees)
	require.NoError(t, err)
	assert.Equal(t, 1, applied.AlreadyMapped)
	assert.Equal(t, 0, applied.AutoMapped)
	assert.Equal(t, 1, mappings.activeCount("0001"))
}

func TestResolveRoster_NeverDowngradesConfirmed(t *testing.T) {
	ctx := context.Background()
	john := newIdentity("John Doe", "john@example.com")
	jon := newIdentity("Jon Doe", "jon@example.com")
	mappings := newFakeMappingRepo(identity.Mapping{
		ProviderCode: "0001", LocalIdentityID: jon.ID, MatchScore: 0.5, Status: identity.StatusConfirmed,
	})
	svc := NewIdentityService(nil, &fakeIdentityRepo{identities: []identity.LocalIdentity{john, jon}}, mappings, identity.DefaultMatchConfig())

	_, applied, err := svc.ResolveRoster(ctx, []provider.Employee{{Code: "0001", Name: "John Doe", Email: "john@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, 1, applied.NeedsReview)

	confirmed, err := mappings.Get(ctx, "0001", jon.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusConfirmed, confirmed.Status)
	assert.Equal(t, 1, mappings.activeCount("0001"))
}

func TestResolveRoster_ConflictIsInformational(t *testing.T) {
	ctx := context.Background()
	john := newIdentity("John Doe", "john@example.com")
	mappings := newFakeMappingRepo()
	svc := NewIdentityService(nil, &fakeIdentityRepo{identities: []identity.LocalIdentity{john}}, mappings, identity.DefaultMatchConfig())

	// Another writer binds the code between the read and the write.
	res := Resolve([]provider.Employee{{Code: "0001", Name: "John Doe", Email: "john@example.com"}},
		[]identity.LocalIdentity{john}, nil, identity.DefaultMatchConfig())
	other := newIdentity("Someone Else", "")
	_, err := mappings.Upsert(ctx, identity.Mapping{ProviderCode: "0001", LocalIdentityID: other.ID, MatchScore: 1, Status: identity.StatusConfirmed})
	require.NoError(t, err)

	applied := svc.apply(ctx, res, nil)
	assert.Equal(t, 1, applied.Conflicts)
	assert.Empty(t, applied.Errors)
	assert.Equal(t, 1, mappings.activeCount("0001"))
}

func TestResolveRoster_LoadFailure(t *testing.T) {
	svc := NewIdentityService(nil, &fakeIdentityRepo{err: errors.New("db down")}, newFakeMappingRepo(), identity.DefaultMatchConfig())
	_, _, err := svc.ResolveRoster(context.Background(), nil)
	assert.Error(t, err)
}

func TestConfirmMapping_SupersedesOtherActive(t *testing.T) {
	ctx := context.Background()
	john := newIdentity("John Doe", "")
	jon := newIdentity("Jon Doe", "")
	mappings := newFakeMappingRepo(
		identity.Mapping{ProviderCode: "0001", LocalIdentityID: john.ID, MatchScore: 0.9, Status: identity.StatusAutoMapped},
		identity.Mapping{ProviderCode: "0001", LocalIdentityID: jon.ID, MatchScore: 0.7, Status: identity.StatusNeedsReview},
	)

	var txCalls int
	withTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		txCalls++
		return fn(ctx)
	}
	svc := NewIdentityService(withTx, &fakeIdentityRepo{}, mappings, identity.DefaultMatchConfig())

	got, err := svc.ConfirmMapping(ctx, identity.ReviewMappingRequest{ProviderCode: "0001", LocalIdentityID: jon.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, identity.StatusConfirmed, got.Status)
	assert.Equal(t, 1, txCalls)

	previous, err := mappings.Get(ctx, "0001", john.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusRejected, previous.Status)
	assert.Equal(t, 1, mappings.activeCount("0001"))
}

func TestConfirmMapping_Errors(t *testing.T) {
	svc := NewIdentityService(nil, &fakeIdentityRepo{}, newFakeMappingRepo(), identity.DefaultMatchConfig())

	_, err := svc.ConfirmMapping(context.Background(), identity.ReviewMappingRequest{ProviderCode: "0001", LocalIdentityID: "nope"})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	_, err = svc.ConfirmMapping(context.Background(), identity.ReviewMappingRequest{
		ProviderCode: "0001", LocalIdentityID: newIdentity("x", "").ID.String(),
	})
	assert.ErrorIs(t, err, identity.ErrMappingNotFound)
}

func TestRejectMapping(t *testing.T) {
	ctx := context.Background()
	john := newIdentity("John Doe", "")
	mappings := newFakeMappingRepo(identity.Mapping{ProviderCode: "0001", LocalIdentityID: john.ID, MatchScore: 0.9, Status: identity.StatusAutoMapped})
	svc := NewIdentityService(nil, &fakeIdentityRepo{}, mappings, identity.DefaultMatchConfig())

	got, err := svc.RejectMapping(ctx, identity.ReviewMappingRequest{ProviderCode: "0001", LocalIdentityID: john.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, identity.StatusRejected, got.Status)
	assert.Equal(t, 0, mappings.activeCount("0001"))

	invalid := identity.MappingStatus("bogus")
	_, err = svc.ListMappings(ctx, identity.MappingFilter{Status: &invalid})
	assert.ErrorIs(t, err, identity.ErrInvalidMappingStatus)
}
