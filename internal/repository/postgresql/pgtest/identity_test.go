package pgtest

import (
	"context"
	"testing"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/repository/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRepository_ListIdentities(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	repo := postgresql.NewIdentityRepository(setup.DB)

	john := setup.CreateIdentity(t, "John Doe", "john@example.com", true)
	setup.CreateIdentity(t, "Former Staff", "", false)

	active, err := repo.ListIdentities(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, john, active[0].ID)
	assert.Equal(t, "john@example.com", active[0].Email)

	all, err := repo.ListIdentities(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMappingRepository_UpsertNeverDowngrades(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	repo := postgresql.NewMappingRepository(setup.DB)
	id := setup.CreateIdentity(t, "John Doe", "john@example.com", true)

	_, err := repo.Upsert(ctx, identity.Mapping{ProviderCode: "0001", LocalIdentityID: id, MatchScore: 0.9, Status: identity.StatusAutoMapped})
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, "0001", id, identity.StatusConfirmed))

	got, err := repo.Upsert(ctx, identity.Mapping{ProviderCode: "0001", LocalIdentityID: id, MatchScore: 0.6, Status: identity.StatusNeedsReview})
	require.NoError(t, err)
	assert.Equal(t, identity.StatusConfirmed, got.Status)
	assert.Equal(t, 0.9, got.MatchScore)
}

func TestMappingRepository_AutoMappedNotDemotedToReview(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	repo := postgresql.NewMappingRepository(setup.DB)
	id := setup.CreateIdentity(t, "John Doe", "john@example.com", true)

	_, err := repo.Upsert(ctx, identity.Mapping{ProviderCode: "0001", LocalIdentityID: id, MatchScore: 0.9, Status: identity.StatusAutoMapped})
	require.NoError(t, err)

	got, err := repo.Upsert(ctx, identity.Mapping{ProviderCode: "0001", LocalIdentityID: id, MatchScore: 0.7, Status: identity.StatusNeedsReview})
	require.NoError(t, err)
	assert.Equal(t, identity.StatusAutoMapped, got.Status)
	assert.Equal(t, 0.7, got.MatchScore)
}

func TestMappingRepository_OneActivePerCode(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	repo := postgresql.NewMappingRepository(setup.DB)
	first := setup.CreateIdentity(t, "John Doe", "", true)
	second := setup.CreateIdentity(t, "Jon Doe", "", true)

	_, err := repo.Upsert(ctx, identity.Mapping{ProviderCode: "0001", LocalIdentityID: first, MatchScore: 0.9, Status: identity.StatusAutoMapped})
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, identity.Mapping{ProviderCode: "0001", LocalIdentityID: second, MatchScore: 0.85, Status: identity.StatusAutoMapped})
	assert.ErrorIs(t, err, identity.ErrActiveMappingExists)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first, active[0].LocalIdentityID)
}

func TestMappingRepository_GetAndList(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	repo := postgresql.NewMappingRepository(setup.DB)
	id := setup.CreateIdentity(t, "Sakshi Saglotia", "", true)

	_, err := repo.Get(ctx, "0002", id)
	assert.ErrorIs(t, err, identity.ErrMappingNotFound)

	_, err = repo.Upsert(ctx, identity.Mapping{ProviderCode: "0002", LocalIdentityID: id, MatchScore: 0.64, Status: identity.StatusNeedsReview})
	require.NoError(t, err)

	status := identity.StatusNeedsReview
	list, err := repo.List(ctx, identity.MappingFilter{Status: &status, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "0002", list[0].ProviderCode)

	assert.ErrorIs(t, repo.SetStatus(ctx, "9999", id, identity.StatusRejected), identity.ErrMappingNotFound)
}
