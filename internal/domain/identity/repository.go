package identity

import (
	"context"

	"github.com/google/uuid"
)

// IdentityRepository reads the product's user directory.
type IdentityRepository interface {
	// ListIdentities returns identities in a stable insertion order.
	ListIdentities(ctx context.Context, activeOnly bool) ([]LocalIdentity, error)
}

// MappingRepository persists provider code to identity mappings.
type MappingRepository interface {
	// Upsert writes m keyed by (ProviderCode, LocalIdentityID). Rows already
	// confirmed or rejected keep their status.
	Upsert(ctx context.Context, m Mapping) (Mapping, error)

	// ListActive returns every auto_mapped or confirmed mapping.
	ListActive(ctx context.Context) ([]Mapping, error)

	// List returns mappings matching filter.
	List(ctx context.Context, filter MappingFilter) ([]Mapping, error)

	// Get returns a single mapping.
	Get(ctx context.Context, providerCode string, localIdentityID uuid.UUID) (Mapping, error)

	// SetStatus overwrites the status of an existing mapping.
	SetStatus(ctx context.Context, providerCode string, localIdentityID uuid.UUID, status MappingStatus) error
}
