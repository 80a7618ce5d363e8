package identity

import (
	"context"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/google/uuid"
)

// ApplyResult summarizes a write-back of a Resolution.
type ApplyResult struct {
	AutoMapped    int
	NeedsReview   int
	AlreadyMapped int
	Unmatched     int
	Conflicts     int
	Errors        []error
}

// Service resolves provider rosters and manages mapping review.
type Service interface {
	// ResolveRoster matches employees against active identities and writes
	// the resulting mappings.
	ResolveRoster(ctx context.Context, employees []provider.Employee) (Resolution, ApplyResult, error)

	// ActiveMappings returns provider code to identity for every active mapping.
	ActiveMappings(ctx context.Context) (map[string]uuid.UUID, error)

	ListMappings(ctx context.Context, filter MappingFilter) ([]Mapping, error)

	// ConfirmMapping makes the pair the only active mapping for its code.
	ConfirmMapping(ctx context.Context, req ReviewMappingRequest) (Mapping, error)

	RejectMapping(ctx context.Context, req ReviewMappingRequest) (Mapping, error)
}
