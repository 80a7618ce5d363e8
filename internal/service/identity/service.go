package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/google/uuid"
)

type IdentityServiceImpl struct {
	identity.IdentityRepository
	identity.MappingRepository
	withTx database.TxRunner
	cfg    identity.MatchConfig
}

var _ identity.Service = (*IdentityServiceImpl)(nil)

// NewIdentityService wires the resolver to storage. A nil withTx runs
// grouped writes without a transaction.
func NewIdentityService(
	withTx database.TxRunner,
	identityRepo identity.IdentityRepository,
	mappingRepo identity.MappingRepository,
	cfg identity.MatchConfig,
) *IdentityServiceImpl {
	if withTx == nil {
		withTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &IdentityServiceImpl{
		IdentityRepository: identityRepo,
		MappingRepository:  mappingRepo,
		withTx:             withTx,
		cfg:                cfg,
	}
}

// ResolveRoster implements identity.Service.
func (s *IdentityServiceImpl) ResolveRoster(ctx context.Context, employees []provider.Employee) (identity.Resolution, identity.ApplyResult, error) {
	identities, err := s.IdentityRepository.ListIdentities(ctx, true)
	if err != nil {
		return identity.Resolution{}, identity.ApplyResult{}, fmt.Errorf("failed to load identities: %w", err)
	}

	activeList, err := s.MappingRepository.ListActive(ctx)
	if err != nil {
		return identity.Resolution{}, identity.ApplyResult{}, fmt.Errorf("failed to load active mappings: %w", err)
	}
	active := make(map[string]identity.Mapping, len(activeList))
	for _, m := range activeList {
		active[m.ProviderCode] = m
	}

	resolution := Resolve(employees, identities, active, s.cfg)
	for _, malformed := range resolution.Malformed {
		slog.Warn("Skipping malformed roster record", "error", malformed)
	}

	return resolution, s.apply(ctx, resolution, active), nil
}

func (s *IdentityServiceImpl) apply(ctx context.Context, resolution identity.Resolution, active map[string]identity.Mapping) identity.ApplyResult {
	var out identity.ApplyResult

	for _, result := range resolution.Results {
		switch result.Outcome {
		case identity.OutcomeAutoMapped:
			top, _ := result.Top()
			_, err := s.MappingRepository.Upsert(ctx, identity.Mapping{
				ProviderCode:    result.ProviderCode,
				LocalIdentityID: top.Identity.ID,
				MatchScore:      top.Score,
				Status:          identity.StatusAutoMapped,
			})
			switch {
			case errors.Is(err, identity.ErrActiveMappingExists):
				out.Conflicts++
				slog.Info("Auto-map lost to an existing active mapping", "provider_code", result.ProviderCode)
			case err != nil:
				out.Errors = append(out.Errors, fmt.Errorf("auto-map %s: %w", result.ProviderCode, err))
			default:
				out.AutoMapped++
			}

		case identity.OutcomeAlreadyMapped:
			out.AlreadyMapped++
			current := active[result.ProviderCode]
			if current.Status != identity.StatusAutoMapped {
				continue
			}
			top, _ := result.Top()
			current.MatchScore = top.Score
			if _, err := s.MappingRepository.Upsert(ctx, current); err != nil {
				out.Errors = append(out.Errors, fmt.Errorf("refresh mapping %s: %w", result.ProviderCode, err))
			}

		case identity.OutcomeNeedsReview:
			failed := false
			for _, c := range result.Candidates {
				_, err := s.MappingRepository.Upsert(ctx, identity.Mapping{
					ProviderCode:    result.ProviderCode,
					LocalIdentityID: c.Identity.ID,
					MatchScore:      c.Score,
					Status:          identity.StatusNeedsReview,
				})
				if err != nil {
					failed = true
					out.Errors = append(out.Errors, fmt.Errorf("queue review %s: %w", result.ProviderCode, err))
				}
			}
			if !failed {
				out.NeedsReview++
			}

		case identity.OutcomeUnmatched:
			out.Unmatched++
		}
	}

	return out
}

// ActiveMappings implements identity.Service.
func (s *IdentityServiceImpl) ActiveMappings(ctx context.Context) (map[string]uuid.UUID, error) {
	mappings, err := s.MappingRepository.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active mappings: %w", err)
	}

	byCode := make(map[string]uuid.UUID, len(mappings))
	for _, m := range mappings {
		byCode[m.ProviderCode] = m.LocalIdentityID
	}
	return byCode, nil
}

// ListMappings implements identity.Service.
func (s *IdentityServiceImpl) ListMappings(ctx context.Context, filter identity.MappingFilter) ([]identity.Mapping, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, identity.ErrInvalidMappingStatus
	}
	return s.MappingRepository.List(ctx, filter)
}

// ConfirmMapping implements identity.Service. Other active mappings of the
// code are rejected in the same transaction.
func (s *IdentityServiceImpl) ConfirmMapping(ctx context.Context, req identity.ReviewMappingRequest) (identity.Mapping, error) {
	if err := req.Validate(); err != nil {
		return identity.Mapping{}, err
	}
	id := req.IdentityID()

	var confirmed identity.Mapping
	err := s.withTx(ctx, func(ctx context.Context) error {
		if _, err := s.MappingRepository.Get(ctx, req.ProviderCode, id); err != nil {
			return err
		}

		code := req.ProviderCode
		siblings, err := s.MappingRepository.List(ctx, identity.MappingFilter{ProviderCode: &code})
		if err != nil {
			return err
		}
		for _, m := range siblings {
			if m.LocalIdentityID == id || !m.Status.IsActive() {
				continue
			}
			if err := s.MappingRepository.SetStatus(ctx, code, m.LocalIdentityID, identity.StatusRejected); err != nil {
				return fmt.Errorf("supersede mapping: %w", err)
			}
		}

		if err := s.MappingRepository.SetStatus(ctx, code, id, identity.StatusConfirmed); err != nil {
			return err
		}

		confirmed, err = s.MappingRepository.Get(ctx, code, id)
		return err
	})
	if err != nil {
		return identity.Mapping{}, err
	}

	slog.Info("Mapping confirmed", "provider_code", confirmed.ProviderCode, "local_identity_id", confirmed.LocalIdentityID)
	return confirmed, nil
}

// RejectMapping implements identity.Service.
func (s *IdentityServiceImpl) RejectMapping(ctx context.Context, req identity.ReviewMappingRequest) (identity.Mapping, error) {
	if err := req.Validate(); err != nil {
		return identity.Mapping{}, err
	}
	id := req.IdentityID()

	if err := s.MappingRepository.SetStatus(ctx, req.ProviderCode, id, identity.StatusRejected); err != nil {
		return identity.Mapping{}, err
	}

	rejected, err := s.MappingRepository.Get(ctx, req.ProviderCode, id)
	if err != nil {
		return identity.Mapping{}, err
	}

	slog.Info("Mapping rejected", "provider_code", rejected.ProviderCode, "local_identity_id", rejected.LocalIdentityID)
	return rejected, nil
}
