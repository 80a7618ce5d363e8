package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation         = "23505"
	activeMappingConstraint = "identity_mappings_one_active"
	mappingColumns          = "provider_code, local_identity_id, match_score, status, created_at, updated_at"
)

type mappingRepository struct {
	db *database.DB
}

func NewMappingRepository(db *database.DB) identity.MappingRepository {
	return &mappingRepository{db: db}
}

// Upsert implements identity.MappingRepository. A confirmed or rejected row
// keeps its status and score, and an auto_mapped row is never demoted to
// needs_review.
func (r *mappingRepository) Upsert(ctx context.Context, m identity.Mapping) (identity.Mapping, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO identity_mappings (provider_code, local_identity_id, match_score, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (provider_code, local_identity_id) DO UPDATE SET
			match_score = CASE
				WHEN identity_mappings.status IN ('confirmed', 'rejected') THEN identity_mappings.match_score
				ELSE EXCLUDED.match_score
			END,
			status = CASE
				WHEN identity_mappings.status IN ('confirmed', 'rejected') THEN identity_mappings.status
				WHEN identity_mappings.status = 'auto_mapped' AND EXCLUDED.status = 'needs_review' THEN identity_mappings.status
				ELSE EXCLUDED.status
			END,
			updated_at = NOW()
		RETURNING ` + mappingColumns

	var out identity.Mapping
	err := q.QueryRow(ctx, query, m.ProviderCode, m.LocalIdentityID, m.MatchScore, m.Status).Scan(
		&out.ProviderCode, &out.LocalIdentityID, &out.MatchScore, &out.Status, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if isActiveMappingViolation(err) {
			return identity.Mapping{}, fmt.Errorf("provider code %s: %w", m.ProviderCode, identity.ErrActiveMappingExists)
		}
		return identity.Mapping{}, fmt.Errorf("failed to upsert mapping: %w", err)
	}

	return out, nil
}

// ListActive implements identity.MappingRepository.
func (r *mappingRepository) ListActive(ctx context.Context) ([]identity.Mapping, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + mappingColumns + `
		FROM identity_mappings
		WHERE status IN ('auto_mapped', 'confirmed')
		ORDER BY provider_code ASC`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active mappings: %w", err)
	}
	return collectMappings(rows)
}

// List implements identity.MappingRepository.
func (r *mappingRepository) List(ctx context.Context, filter identity.MappingFilter) ([]identity.Mapping, error) {
	q := GetQuerier(ctx, r.db)

	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.ProviderCode != nil {
		conditions = append(conditions, fmt.Sprintf("provider_code = $%d", argIndex))
		args = append(args, *filter.ProviderCode)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(*filter.Status))
		argIndex++
	}

	query := `SELECT ` + mappingColumns + ` FROM identity_mappings`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY provider_code ASC, match_score DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return collectMappings(rows)
}

// Get implements identity.MappingRepository.
func (r *mappingRepository) Get(ctx context.Context, providerCode string, localIdentityID uuid.UUID) (identity.Mapping, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + mappingColumns + `
		FROM identity_mappings
		WHERE provider_code = $1 AND local_identity_id = $2`

	var m identity.Mapping
	err := q.QueryRow(ctx, query, providerCode, localIdentityID).Scan(
		&m.ProviderCode, &m.LocalIdentityID, &m.MatchScore, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.Mapping{}, identity.ErrMappingNotFound
		}
		return identity.Mapping{}, fmt.Errorf("failed to get mapping: %w", err)
	}

	return m, nil
}

// SetStatus implements identity.MappingRepository.
func (r *mappingRepository) SetStatus(ctx context.Context, providerCode string, localIdentityID uuid.UUID, status identity.MappingStatus) error {
	if !status.IsValid() {
		return identity.ErrInvalidMappingStatus
	}
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE identity_mappings
		SET status = $3, updated_at = NOW()
		WHERE provider_code = $1 AND local_identity_id = $2
	`

	tag, err := q.Exec(ctx, query, providerCode, localIdentityID, status)
	if err != nil {
		if isActiveMappingViolation(err) {
			return fmt.Errorf("provider code %s: %w", providerCode, identity.ErrActiveMappingExists)
		}
		return fmt.Errorf("failed to update mapping status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrMappingNotFound
	}

	return nil
}

func collectMappings(rows pgx.Rows) ([]identity.Mapping, error) {
	defer rows.Close()

	var mappings []identity.Mapping
	for rows.Next() {
		var m identity.Mapping
		if err := rows.Scan(&m.ProviderCode, &m.LocalIdentityID, &m.MatchScore, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mappings: %w", err)
	}

	return mappings, nil
}

func isActiveMappingViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeMappingConstraint
}
