package postgresql

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
)

type identityRepository struct {
	db *database.DB
}

func NewIdentityRepository(db *database.DB) identity.IdentityRepository {
	return &identityRepository{db: db}
}

// ListIdentities implements identity.IdentityRepository.
func (r *identityRepository) ListIdentities(ctx context.Context, activeOnly bool) ([]identity.LocalIdentity, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, name, COALESCE(email, ''), active
		FROM local_identities
		WHERE ($1 = false OR active = true)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := q.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []identity.LocalIdentity
	for rows.Next() {
		var li identity.LocalIdentity
		if err := rows.Scan(&li.ID, &li.Name, &li.Email, &li.Active); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}

	return identities, nil
}
