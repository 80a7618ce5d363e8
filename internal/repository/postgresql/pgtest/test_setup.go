package pgtest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/migrate"
	"github.com/google/uuid"
)

// TestDatabaseSetup holds a migrated test database.
type TestDatabaseSetup struct {
	DB *database.DB
}

// NewTestDatabase connects to TEST_DATABASE_URL and applies migrations.
// Tests are skipped when the variable is unset.
func NewTestDatabase(t *testing.T) *TestDatabaseSetup {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.NewPostgreSQLDB(dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(db.Close)

	if _, err := migrate.NewManager(db.SQL()).Up(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	setup := &TestDatabaseSetup{DB: db}
	if err := setup.TruncateAllTables(context.Background()); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
	return setup
}

// TruncateAllTables removes all rows from the service tables.
func (s *TestDatabaseSetup) TruncateAllTables(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tables := []string{
		"sync_locks",
		"sync_cursors",
		"sync_runs",
		"daily_attendance",
		"identity_mappings",
		"local_identities",
	}

	for _, table := range tables {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}

// CreateIdentity inserts a local identity and returns its id.
func (s *TestDatabaseSetup) CreateIdentity(t *testing.T, name, email string, active bool) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := s.DB.QueryRow(context.Background(), `
		INSERT INTO local_identities (name, email, active)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING id
	`, name, email, active).Scan(&id)
	if err != nil {
		t.Fatalf("failed to create identity: %v", err)
	}
	return id
}
