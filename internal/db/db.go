// Package db manages database connections, schema migrations and the startup
// schema capability check for projecthub.
// Migrations are embedded in the binary so the server can apply schema changes
// on startup without external tooling.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, maxConnections, minIdleConnections int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(maxConnections)
	db.SetMaxIdleConns(minIdleConnections)

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// RunMigrations runs database migrations
func RunMigrations(db *sql.DB, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("invalid migration direction: %s (must be 'up' or 'down')", direction)
	}

	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	switch direction {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
	}

	return nil
}

// GetMigrationVersion returns the current migration version
func GetMigrationVersion(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}

// ErrMissingSchemaCapability is returned by CheckSchemaCapabilities when a
// constraint the admission workflow depends on is absent.
var ErrMissingSchemaCapability = errors.New("missing schema capability")

// SchemaCapabilities reports which indexes backing the conditional writes exist.
type SchemaCapabilities struct {
	// JoinRequestUnique is the unique index on join_requests(user_id, project_id)
	// that makes create-if-absent atomic.
	JoinRequestUnique bool
	// MembershipUnique is the unique index on project_members(project_id, user_id)
	// that makes membership insertion idempotent.
	MembershipUnique bool
	// MessageKeyset is the (project_id, created_at) index used by history paging.
	// Its absence only degrades performance.
	MessageKeyset bool
}

// Missing lists the required capabilities that are absent.
func (c SchemaCapabilities) Missing() []string {
	var missing []string
	if !c.JoinRequestUnique {
		missing = append(missing, "unique index join_requests(user_id, project_id)")
	}
	if !c.MembershipUnique {
		missing = append(missing, "unique index project_members(project_id, user_id)")
	}
	return missing
}

// CheckSchemaCapabilities inspects pg_indexes once and reports which indexes
// are present. It returns ErrMissingSchemaCapability when a required unique
// index is missing, so the caller can refuse to start.
func CheckSchemaCapabilities(ctx context.Context, db *sql.DB) (SchemaCapabilities, error) {
	var caps SchemaCapabilities

	rows, err := db.QueryContext(ctx, `
		SELECT tablename, indexdef
		FROM pg_indexes
		WHERE schemaname = current_schema()
		  AND tablename IN ('join_requests', 'project_members', 'messages')
	`)
	if err != nil {
		return caps, fmt.Errorf("failed to query pg_indexes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, def string
		if err := rows.Scan(&table, &def); err != nil {
			return caps, fmt.Errorf("failed to scan index definition: %w", err)
		}
		unique := strings.Contains(def, "UNIQUE INDEX")
		cols := indexColumns(def)
		switch {
		case table == "join_requests" && unique && cols == "user_id, project_id":
			caps.JoinRequestUnique = true
		case table == "project_members" && unique && cols == "project_id, user_id":
			caps.MembershipUnique = true
		case table == "messages" && strings.HasPrefix(cols, "project_id, created_at"):
			caps.MessageKeyset = true
		}
	}
	if err := rows.Err(); err != nil {
		return caps, fmt.Errorf("failed to read index definitions: %w", err)
	}

	if missing := caps.Missing(); len(missing) > 0 {
		return caps, fmt.Errorf("%w: %s", ErrMissingSchemaCapability, strings.Join(missing, "; "))
	}
	return caps, nil
}

// indexColumns extracts the column list from a pg_indexes.indexdef string such as
// "CREATE UNIQUE INDEX x ON public.t USING btree (a, b)".
func indexColumns(def string) string {
	using := strings.Index(def, " USING ")
	if using < 0 {
		return ""
	}
	rest := def[using:]
	start := strings.Index(rest, "(")
	end := strings.Index(rest, ")")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(rest[start+1 : end])
}
