// Package main is a diagnostic tool for database connectivity and schema
// health. It connects with the server's configuration, prints the migration
// version, verifies the indexes the admission workflow depends on and prints
// row counts. With -fix-dirty it clears a dirty migration flag left behind by
// an interrupted migration so the server can retry on its next start. The
// binary exits non-zero on any failure so it can gate deployments.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/projecthub/projecthub/internal/config"
	"github.com/projecthub/projecthub/internal/db"
	"github.com/projecthub/projecthub/internal/db/repositories"
)

func main() {
	fixDirty := flag.Bool("fix-dirty", false, "clear the dirty flag in schema_migrations")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("=== SCHEMA ===")
	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Migration version: %d (dirty: %v)\n", version, dirty)

	if dirty && *fixDirty {
		if err := clearDirty(ctx, database); err != nil {
			log.Fatalf("Failed to fix dirty state: %v", err)
		}
		fmt.Println("Dirty flag cleared; the server will retry the migration on start")
	}

	caps, err := db.CheckSchemaCapabilities(ctx, database)
	fmt.Printf("join_requests(user_id, project_id) unique: %v\n", caps.JoinRequestUnique)
	fmt.Printf("project_members(project_id, user_id) unique: %v\n", caps.MembershipUnique)
	fmt.Printf("messages(project_id, created_at) index: %v\n", caps.MessageKeyset)
	if err != nil {
		log.Fatalf("Schema check failed: %v", err)
	}

	fmt.Println("\n=== ROWS ===")
	sqlxDB := sqlx.NewDb(database, "postgres")
	users, err := repositories.NewUserRepository(sqlxDB).CountUsers(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	projects, err := repositories.NewProjectRepository(sqlxDB).CountProjects(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	messages, err := repositories.NewMessageRepository(sqlxDB).CountMessages(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("Users: %d\nProjects: %d\nMessages: %d\n", users, projects, messages)
}

func clearDirty(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "UPDATE schema_migrations SET dirty = false")
	return err
}
