package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/projecthub/projecthub/internal/db/models"
)

const projectColumns = `id, name, owner_id, created_at, last_message_at, last_message_id`

// ProjectRepository handles project database operations
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a project and its owner membership row in one transaction.
func (r *ProjectRepository) Create(ctx context.Context, name string, ownerID int64) (*models.Project, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var project models.Project
	err = tx.GetContext(ctx, &project, `
		INSERT INTO projects (name, owner_id)
		VALUES ($1, $2)
		RETURNING `+projectColumns,
		name, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	if _, err := ensureMember(ctx, tx, project.ID, ownerID, models.RoleOwner); err != nil {
		return nil, fmt.Errorf("failed to add project owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project: %w", err)
	}
	return &project, nil
}

// GetByID retrieves a project by ID
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	var project models.Project
	err := r.db.GetContext(ctx, &project, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// ListForMember returns every project the user belongs to, most recently active first.
func (r *ProjectRepository) ListForMember(ctx context.Context, userID int64) ([]models.Project, error) {
	query := `
		SELECT p.id, p.name, p.owner_id, p.created_at, p.last_message_at, p.last_message_id
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id = $1
		ORDER BY COALESCE(p.last_message_at, p.created_at) DESC, p.id DESC
	`

	projects := []models.Project{}
	if err := r.db.SelectContext(ctx, &projects, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// CountProjects returns the number of project rows.
func (r *ProjectRepository) CountProjects(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM projects`); err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}
