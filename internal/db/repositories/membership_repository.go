package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/projecthub/projecthub/internal/db/models"
)

// MembershipRepository is the sole authority on who belongs to a project.
// Rows are append-only: there is no delete.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// ensureMember inserts (projectID, userID, role) unless the pair already
// exists, and reports whether a row was inserted. It is the only write to
// project_members and runs inside the caller's transaction: the project
// bootstrap adds the owner, an accepted join request adds the requester.
func ensureMember(ctx context.Context, exec sqlx.ExecerContext, projectID, userID int64, role models.MemberRole) (bool, error) {
	result, err := exec.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, projectID, userID, role)
	if err != nil {
		return false, fmt.Errorf("failed to ensure membership: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Role returns the user's role in the project, or nil if they are not a member.
func (r *MembershipRepository) Role(ctx context.Context, projectID, userID int64) (*models.MemberRole, error) {
	var role models.MemberRole
	err := r.db.GetContext(ctx, &role,
		`SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &role, nil
}

// MarkRead stamps last_read_at for the member and returns the new value.
// It returns nil if the user is not a member.
func (r *MembershipRepository) MarkRead(ctx context.Context, projectID, userID int64) (*time.Time, error) {
	var readAt time.Time
	err := r.db.GetContext(ctx, &readAt, `
		UPDATE project_members
		SET last_read_at = now()
		WHERE project_id = $1 AND user_id = $2
		RETURNING last_read_at
	`, projectID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark project read: %w", err)
	}
	return &readAt, nil
}

// UnreadCount counts non-deleted messages from other senders newer than the
// member's last_read_at. It returns 0 for non-members.
func (r *MembershipRepository) UnreadCount(ctx context.Context, projectID, userID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN project_members pm ON pm.project_id = m.project_id AND pm.user_id = $2
		WHERE m.project_id = $1
		  AND m.deleted = false
		  AND (m.sender_id IS NULL OR m.sender_id <> $2)
		  AND (pm.last_read_at IS NULL OR m.created_at > pm.last_read_at)
	`

	var n int64
	if err := r.db.GetContext(ctx, &n, query, projectID, userID); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

// List returns the project's members, owner first then by join time.
func (r *MembershipRepository) List(ctx context.Context, projectID int64) ([]models.ProjectMemberWithUser, error) {
	query := `
		SELECT pm.project_id, pm.user_id, pm.role, pm.joined_at, pm.last_read_at, u.username
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1
		ORDER BY (pm.role = 'owner') DESC, pm.joined_at ASC
	`

	members := []models.ProjectMemberWithUser{}
	if err := r.db.SelectContext(ctx, &members, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}
