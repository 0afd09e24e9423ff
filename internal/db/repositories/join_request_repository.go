package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/projecthub/projecthub/internal/db/models"
)

const joinRequestColumns = `id, user_id, project_id, status, requested_at, decided_at`

// JoinRequestRepository persists the join request state machine. Every write
// is a single conditional statement; the database serializes concurrent
// writers on the same row and at most one of them matches.
type JoinRequestRepository struct {
	db *sqlx.DB
}

// NewJoinRequestRepository creates a new JoinRequestRepository
func NewJoinRequestRepository(db *sqlx.DB) *JoinRequestRepository {
	return &JoinRequestRepository{db: db}
}

// CreateIfAbsent inserts a pending request for (userID, projectID) unless a row
// already exists or the user owns the project. created is true only for the
// caller whose insert took effect.
func (r *JoinRequestRepository) CreateIfAbsent(ctx context.Context, userID, projectID int64) (req *models.JoinRequest, created bool, err error) {
	query := `
		INSERT INTO join_requests (user_id, project_id, status)
		SELECT $1, p.id, 'pending'
		FROM projects p
		WHERE p.id = $2 AND p.owner_id <> $1
		ON CONFLICT (user_id, project_id) DO NOTHING
		RETURNING ` + joinRequestColumns

	var jr models.JoinRequest
	err = r.db.GetContext(ctx, &jr, query, userID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create join request: %w", err)
	}
	return &jr, true, nil
}

// transitionQuery moves a pending request to a terminal status, but only when
// the caller owns the request's project.
const transitionQuery = `
	UPDATE join_requests jr
	SET status = $3, decided_at = now()
	FROM projects p
	WHERE jr.id = $1
	  AND jr.project_id = p.id
	  AND p.owner_id = $2
	  AND jr.status = 'pending'
	RETURNING jr.id, jr.user_id, jr.project_id, jr.status, jr.requested_at, jr.decided_at
`

// Accept transitions a pending request to accepted and adds the requester as a
// member, in one transaction. It returns nil when the guard does not match
// (request absent, not pending, or caller not the owner).
func (r *JoinRequestRepository) Accept(ctx context.Context, requestID, ownerID int64) (*models.JoinRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var jr models.JoinRequest
	err = tx.GetContext(ctx, &jr, transitionQuery, requestID, ownerID, models.JoinRequestAccepted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to accept join request: %w", err)
	}

	if _, err := ensureMember(ctx, tx, jr.ProjectID, jr.UserID, models.RoleMember); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit join request acceptance: %w", err)
	}
	return &jr, nil
}

// Reject transitions a pending request to rejected. It returns nil when the
// guard does not match.
func (r *JoinRequestRepository) Reject(ctx context.Context, requestID, ownerID int64) (*models.JoinRequest, error) {
	var jr models.JoinRequest
	err := r.db.GetContext(ctx, &jr, transitionQuery, requestID, ownerID, models.JoinRequestRejected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reject join request: %w", err)
	}
	return &jr, nil
}

// ListByProject returns the project's requests, newest first, optionally
// filtered by status.
func (r *JoinRequestRepository) ListByProject(ctx context.Context, projectID int64, status *models.JoinRequestStatus) ([]models.JoinRequestDetail, error) {
	query := `
		SELECT jr.id, jr.user_id, jr.project_id, jr.status, jr.requested_at, jr.decided_at,
		       u.username, p.name AS project_name
		FROM join_requests jr
		JOIN users u ON u.id = jr.user_id
		JOIN projects p ON p.id = jr.project_id
		WHERE jr.project_id = $1
		  AND ($2::text IS NULL OR jr.status = $2)
		ORDER BY jr.requested_at DESC, jr.id DESC
	`

	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	requests := []models.JoinRequestDetail{}
	if err := r.db.SelectContext(ctx, &requests, query, projectID, statusArg); err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	return requests, nil
}

// ListByUser returns the user's own requests, newest first.
func (r *JoinRequestRepository) ListByUser(ctx context.Context, userID int64) ([]models.JoinRequestDetail, error) {
	query := `
		SELECT jr.id, jr.user_id, jr.project_id, jr.status, jr.requested_at, jr.decided_at,
		       u.username, p.name AS project_name
		FROM join_requests jr
		JOIN users u ON u.id = jr.user_id
		JOIN projects p ON p.id = jr.project_id
		WHERE jr.user_id = $1
		ORDER BY jr.requested_at DESC, jr.id DESC
	`

	requests := []models.JoinRequestDetail{}
	if err := r.db.SelectContext(ctx, &requests, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list join requests for user: %w", err)
	}
	return requests, nil
}

// UserStats recomputes the user's join request counters from current rows.
func (r *JoinRequestRepository) UserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM join_requests WHERE user_id = $1) AS requests_sent,
			(SELECT COUNT(*) FROM join_requests WHERE user_id = $1 AND status = 'pending') AS pending_outgoing,
			(SELECT COUNT(*) FROM project_members WHERE user_id = $1 AND role = 'member') AS projects_joined,
			(SELECT COUNT(*) FROM join_requests jr JOIN projects p ON p.id = jr.project_id
			  WHERE p.owner_id = $1 AND jr.status = 'pending') AS pending_incoming,
			(SELECT COUNT(*) FROM join_requests jr JOIN projects p ON p.id = jr.project_id
			  WHERE p.owner_id = $1 AND jr.status = 'accepted') AS accepted_incoming
	`

	var stats models.UserStats
	if err := r.db.GetContext(ctx, &stats, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return &stats, nil
}

// ProjectStats recomputes the project's join request and membership counters.
func (r *JoinRequestRepository) ProjectStats(ctx context.Context, projectID int64) (*models.ProjectStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'accepted') AS accepted,
			COUNT(*) FILTER (WHERE status = 'rejected') AS rejected,
			(SELECT COUNT(*) FROM project_members WHERE project_id = $1) AS members
		FROM join_requests
		WHERE project_id = $1
	`

	var stats models.ProjectStats
	if err := r.db.GetContext(ctx, &stats, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to get project stats: %w", err)
	}
	return &stats, nil
}
