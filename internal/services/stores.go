package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/projecthub/projecthub/internal/db/models"
)

// The store interfaces below are satisfied by the repositories in
// internal/db/repositories.

// ProjectStore reads and bootstraps projects.
type ProjectStore interface {
	Create(ctx context.Context, name string, ownerID int64) (*models.Project, error)
	GetByID(ctx context.Context, id int64) (*models.Project, error)
	ListForMember(ctx context.Context, userID int64) ([]models.Project, error)
}

// MembershipStore is the sole authority on who belongs to a project.
type MembershipStore interface {
	Role(ctx context.Context, projectID, userID int64) (*models.MemberRole, error)
	MarkRead(ctx context.Context, projectID, userID int64) (*time.Time, error)
	UnreadCount(ctx context.Context, projectID, userID int64) (int64, error)
	List(ctx context.Context, projectID int64) ([]models.ProjectMemberWithUser, error)
}

// JoinRequestStore persists the admission state machine using guarded writes.
type JoinRequestStore interface {
	CreateIfAbsent(ctx context.Context, userID, projectID int64) (*models.JoinRequest, bool, error)
	Accept(ctx context.Context, requestID, ownerID int64) (*models.JoinRequest, error)
	Reject(ctx context.Context, requestID, ownerID int64) (*models.JoinRequest, error)
	ListByProject(ctx context.Context, projectID int64, status *models.JoinRequestStatus) ([]models.JoinRequestDetail, error)
	ListByUser(ctx context.Context, userID int64) ([]models.JoinRequestDetail, error)
	UserStats(ctx context.Context, userID int64) (*models.UserStats, error)
	ProjectStats(ctx context.Context, projectID int64) (*models.ProjectStats, error)
}

// MessageStore persists messages and the project preview pointer.
type MessageStore interface {
	Create(ctx context.Context, projectID, senderID int64, content string, metadata json.RawMessage) (*models.Message, error)
	ListBefore(ctx context.Context, projectID int64, before *time.Time, limit int) ([]models.Message, error)
	Edit(ctx context.Context, id, senderID int64, content string) (*models.Message, error)
	SoftDelete(ctx context.Context, id, callerID int64) (int64, bool, error)
}
