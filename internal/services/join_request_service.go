package services

import (
	"context"

	"github.com/projecthub/projecthub/internal/db/models"
	"github.com/projecthub/projecthub/internal/telemetry"
)

// Outcomes of JoinRequestService.Create.
const (
	StatusCreated       = "created"
	StatusAlreadyExists = "already_exists"
)

// JoinRequestService runs the admission workflow: a user asks to join a
// project and the project owner accepts or rejects. Every transition is a
// single guarded write in the store; this service never reads-then-writes.
type JoinRequestService struct {
	projects ProjectStore
	requests JoinRequestStore
}

// NewJoinRequestService creates a new JoinRequestService.
func NewJoinRequestService(projects ProjectStore, requests JoinRequestStore) *JoinRequestService {
	return &JoinRequestService{projects: projects, requests: requests}
}

// CreateResult is the outcome of a join request submission.
type CreateResult struct {
	Status  string
	Request *models.JoinRequest // nil when Status is StatusAlreadyExists
	Stats   *models.UserStats
}

// TransitionResult is the outcome of an accept or reject.
type TransitionResult struct {
	Request        *models.JoinRequest
	OwnerStats     *models.UserStats
	RequesterStats *models.UserStats // set by Accept only
}

// Create submits a join request from userID to projectID. A second submission
// for the same pair, in any state, reports StatusAlreadyExists and mutates
// nothing.
func (s *JoinRequestService) Create(ctx context.Context, userID, projectID int64) (*CreateResult, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, unavailable("create join request", err)
	}
	if project == nil {
		countTransition("create", "invalid")
		return nil, invalid("projectId", "project does not exist")
	}
	if project.OwnerID == userID {
		countTransition("create", "invalid")
		return nil, invalid("projectId", "you already own this project")
	}

	req, created, err := s.requests.CreateIfAbsent(ctx, userID, projectID)
	if err != nil {
		return nil, unavailable("create join request", err)
	}

	result := &CreateResult{Status: StatusAlreadyExists}
	if created {
		result.Status = StatusCreated
		result.Request = req
	}
	countTransition("create", result.Status)

	result.Stats, err = s.requests.UserStats(ctx, userID)
	if err != nil {
		return nil, unavailable("load user stats", err)
	}
	return result, nil
}

// Accept moves a pending request to accepted and adds the requester as a
// member. Any guard failure (no such request, not pending, caller is not the
// owner) yields ErrForbidden.
func (s *JoinRequestService) Accept(ctx context.Context, requestID, callerID int64) (*TransitionResult, error) {
	req, err := s.requests.Accept(ctx, requestID, callerID)
	if err != nil {
		return nil, unavailable("accept join request", err)
	}
	if req == nil {
		countTransition("accept", "forbidden")
		return nil, ErrForbidden
	}
	countTransition("accept", string(models.JoinRequestAccepted))

	ownerStats, err := s.requests.UserStats(ctx, callerID)
	if err != nil {
		return nil, unavailable("load owner stats", err)
	}
	requesterStats, err := s.requests.UserStats(ctx, req.UserID)
	if err != nil {
		return nil, unavailable("load requester stats", err)
	}
	return &TransitionResult{Request: req, OwnerStats: ownerStats, RequesterStats: requesterStats}, nil
}

// Reject moves a pending request to rejected. Guard failures yield ErrForbidden.
func (s *JoinRequestService) Reject(ctx context.Context, requestID, callerID int64) (*TransitionResult, error) {
	req, err := s.requests.Reject(ctx, requestID, callerID)
	if err != nil {
		return nil, unavailable("reject join request", err)
	}
	if req == nil {
		countTransition("reject", "forbidden")
		return nil, ErrForbidden
	}
	countTransition("reject", string(models.JoinRequestRejected))

	ownerStats, err := s.requests.UserStats(ctx, callerID)
	if err != nil {
		return nil, unavailable("load owner stats", err)
	}
	return &TransitionResult{Request: req, OwnerStats: ownerStats}, nil
}

// ListForProject returns a project's requests, optionally filtered by status,
// with the project's counters. Only the owner may list.
func (s *JoinRequestService) ListForProject(ctx context.Context, projectID, callerID int64, status *models.JoinRequestStatus) ([]models.JoinRequestDetail, *models.ProjectStats, error) {
	if status != nil && !status.Valid() {
		return nil, nil, invalid("status", "must be one of pending, accepted, rejected")
	}
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, nil, unavailable("list join requests", err)
	}
	if project == nil {
		return nil, nil, ErrNotFound
	}
	if project.OwnerID != callerID {
		return nil, nil, ErrForbidden
	}

	requests, err := s.requests.ListByProject(ctx, projectID, status)
	if err != nil {
		return nil, nil, unavailable("list join requests", err)
	}
	stats, err := s.requests.ProjectStats(ctx, projectID)
	if err != nil {
		return nil, nil, unavailable("load project stats", err)
	}
	return requests, stats, nil
}

// ListMine returns the caller's own requests.
func (s *JoinRequestService) ListMine(ctx context.Context, userID int64) ([]models.JoinRequestDetail, error) {
	requests, err := s.requests.ListByUser(ctx, userID)
	if err != nil {
		return nil, unavailable("list join requests", err)
	}
	return requests, nil
}

// Stats returns the caller's counters.
func (s *JoinRequestService) Stats(ctx context.Context, userID int64) (*models.UserStats, error) {
	stats, err := s.requests.UserStats(ctx, userID)
	if err != nil {
		return nil, unavailable("load user stats", err)
	}
	return stats, nil
}

func countTransition(action, outcome string) {
	telemetry.JoinRequestTransitionsTotal.WithLabelValues(action, outcome).Inc()
}
