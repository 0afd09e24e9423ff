package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/projecthub/projecthub/internal/db/models"
)

const maxProjectNameLength = 200

// ProjectService bootstraps projects and serves member-only project views.
type ProjectService struct {
	projects ProjectStore
	members  MembershipStore
}

// NewProjectService creates a new ProjectService.
func NewProjectService(projects ProjectStore, members MembershipStore) *ProjectService {
	return &ProjectService{projects: projects, members: members}
}

// Create makes a project owned by ownerID together with its owner membership.
func (s *ProjectService) Create(ctx context.Context, ownerID int64, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "project name is required")
	}
	if utf8.RuneCountInString(name) > maxProjectNameLength {
		return nil, invalid("name", "project name is too long")
	}
	project, err := s.projects.Create(ctx, name, ownerID)
	if err != nil {
		return nil, unavailable("create project", err)
	}
	return project, nil
}

// Get returns a project the caller belongs to.
func (s *ProjectService) Get(ctx context.Context, projectID, callerID int64) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, unavailable("get project", err)
	}
	if project == nil {
		return nil, ErrNotFound
	}
	ok, err := s.IsMember(ctx, projectID, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return project, nil
}

// IsMember reports whether userID belongs to projectID. The realtime hub
// authorizes room joins with it.
func (s *ProjectService) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	role, err := s.members.Role(ctx, projectID, userID)
	if err != nil {
		return false, unavailable("check membership", err)
	}
	return role != nil, nil
}

// ListMine returns the projects the caller belongs to.
func (s *ProjectService) ListMine(ctx context.Context, userID int64) ([]models.Project, error) {
	projects, err := s.projects.ListForMember(ctx, userID)
	if err != nil {
		return nil, unavailable("list projects", err)
	}
	return projects, nil
}

// Members lists a project's members. Only members may list.
func (s *ProjectService) Members(ctx context.Context, projectID, callerID int64) ([]models.ProjectMemberWithUser, error) {
	if _, err := s.Get(ctx, projectID, callerID); err != nil {
		return nil, err
	}
	members, err := s.members.List(ctx, projectID)
	if err != nil {
		return nil, unavailable("list members", err)
	}
	return members, nil
}
