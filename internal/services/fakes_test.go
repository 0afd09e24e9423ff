package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/projecthub/projecthub/internal/db/models"
	"github.com/projecthub/projecthub/internal/db/repositories"
)

var errStore = errors.New("connection refused")

type memberKey struct{ project, user int64 }

// memStore is an in-memory stand-in for the repositories. Its guarded writes
// are serialized by one mutex, which is what the unique indexes and
// conditional updates give the real store.
type memStore struct {
	mu       sync.Mutex
	err      error
	projects map[int64]*models.Project
	members  map[memberKey]*models.ProjectMember
	requests map[int64]*models.JoinRequest
	messages []*models.Message
	nextID   int64
	clock    time.Time
}

func newMemStore() *memStore {
	return &memStore{
		projects: map[int64]*models.Project{},
		members:  map[memberKey]*models.ProjectMember{},
		requests: map[int64]*models.JoinRequest{},
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

// addProject creates a project with its owner membership.
func (m *memStore) addProject(name string, ownerID int64) *models.Project {
	p, _ := m.Create(context.Background(), name, ownerID)
	return p
}

func (m *memStore) Create(_ context.Context, name string, ownerID int64) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p := &models.Project{ID: m.id(), Name: name, OwnerID: ownerID, CreatedAt: m.tick()}
	m.projects[p.ID] = p
	m.members[memberKey{p.ID, ownerID}] = &models.ProjectMember{ProjectID: p.ID, UserID: ownerID, Role: models.RoleOwner, JoinedAt: p.CreatedAt}
	return p, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListForMember(_ context.Context, userID int64) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Project
	for k := range m.members {
		if k.user == userID {
			out = append(out, *m.projects[k.project])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Role(_ context.Context, projectID, userID int64) (*models.MemberRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	pm, ok := m.members[memberKey{projectID, userID}]
	if !ok {
		return nil, nil
	}
	role := pm.Role
	return &role, nil
}

func (m *memStore) MarkRead(_ context.Context, projectID, userID int64) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	pm, ok := m.members[memberKey{projectID, userID}]
	if !ok {
		return nil, nil
	}
	at := m.tick()
	pm.LastReadAt = &at
	return &at, nil
}

func (m *memStore) UnreadCount(_ context.Context, projectID, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	pm := m.members[memberKey{projectID, userID}]
	var n int64
	for _, msg := range m.messages {
		if msg.ProjectID != projectID || msg.Deleted {
			continue
		}
		if pm.LastReadAt == nil || msg.CreatedAt.After(*pm.LastReadAt) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) List(_ context.Context, projectID int64) ([]models.ProjectMemberWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ProjectMemberWithUser
	for k, pm := range m.members {
		if k.project == projectID {
			out = append(out, models.ProjectMemberWithUser{ProjectMember: *pm})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memStore) CreateIfAbsent(_ context.Context, userID, projectID int64) (*models.JoinRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	p, ok := m.projects[projectID]
	if !ok || p.OwnerID == userID {
		return nil, false, nil
	}
	for _, jr := range m.requests {
		if jr.UserID == userID && jr.ProjectID == projectID {
			return nil, false, nil
		}
	}
	jr := &models.JoinRequest{ID: m.id(), UserID: userID, ProjectID: projectID, Status: models.JoinRequestPending, RequestedAt: m.tick()}
	m.requests[jr.ID] = jr
	cp := *jr
	return &cp, true, nil
}

func (m *memStore) transition(requestID, ownerID int64, to models.JoinRequestStatus) *models.JoinRequest {
	jr, ok := m.requests[requestID]
	if !ok || jr.Status != models.JoinRequestPending || m.projects[jr.ProjectID].OwnerID != ownerID {
		return nil
	}
	at := m.tick()
	jr.Status = to
	jr.DecidedAt = &at
	cp := *jr
	return &cp
}

func (m *memStore) Accept(_ context.Context, requestID, ownerID int64) (*models.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	jr := m.transition(requestID, ownerID, models.JoinRequestAccepted)
	if jr == nil {
		return nil, nil
	}
	k := memberKey{jr.ProjectID, jr.UserID}
	if _, exists := m.members[k]; !exists {
		m.members[k] = &models.ProjectMember{ProjectID: jr.ProjectID, UserID: jr.UserID, Role: models.RoleMember, JoinedAt: m.tick()}
	}
	return jr, nil
}

func (m *memStore) Reject(_ context.Context, requestID, ownerID int64) (*models.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.transition(requestID, ownerID, models.JoinRequestRejected), nil
}

func (m *memStore) ListByProject(_ context.Context, projectID int64, status *models.JoinRequestStatus) ([]models.JoinRequestDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.JoinRequestDetail
	for _, jr := range m.requests {
		if jr.ProjectID == projectID && (status == nil || jr.Status == *status) {
			out = append(out, models.JoinRequestDetail{JoinRequest: *jr, ProjectName: m.projects[projectID].Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListByUser(_ context.Context, userID int64) ([]models.JoinRequestDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.JoinRequestDetail
	for _, jr := range m.requests {
		if jr.UserID == userID {
			out = append(out, models.JoinRequestDetail{JoinRequest: *jr, ProjectName: m.projects[jr.ProjectID].Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UserStats(_ context.Context, userID int64) (*models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var s models.UserStats
	for _, jr := range m.requests {
		owner := m.projects[jr.ProjectID].OwnerID
		if jr.UserID == userID {
			s.RequestsSent++
			if jr.Status == models.JoinRequestPending {
				s.PendingOutgoing++
			}
		}
		if owner == userID {
			switch jr.Status {
			case models.JoinRequestPending:
				s.PendingIncoming++
			case models.JoinRequestAccepted:
				s.AcceptedIncoming++
			}
		}
	}
	for k, pm := range m.members {
		if k.user == userID && pm.Role == models.RoleMember {
			s.ProjectsJoined++
		}
	}
	return &s, nil
}

func (m *memStore) ProjectStats(_ context.Context, projectID int64) (*models.ProjectStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var s models.ProjectStats
	for _, jr := range m.requests {
		if jr.ProjectID != projectID {
			continue
		}
		switch jr.Status {
		case models.JoinRequestPending:
			s.Pending++
		case models.JoinRequestAccepted:
			s.Accepted++
		case models.JoinRequestRejected:
			s.Rejected++
		}
	}
	for k := range m.members {
		if k.project == projectID {
			s.Members++
		}
	}
	return &s, nil
}

// memMessages implements MessageStore on top of memStore.
type memMessages struct{ *memStore }

func (m memMessages) Create(_ context.Context, projectID, senderID int64, content string, metadata json.RawMessage) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.projects[projectID]
	if !ok {
		return nil, repositories.ErrProjectGone
	}
	sender := senderID
	msg := &models.Message{ID: m.id(), ProjectID: projectID, SenderID: &sender, Content: content, Metadata: metadata, CreatedAt: m.tick()}
	m.messages = append(m.messages, msg)
	p.LastMessageAt = &msg.CreatedAt
	p.LastMessageID = &msg.ID
	cp := *msg
	return &cp, nil
}

func (m memMessages) ListBefore(_ context.Context, projectID int64, before *time.Time, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Message
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := m.messages[i]
		if msg.ProjectID != projectID || msg.Deleted {
			continue
		}
		if before != nil && !msg.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (m memMessages) Edit(_ context.Context, id, senderID int64, content string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, msg := range m.messages {
		if msg.ID == id && !msg.Deleted && msg.SenderID != nil && *msg.SenderID == senderID {
			at := m.tick()
			msg.Content = content
			msg.EditedAt = &at
			cp := *msg
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memMessages) SoftDelete(_ context.Context, id, callerID int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	for _, msg := range m.messages {
		if msg.ID != id || msg.Deleted {
			continue
		}
		isSender := msg.SenderID != nil && *msg.SenderID == callerID
		if !isSender && m.projects[msg.ProjectID].OwnerID != callerID {
			return 0, false, nil
		}
		msg.Deleted = true
		return msg.ProjectID, true, nil
	}
	return 0, false, nil
}

type published struct {
	projectID int64
	event     string
	data      interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, projectID int64, event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{projectID, event, data})
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}
