package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/projecthub/projecthub/internal/db/models"
	"github.com/projecthub/projecthub/internal/db/repositories"
)

// memChat is an in-memory project, membership and message store. It lets the
// websocket tests run the real services.MessageService and
// services.ProjectService.
type memChat struct {
	mu       sync.Mutex
	roles    map[int64]map[int64]models.MemberRole
	messages []models.Message
	nextID   int64
}

func newMemChat() *memChat {
	return &memChat{roles: map[int64]map[int64]models.MemberRole{}}
}

func (m *memChat) addMember(projectID, userID int64, role models.MemberRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles[projectID] == nil {
		m.roles[projectID] = map[int64]models.MemberRole{}
	}
	m.roles[projectID][userID] = role
}

// revoke drops a membership row, standing in for an out-of-band change to
// the membership table.
func (m *memChat) revoke(projectID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles[projectID], userID)
}

func (m *memChat) stored() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message(nil), m.messages...)
}

// ProjectStore

func (m *memChat) Create(_ context.Context, name string, ownerID int64) (*models.Project, error) {
	m.mu.Lock()
	m.nextID++
	p := &models.Project{ID: m.nextID, Name: name, OwnerID: ownerID}
	m.mu.Unlock()
	m.addMember(p.ID, ownerID, models.RoleOwner)
	return p, nil
}

func (m *memChat) GetByID(_ context.Context, id int64) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return nil, nil
	}
	return &models.Project{ID: id}, nil
}

func (m *memChat) ListForMember(context.Context, int64) ([]models.Project, error) {
	return nil, nil
}

// MembershipStore

func (m *memChat) Role(_ context.Context, projectID, userID int64) (*models.MemberRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[projectID][userID]
	if !ok {
		return nil, nil
	}
	return &role, nil
}

func (m *memChat) MarkRead(ctx context.Context, projectID, userID int64) (*time.Time, error) {
	if role, _ := m.Role(ctx, projectID, userID); role == nil {
		return nil, nil
	}
	now := time.Now()
	return &now, nil
}

func (m *memChat) UnreadCount(context.Context, int64, int64) (int64, error) {
	return 0, nil
}

func (m *memChat) List(context.Context, int64) ([]models.ProjectMemberWithUser, error) {
	return nil, nil
}

// MessageStore

func (m *memChat) CreateMessage(projectID, senderID int64, content string, metadata json.RawMessage) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[projectID]; !ok {
		return nil, repositories.ErrProjectGone
	}
	m.nextID++
	sender := senderID
	msg := models.Message{
		ID:        m.nextID,
		ProjectID: projectID,
		SenderID:  &sender,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	for _, u := range testUsers {
		if u.ID == senderID {
			name := u.Username
			msg.SenderUsername = &name
		}
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memChat) ListBefore(_ context.Context, projectID int64, before *time.Time, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Message{}
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := m.messages[i]
		if msg.ProjectID != projectID || msg.Deleted || (before != nil && !msg.CreatedAt.Before(*before)) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (m *memChat) Edit(context.Context, int64, int64, string) (*models.Message, error) {
	return nil, nil
}

func (m *memChat) SoftDelete(context.Context, int64, int64) (int64, bool, error) {
	return 0, false, nil
}

// memMessages adapts memChat to services.MessageStore, whose Create collides
// with services.ProjectStore's.
type memMessages struct{ *memChat }

func (m memMessages) Create(_ context.Context, projectID, senderID int64, content string, metadata json.RawMessage) (*models.Message, error) {
	return m.CreateMessage(projectID, senderID, content, metadata)
}
