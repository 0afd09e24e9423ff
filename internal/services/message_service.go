package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/projecthub/projecthub/internal/db/models"
	"github.com/projecthub/projecthub/internal/db/repositories"
	"github.com/projecthub/projecthub/internal/telemetry"
)

// MessageLimits bound message input and history paging.
type MessageLimits struct {
	MaxContentLength int
	MaxMetadataBytes int
	DefaultPageSize  int
	MaxPageSize      int
}

// DefaultMessageLimits mirrors the chat config defaults.
var DefaultMessageLimits = MessageLimits{
	MaxContentLength: 5000,
	MaxMetadataBytes: 16384,
	DefaultPageSize:  50,
	MaxPageSize:      200,
}

var emptyMetadata = json.RawMessage(`{}`)

// MessageService persists chat messages and fans them out to the project's
// room once the write has committed. Membership is checked on every call.
type MessageService struct {
	members   MembershipStore
	messages  MessageStore
	publisher Publisher
	limits    MessageLimits
}

// NewMessageService creates a new MessageService.
func NewMessageService(members MembershipStore, messages MessageStore, publisher Publisher, limits MessageLimits) *MessageService {
	return &MessageService{
		members:   members,
		messages:  messages,
		publisher: publisher,
		limits:    limits,
	}
}

// Send validates and stores a message from senderID, then publishes
// EventNewMessage to the room. The returned message is the committed row; if
// the transaction fails nothing is published.
func (s *MessageService) Send(ctx context.Context, projectID, senderID int64, content string, metadata json.RawMessage) (*models.Message, error) {
	content, err := s.validContent(content)
	if err != nil {
		return nil, err
	}
	metadata, err = s.validMetadata(metadata)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, projectID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(ctx, projectID, senderID, content, metadata)
	if errors.Is(err, repositories.ErrProjectGone) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("send message", err)
	}
	telemetry.ChatMessagesSentTotal.Inc()

	s.publisher.Publish(ctx, projectID, EventNewMessage, msg)
	return msg, nil
}

// Fetch returns up to limit non-deleted messages created strictly before
// before (or the newest when nil), newest first. A non-positive limit selects
// the default page size; larger limits are clamped to the maximum.
func (s *MessageService) Fetch(ctx context.Context, projectID, callerID int64, limit int, before *time.Time) ([]models.Message, error) {
	if err := s.requireMember(ctx, projectID, callerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.limits.DefaultPageSize
	}
	if limit > s.limits.MaxPageSize {
		limit = s.limits.MaxPageSize
	}

	messages, err := s.messages.ListBefore(ctx, projectID, before, limit)
	if err != nil {
		return nil, unavailable("fetch messages", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// Edit replaces the content of a message. Only the sender may edit, and
// deleted messages cannot be edited.
func (s *MessageService) Edit(ctx context.Context, messageID, callerID int64, content string) (*models.Message, error) {
	content, err := s.validContent(content)
	if err != nil {
		return nil, err
	}
	msg, err := s.messages.Edit(ctx, messageID, callerID, content)
	if err != nil {
		return nil, unavailable("edit message", err)
	}
	if msg == nil {
		return nil, ErrForbidden
	}

	s.publisher.Publish(ctx, msg.ProjectID, EventMessageEdited, msg)
	return msg, nil
}

// Delete soft-deletes a message. The sender or the project owner may delete.
func (s *MessageService) Delete(ctx context.Context, messageID, callerID int64) error {
	projectID, ok, err := s.messages.SoftDelete(ctx, messageID, callerID)
	if err != nil {
		return unavailable("delete message", err)
	}
	if !ok {
		return ErrForbidden
	}

	s.publisher.Publish(ctx, projectID, EventMessageDeleted, DeletedMessage{ID: messageID, ProjectID: projectID})
	return nil
}

// MarkRead records that the caller has read the project up to now.
func (s *MessageService) MarkRead(ctx context.Context, projectID, callerID int64) (time.Time, error) {
	at, err := s.members.MarkRead(ctx, projectID, callerID)
	if err != nil {
		return time.Time{}, unavailable("mark read", err)
	}
	if at == nil {
		return time.Time{}, ErrForbidden
	}
	return *at, nil
}

// Unread counts messages the caller has not read yet.
func (s *MessageService) Unread(ctx context.Context, projectID, callerID int64) (int64, error) {
	if err := s.requireMember(ctx, projectID, callerID); err != nil {
		return 0, err
	}
	n, err := s.members.UnreadCount(ctx, projectID, callerID)
	if err != nil {
		return 0, unavailable("count unread", err)
	}
	return n, nil
}

// IsMember reports whether userID belongs to projectID.
func (s *MessageService) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	role, err := s.members.Role(ctx, projectID, userID)
	if err != nil {
		return false, unavailable("check membership", err)
	}
	return role != nil, nil
}

func (s *MessageService) requireMember(ctx context.Context, projectID, userID int64) error {
	ok, err := s.IsMember(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *MessageService) validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return "", invalid("content", "message cannot be empty")
	}
	if n > s.limits.MaxContentLength {
		return "", invalid("content", fmt.Sprintf("message exceeds %d characters", s.limits.MaxContentLength))
	}
	return content, nil
}

// validMetadata accepts a JSON object of bounded size. Absent or null metadata
// becomes an empty object.
func (s *MessageService) validMetadata(metadata json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(metadata)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyMetadata, nil
	}
	if len(trimmed) > s.limits.MaxMetadataBytes {
		return nil, invalid("metadata", fmt.Sprintf("metadata exceeds %d bytes", s.limits.MaxMetadataBytes))
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, invalid("metadata", "metadata must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}
