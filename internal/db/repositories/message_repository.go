package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/projecthub/projecthub/internal/db/models"
)

// ErrProjectGone is returned by MessageRepository.Create when the project row
// disappeared between the membership check and the preview update.
var ErrProjectGone = errors.New("project no longer exists")

// MessageRepository handles chat message persistence.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message and moves the project's preview pointer to it in a
// single transaction. The returned message carries the server-assigned id and
// created_at along with the sender's username. Nothing is visible to readers
// unless the whole transaction commits.
func (r *MessageRepository) Create(ctx context.Context, projectID, senderID int64, content string, metadata json.RawMessage) (*models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var msg models.Message
	err = tx.GetContext(ctx, &msg, `
		WITH ins AS (
			INSERT INTO messages (project_id, sender_id, content, metadata)
			VALUES ($1, $2, $3, $4::jsonb)
			RETURNING id, project_id, sender_id, content, metadata, created_at, edited_at, deleted
		)
		SELECT ins.id, ins.project_id, ins.sender_id, u.username AS sender_username,
		       ins.content, ins.metadata, ins.created_at, ins.edited_at, ins.deleted
		FROM ins
		LEFT JOIN users u ON u.id = ins.sender_id
	`, projectID, senderID, content, string(metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	// The pointer only moves forward: a send that commits after a newer one
	// leaves it alone. The row still matches, so zero rows means the project
	// is gone.
	result, err := tx.ExecContext(ctx, `
		UPDATE projects
		SET last_message_at = CASE WHEN last_message_at IS NULL OR last_message_at <= $2
		                           THEN $2 ELSE last_message_at END,
		    last_message_id = CASE WHEN last_message_at IS NULL OR last_message_at <= $2
		                           THEN $3 ELSE last_message_id END
		WHERE id = $1
	`, projectID, msg.CreatedAt, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update project preview: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrProjectGone
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return &msg, nil
}

// ListBefore returns up to limit non-deleted messages of the project, newest
// first. When before is non-nil only messages with created_at strictly older
// than it are returned.
func (r *MessageRepository) ListBefore(ctx context.Context, projectID int64, before *time.Time, limit int) ([]models.Message, error) {
	query := `
		SELECT m.id, m.project_id, m.sender_id, u.username AS sender_username,
		       m.content, m.metadata, m.created_at, m.edited_at, m.deleted
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.project_id = $1
		  AND m.deleted = false
		  AND ($2::timestamptz IS NULL OR m.created_at < $2)
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3
	`

	messages := []models.Message{}
	if err := r.db.SelectContext(ctx, &messages, query, projectID, before, limit); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Edit replaces the content of a live message, but only for its sender.
// It returns nil when the guard does not match.
func (r *MessageRepository) Edit(ctx context.Context, id, senderID int64, content string) (*models.Message, error) {
	query := `
		WITH upd AS (
			UPDATE messages
			SET content = $3, edited_at = now()
			WHERE id = $1 AND sender_id = $2 AND deleted = false
			RETURNING id, project_id, sender_id, content, metadata, created_at, edited_at, deleted
		)
		SELECT upd.id, upd.project_id, upd.sender_id, u.username AS sender_username,
		       upd.content, upd.metadata, upd.created_at, upd.edited_at, upd.deleted
		FROM upd
		LEFT JOIN users u ON u.id = upd.sender_id
	`

	var msg models.Message
	err := r.db.GetContext(ctx, &msg, query, id, senderID, content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to edit message: %w", err)
	}
	return &msg, nil
}

// SoftDelete flags a live message as deleted when the caller is its sender or
// the project's owner. It returns the message's project id, and ok=false when
// the guard does not match.
func (r *MessageRepository) SoftDelete(ctx context.Context, id, callerID int64) (projectID int64, ok bool, err error) {
	query := `
		UPDATE messages m
		SET deleted = true
		FROM projects p
		WHERE m.id = $1
		  AND m.project_id = p.id
		  AND m.deleted = false
		  AND (m.sender_id = $2 OR p.owner_id = $2)
		RETURNING m.project_id
	`

	err = r.db.GetContext(ctx, &projectID, query, id, callerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to delete message: %w", err)
	}
	return projectID, true, nil
}

// CountMessages returns the number of message rows, including soft-deleted ones.
func (r *MessageRepository) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages`); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
