package models

import (
	"encoding/json"
	"time"
)

// Message is a persisted chat message. Only Content/EditedAt (edit) and
// Deleted (soft delete) change after insert.
type Message struct {
	ID             int64           `db:"id" json:"id"`
	ProjectID      int64           `db:"project_id" json:"project_id"`
	SenderID       *int64          `db:"sender_id" json:"sender_id"`
	SenderUsername *string         `db:"sender_username" json:"sender_username"`
	Content        string          `db:"content" json:"content"`
	Metadata       json.RawMessage `db:"metadata" json:"metadata"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	EditedAt       *time.Time      `db:"edited_at" json:"edited_at,omitempty"`
	Deleted        bool            `db:"deleted" json:"-"`
}
