package models

import "time"

// Project is owned by exactly one user. LastMessageAt and LastMessageID are a
// denormalized preview written only by the message repository.
type Project struct {
	ID            int64      `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	OwnerID       int64      `db:"owner_id" json:"owner_id"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at"`
	LastMessageID *int64     `db:"last_message_id" json:"last_message_id"`
}
