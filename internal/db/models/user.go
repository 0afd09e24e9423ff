// Package models defines the row types shared by repositories, services and handlers.
package models

import "time"

// User represents an account known to projecthub. Credentials live with the
// external token issuer; only the id and username are stored here.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
