package models

import "time"

// JoinRequestStatus is the state of a join request.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestAccepted JoinRequestStatus = "accepted"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// Terminal reports whether no further transition is possible from s.
func (s JoinRequestStatus) Terminal() bool {
	return s == JoinRequestAccepted || s == JoinRequestRejected
}

// Valid reports whether s is a known status.
func (s JoinRequestStatus) Valid() bool {
	switch s {
	case JoinRequestPending, JoinRequestAccepted, JoinRequestRejected:
		return true
	}
	return false
}

// JoinRequest is a user's request to join a project. At most one row exists
// per (UserID, ProjectID); it is only ever transitioned, never re-created.
type JoinRequest struct {
	ID          int64             `db:"id" json:"id"`
	UserID      int64             `db:"user_id" json:"user_id"`
	ProjectID   int64             `db:"project_id" json:"project_id"`
	Status      JoinRequestStatus `db:"status" json:"status"`
	RequestedAt time.Time         `db:"requested_at" json:"requested_at"`
	DecidedAt   *time.Time        `db:"decided_at" json:"decided_at,omitempty"`
}

// JoinRequestDetail includes the requester's username and the project name for listings.
type JoinRequestDetail struct {
	JoinRequest
	Username    string `db:"username" json:"username"`
	ProjectName string `db:"project_name" json:"project_name"`
}
