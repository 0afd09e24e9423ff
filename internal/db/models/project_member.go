package models

import "time"

// MemberRole is a member's role within a project.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

// ProjectMember is one row of the append-only membership relation.
type ProjectMember struct {
	ProjectID  int64      `db:"project_id" json:"project_id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	Role       MemberRole `db:"role" json:"role"`
	JoinedAt   time.Time  `db:"joined_at" json:"joined_at"`
	LastReadAt *time.Time `db:"last_read_at" json:"last_read_at"`
}

// ProjectMemberWithUser includes the member's username for display
type ProjectMemberWithUser struct {
	ProjectMember
	Username string `db:"username" json:"username"`
}
