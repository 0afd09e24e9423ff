package models

// UserStats are per-user join request counters, recomputed from rows on every read.
type UserStats struct {
	// RequestsSent is every join request the user has made, in any state.
	RequestsSent int64 `db:"requests_sent" json:"requests_sent"`
	// PendingOutgoing is the user's requests still awaiting a decision.
	PendingOutgoing int64 `db:"pending_outgoing" json:"pending_outgoing"`
	// ProjectsJoined counts projects where the user is a non-owner member.
	ProjectsJoined int64 `db:"projects_joined" json:"projects_joined"`
	// PendingIncoming is requests awaiting the user's decision on projects they own.
	PendingIncoming int64 `db:"pending_incoming" json:"pending_incoming"`
	// AcceptedIncoming is requests the user has accepted on projects they own.
	AcceptedIncoming int64 `db:"accepted_incoming" json:"accepted_incoming"`
}

// ProjectStats are per-project join request and membership counters.
type ProjectStats struct {
	Pending  int64 `db:"pending" json:"pending"`
	Accepted int64 `db:"accepted" json:"accepted"`
	Rejected int64 `db:"rejected" json:"rejected"`
	Members  int64 `db:"members" json:"members"`
}
