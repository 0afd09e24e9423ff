package services

import "context"

// Server-pushed room events produced by the message service.
const (
	EventNewMessage     = "newMessage"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
)

// Publisher fans an event out to the connections in a project's room. It is
// best effort: implementations log and count failures and never report them
// to the caller.
type Publisher interface {
	Publish(ctx context.Context, projectID int64, event string, data interface{})
}

// DeletedMessage is the payload of EventMessageDeleted.
type DeletedMessage struct {
	ID        int64 `json:"id"`
	ProjectID int64 `json:"project_id"`
}
