package realtime

import (
	"encoding/json"

	"github.com/projecthub/projecthub/internal/services"
)

// Client-to-server events.
const (
	EventJoinProject  = "joinProject"
	EventLeaveProject = "leaveProject"
	EventSendMessage  = "sendMessage"
	EventTyping       = "typing"
)

// Server-to-client events. typing is relayed under the same name.
const (
	EventAck            = "ack"
	EventNewMessage     = services.EventNewMessage
	EventMessageEdited  = services.EventMessageEdited
	EventMessageDeleted = services.EventMessageDeleted
)

// Frame is the JSON text frame exchanged in both directions. Clients set
// AckID on requests that expect an acknowledgement; the server echoes it on
// the matching ack frame.
type Frame struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack is the payload of an ack frame. Message carries the persisted message
// for sendMessage, or a human-readable reason when a join is refused.
type Ack struct {
	OK      bool        `json:"ok"`
	Message interface{} `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type projectRef struct {
	ProjectID int64 `json:"projectId"`
}

type sendMessageData struct {
	ProjectID int64           `json:"projectId"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata"`
}

type typingData struct {
	ProjectID int64 `json:"projectId"`
	IsTyping  bool  `json:"isTyping"`
}

// TypingEvent is relayed to the other connections in a room.
type TypingEvent struct {
	ProjectID int64  `json:"projectId"`
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	IsTyping  bool   `json:"isTyping"`
}

// encodeFrame renders a server frame. data may already be encoded.
func encodeFrame(event, ackID string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	switch d := data.(type) {
	case nil:
	case json.RawMessage:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, AckID: ackID, Data: raw})
}
