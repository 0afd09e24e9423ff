package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/projecthub/projecthub/internal/auth"
	"github.com/projecthub/projecthub/internal/config"
	"github.com/projecthub/projecthub/internal/db/models"
	"github.com/projecthub/projecthub/internal/safego"
	"github.com/projecthub/projecthub/internal/services"
)

// Options are the websocket transport limits.
type Options struct {
	SendBuffer        int
	PingInterval      time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
	MaxFrameBytes     int64
	MessagesPerSecond float64
	MessageBurst      int
	AllowedOrigins    []string
}

// OptionsFromConfig maps the chat config section onto Options.
func OptionsFromConfig(cfg config.ChatConfig) Options {
	return Options{
		SendBuffer:        cfg.SendBuffer,
		PingInterval:      cfg.PingInterval,
		PongWait:          cfg.PongWait,
		WriteWait:         cfg.WriteWait,
		MaxFrameBytes:     cfg.MaxFrameBytes,
		MessagesPerSecond: cfg.MessagesPerSecond,
		MessageBurst:      cfg.MessageBurst,
		AllowedOrigins:    cfg.AllowedOrigins,
	}
}

// UserLookup confirms that a verified identity still exists.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// MessageSender persists a message and fans it out.
type MessageSender interface {
	Send(ctx context.Context, projectID, senderID int64, content string, metadata json.RawMessage) (*models.Message, error)
}

// Server upgrades authenticated HTTP requests to websocket connections and
// dispatches their frames.
type Server struct {
	hub      *Hub
	fanout   *Fanout
	verifier auth.Verifier
	users    UserLookup
	messages MessageSender
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer creates a websocket Server.
func NewServer(hub *Hub, fanout *Fanout, verifier auth.Verifier, users UserLookup, messages MessageSender, opts Options) *Server {
	s := &Server{
		hub:      hub,
		fanout:   fanout,
		verifier: verifier,
		users:    users,
		messages: messages,
		opts:     opts,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// tokenFromRequest takes the credential from the token query parameter or a
// bearer Authorization header.
func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if t, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return t
	}
	return ""
}

// ServeHTTP authenticates the handshake, upgrades, and runs the connection
// until it closes. Unauthenticated requests get 401 before any upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	id, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	user, err := s.users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		slog.Error("websocket handshake user lookup failed", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if user == nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, user.ID, user.Username, s.opts)
	if !s.hub.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}
	slog.Info("websocket connected", "conn_id", c.id, "user_id", c.userID)

	safego.Go("ws-write-"+c.id, func() { c.writePump(s.opts) })
	defer func() {
		s.hub.Disconnect(c)
		slog.Info("websocket disconnected", "conn_id", c.id, "user_id", c.userID)
	}()

	ctx := context.WithoutCancel(r.Context())
	c.readPump(s.opts, func(f Frame) { s.dispatch(ctx, c, f) })
}

func (s *Server) dispatch(ctx context.Context, c *Client, f Frame) {
	switch f.Event {
	case EventJoinProject:
		s.handleJoin(ctx, c, f)
	case EventLeaveProject:
		s.handleLeave(c, f)
	case EventSendMessage:
		s.handleSend(ctx, c, f)
	case EventTyping:
		s.handleTyping(ctx, c, f)
	default:
		s.ack(c, f.AckID, Ack{OK: false, Error: "unknown event"})
	}
}

func (s *Server) handleJoin(ctx context.Context, c *Client, f Frame) {
	var ref projectRef
	if err := json.Unmarshal(f.Data, &ref); err != nil || ref.ProjectID <= 0 {
		s.ack(c, f.AckID, Ack{OK: false, Message: "projectId is required"})
		return
	}
	err := s.hub.Join(ctx, c, ref.ProjectID)
	switch {
	case err == nil:
		s.ack(c, f.AckID, Ack{OK: true})
	case errors.Is(err, services.ErrForbidden):
		s.ack(c, f.AckID, Ack{OK: false, Message: "not a member of this project"})
	case errors.Is(err, ErrConnectionClosed):
		s.ack(c, f.AckID, Ack{OK: false, Message: "connection closed"})
	default:
		slog.Error("room join failed", "conn_id", c.id, "project_id", ref.ProjectID, "error", err)
		s.ack(c, f.AckID, Ack{OK: false, Message: "service unavailable"})
	}
}

func (s *Server) handleLeave(c *Client, f Frame) {
	var ref projectRef
	if err := json.Unmarshal(f.Data, &ref); err == nil {
		s.hub.Leave(c, ref.ProjectID)
	}
	s.ack(c, f.AckID, Ack{OK: true})
}

func (s *Server) handleSend(ctx context.Context, c *Client, f Frame) {
	if !c.limiter.Allow() {
		s.ack(c, f.AckID, Ack{OK: false, Error: "rate limit exceeded"})
		return
	}
	var in sendMessageData
	if err := json.Unmarshal(f.Data, &in); err != nil || in.ProjectID <= 0 {
		s.ack(c, f.AckID, Ack{OK: false, Error: "projectId is required"})
		return
	}
	msg, err := s.messages.Send(ctx, in.ProjectID, c.userID, in.Content, in.Metadata)
	if err != nil {
		s.ack(c, f.AckID, Ack{OK: false, Error: errorText(err)})
		if errors.Is(err, services.ErrUnavailable) {
			slog.Error("send message failed", "conn_id", c.id, "project_id", in.ProjectID, "error", err)
		}
		return
	}
	s.ack(c, f.AckID, Ack{OK: true, Message: msg})
}

// handleTyping relays a typing indicator to the sender's room peers. Only
// connections already in the room may signal; nothing is stored or acked.
func (s *Server) handleTyping(ctx context.Context, c *Client, f Frame) {
	var in typingData
	if err := json.Unmarshal(f.Data, &in); err != nil {
		return
	}
	if !s.hub.InRoom(c, in.ProjectID) {
		return
	}
	s.fanout.publish(ctx, in.ProjectID, EventTyping, TypingEvent{
		ProjectID: in.ProjectID,
		UserID:    c.userID,
		Username:  c.username,
		IsTyping:  in.IsTyping,
	}, c.id)
}

func (s *Server) ack(c *Client, ackID string, a Ack) {
	if ackID == "" {
		return
	}
	frame, err := encodeFrame(EventAck, ackID, a)
	if err != nil {
		slog.Error("failed to encode ack", "conn_id", c.id, "error", err)
		return
	}
	if !s.hub.sendTo(c, frame) {
		slog.Debug("ack dropped", "conn_id", c.id, "ack_id", ackID)
	}
}

// errorText renders a service error for a client. Storage details stay in
// the logs.
func errorText(err error) string {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, services.ErrNotFound):
		return "project not found"
	default:
		return "service unavailable"
	}
}
