package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/projecthub/projecthub/internal/services"
)

// MessageHandler serves chat history, read markers, edits and deletes. New
// messages arrive over the websocket.
type MessageHandler struct {
	messages *services.MessageService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// EditMessageRequest is the body of PATCH /messages/:id.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// @Summary      List messages
// @Description  Returns up to limit non-deleted messages, newest first. Pass the oldest created_at seen as before to page back.
// @Tags         Messages
// @Security     Bearer
// @Produce      json
// @Param        id      path   int     true   "Project ID"
// @Param        limit   query  int     false  "Page size (default 50, max 200)"
// @Param        before  query  string  false  "RFC3339 timestamp; only older messages are returned"
// @Success      200  {object}  map[string]interface{}  "messages: newest first"
// @Failure      400  {object}  map[string]interface{}  "Bad limit or before"
// @Failure      403  {object}  map[string]interface{}  "Not a member"
// @Router       /api/v1/projects/{id}/messages [get]
// List handles GET /projects/:id/messages
func (h *MessageHandler) List(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer", "field": "limit"})
			return
		}
		limit = n
	}

	var before *time.Time
	if s := c.Query("before"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before must be an RFC3339 timestamp", "field": "before"})
			return
		}
		before = &t
	}

	messages, err := h.messages.Fetch(c.Request.Context(), projectID, userID, limit, before)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// MarkRead handles POST /projects/:id/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	at, err := h.messages.MarkRead(c.Request.Context(), projectID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_read_at": at})
}

// Unread handles GET /projects/:id/unread
func (h *MessageHandler) Unread(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	n, err := h.messages.Unread(c.Request.Context(), projectID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

// @Summary      Edit message
// @Description  Replaces the content of the caller's own message and notifies the room.
// @Tags         Messages
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                 true  "Message ID"
// @Param        body  body  EditMessageRequest  true  "New content"
// @Success      200  {object}  models.Message
// @Failure      400  {object}  map[string]interface{}  "Invalid content"
// @Failure      403  {object}  map[string]interface{}  "Not the sender or message deleted"
// @Router       /api/v1/messages/{id} [patch]
// Edit handles PATCH /messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.messages.Edit(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.messages.Delete(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
