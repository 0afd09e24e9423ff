package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projecthub/projecthub/internal/db/models"
	"github.com/projecthub/projecthub/internal/services"
)

// JoinRequestHandler exposes the join request state machine.
type JoinRequestHandler struct {
	requests *services.JoinRequestService
}

// NewJoinRequestHandler creates a new join request handler
func NewJoinRequestHandler(requests *services.JoinRequestService) *JoinRequestHandler {
	return &JoinRequestHandler{requests: requests}
}

// CreateJoinRequestRequest is the body of POST /join-requests.
type CreateJoinRequestRequest struct {
	ProjectID int64 `json:"projectId" binding:"required,gt=0"`
}

// @Summary      Request to join a project
// @Description  Creates a pending join request. Repeating the call for the same project returns already_exists and changes nothing.
// @Tags         JoinRequests
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateJoinRequestRequest  true  "Target project"
// @Success      201  {object}  map[string]interface{}  "status: created"
// @Success      200  {object}  map[string]interface{}  "status: already_exists"
// @Failure      400  {object}  map[string]interface{}  "Unknown project or caller is the owner"
// @Router       /api/v1/join-requests [post]
// Create handles POST /join-requests
func (h *JoinRequestHandler) Create(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	var req CreateJoinRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "projectId is required", "field": "projectId"})
		return
	}

	result, err := h.requests.Create(c.Request.Context(), userID, req.ProjectID)
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{
		"status":          result.Status,
		"requests_sent":   result.Stats.RequestsSent,
		"projects_joined": result.Stats.ProjectsJoined,
	}
	status := http.StatusOK
	if result.Status == services.StatusCreated {
		status = http.StatusCreated
		body["request"] = result.Request
	}
	c.JSON(status, body)
}

// @Summary      Accept join request
// @Description  Accepts a pending request on a project the caller owns and adds the requester as a member.
// @Tags         JoinRequests
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Join request ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}  "Not the owner, not pending, or no such request"
// @Router       /api/v1/requests/{id}/accept [post]
// Accept handles POST /requests/:id/accept
func (h *JoinRequestHandler) Accept(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.requests.Accept(c.Request.Context(), requestID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"request":         result.Request,
		"owner_stats":     result.OwnerStats,
		"requester_stats": result.RequesterStats,
	})
}

// Reject handles POST /requests/:id/reject
func (h *JoinRequestHandler) Reject(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.requests.Reject(c.Request.Context(), requestID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"request":     result.Request,
		"owner_stats": result.OwnerStats,
	})
}

// ListForProject handles GET /projects/:id/requests?status=
func (h *JoinRequestHandler) ListForProject(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var status *models.JoinRequestStatus
	if s, present := c.GetQuery("status"); present {
		st := models.JoinRequestStatus(s)
		status = &st
	}

	requests, stats, err := h.requests.ListForProject(c.Request.Context(), projectID, userID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "project_stats": stats})
}

// ListMine handles GET /join-requests/mine
func (h *JoinRequestHandler) ListMine(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	requests, err := h.requests.ListMine(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// Stats handles GET /me/stats
func (h *JoinRequestHandler) Stats(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	stats, err := h.requests.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
