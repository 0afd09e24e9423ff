package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projecthub/projecthub/internal/services"
)

// ProjectHandler serves project bootstrap and member-only project views.
type ProjectHandler struct {
	projects *services.ProjectService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

// @Summary      Create project
// @Description  Creates a project owned by the caller together with the owner membership.
// @Tags         Projects
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateProjectRequest  true  "Project"
// @Success      201  {object}  models.Project
// @Failure      400  {object}  map[string]interface{}  "Invalid name"
// @Router       /api/v1/projects [post]
// Create handles POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required", "field": "name"})
		return
	}

	project, err := h.projects.Create(c.Request.Context(), userID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// List handles GET /projects
func (h *ProjectHandler) List(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	projects, err := h.projects.ListMine(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// @Summary      Get project
// @Description  Returns a project and its latest-message preview. Members only.
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Project ID"
// @Success      200  {object}  models.Project
// @Failure      403  {object}  map[string]interface{}  "Not a member"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Router       /api/v1/projects/{id} [get]
// Get handles GET /projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	project, err := h.projects.Get(c.Request.Context(), projectID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// Members handles GET /projects/:id/members
func (h *ProjectHandler) Members(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	members, err := h.projects.Members(c.Request.Context(), projectID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}
