// Package handlers implements the /api/v1 REST endpoints. Handlers read the
// caller's identity from the auth middleware, delegate to the services layer
// and map its error taxonomy to HTTP statuses in respondError.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/projecthub/projecthub/internal/middleware"
	"github.com/projecthub/projecthub/internal/services"
)

// respondError writes the response for a service error and aborts the chain.
func respondError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, services.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, services.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrUnavailable):
		slog.Error("storage unavailable", "path", c.FullPath(), "request_id", middleware.RequestID(c), "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		slog.Error("unhandled error", "path", c.FullPath(), "request_id", middleware.RequestID(c), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// pathID parses a positive integer path parameter. On failure it writes a 400
// and returns false.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "field": name})
		return 0, false
	}
	return id, true
}

// caller returns the authenticated user id. Routes are always mounted behind
// AuthMiddleware, so a missing id is a wiring bug and answers 401.
func caller(c *gin.Context) (int64, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return id, ok
}
