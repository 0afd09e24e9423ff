// Package api wires together all HTTP routes for the projecthub server.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /ws authenticates its own handshake (token query parameter or bearer
//     header) because browsers cannot set headers on a websocket upgrade.
//   - /api/v1 always requires a bearer token. Rate limits there are keyed by
//     the verified user.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/projecthub/projecthub/internal/api/handlers"
	"github.com/projecthub/projecthub/internal/auth"
	"github.com/projecthub/projecthub/internal/config"
	"github.com/projecthub/projecthub/internal/db/repositories"
	"github.com/projecthub/projecthub/internal/middleware"
	"github.com/projecthub/projecthub/internal/realtime"
	"github.com/projecthub/projecthub/internal/safego"
	"github.com/projecthub/projecthub/internal/services"
)

// Version is reported by /version and the version subcommand.
var Version = "0.1.0"

// subscriberStopTimeout bounds how long Shutdown waits for the Redis
// subscriber to exit.
const subscriberStopTimeout = 5 * time.Second

// BackgroundServices holds references to background goroutines and resources
// that must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	hub          *realtime.Hub
	rateLimiters []*middleware.RateLimiter
	redis        *redis.Client
	stopSub      context.CancelFunc
	subDone      chan struct{}
}

// Shutdown closes every websocket connection and stops background goroutines.
// It should be called after the HTTP server has been shut down so that
// in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.hub != nil {
		bg.hub.Shutdown()
	}
	if bg.stopSub != nil {
		bg.stopSub()
		select {
		case <-bg.subDone:
		case <-time.After(subscriberStopTimeout):
			slog.Warn("room event subscriber did not stop in time")
		}
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redis != nil {
		if err := bg.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// messageLimits maps the chat config section onto the message service limits.
func messageLimits(cfg config.ChatConfig) services.MessageLimits {
	return services.MessageLimits{
		MaxContentLength: cfg.MaxContentLength,
		MaxMetadataBytes: cfg.MaxMetadataBytes,
		DefaultPageSize:  cfg.DefaultPageSize,
		MaxPageSize:      cfg.MaxPageSize,
	}
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	memberRepo := repositories.NewMembershipRepository(db)
	requestRepo := repositories.NewJoinRequestRepository(db)
	messageRepo := repositories.NewMessageRepository(db)

	projectService := services.NewProjectService(projectRepo, memberRepo)
	joinRequestService := services.NewJoinRequestService(projectRepo, requestRepo)

	// Room registry and fan-out. With Redis every process publishes to one
	// channel and delivers what it receives into its own hub.
	hub := realtime.NewHub(projectService)
	bg := &BackgroundServices{hub: hub}

	var broker realtime.Broker = realtime.NewLocalBroker(hub)
	if cfg.Redis.Enabled {
		bg.redis = realtime.NewRedisClient(cfg.Redis)
		redisBroker := realtime.NewRedisBroker(bg.redis, cfg.Redis.Channel, hub)

		ctx, cancel := context.WithCancel(context.Background())
		bg.stopSub = cancel
		bg.subDone = make(chan struct{})
		safego.Go("room-event-subscriber", func() {
			defer close(bg.subDone)
			if err := redisBroker.Run(ctx); err != nil {
				slog.Error("room event subscriber exited", "error", err)
			}
		})
		broker = redisBroker
		slog.Info("redis fan-out enabled", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}
	fanout := realtime.NewFanout(broker)

	messageService := services.NewMessageService(memberRepo, messageRepo, fanout, messageLimits(cfg.Chat))

	verifier := auth.NewJWTVerifier(cfg.Auth.JWTIssuer)
	wsServer := realtime.NewServer(hub, fanout, verifier, userRepo, messageService, realtime.OptionsFromConfig(cfg.Chat))

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, broker))
	router.GET("/version", versionHandler())

	// Websocket endpoint (authenticates its own handshake)
	router.GET("/ws", gin.WrapH(wsServer))

	projectHandler := handlers.NewProjectHandler(projectService)
	joinRequestHandler := handlers.NewJoinRequestHandler(joinRequestService)
	messageHandler := handlers.NewMessageHandler(messageService)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(verifier, userRepo))
	if cfg.Security.RateLimiting.Enabled {
		rlConfig := middleware.RateLimitConfigFrom(cfg.Security.RateLimiting)
		var limiter middleware.Limiter
		if bg.redis != nil {
			limiter = middleware.NewRedisRateLimiter(bg.redis, rlConfig)
		} else {
			inMemory := middleware.NewRateLimiter(rlConfig)
			bg.rateLimiters = append(bg.rateLimiters, inMemory)
			limiter = inMemory
		}
		apiV1.Use(middleware.RateLimitMiddleware(limiter))
	}
	{
		// Projects
		apiV1.POST("/projects", projectHandler.Create)
		apiV1.GET("/projects", projectHandler.List)
		apiV1.GET("/projects/:id", projectHandler.Get)
		apiV1.GET("/projects/:id/members", projectHandler.Members)

		// Join requests
		apiV1.POST("/join-requests", joinRequestHandler.Create)
		apiV1.GET("/join-requests/mine", joinRequestHandler.ListMine)
		apiV1.GET("/me/stats", joinRequestHandler.Stats)
		apiV1.POST("/requests/:id/accept", joinRequestHandler.Accept)
		apiV1.POST("/requests/:id/reject", joinRequestHandler.Reject)
		apiV1.GET("/projects/:id/requests", joinRequestHandler.ListForProject)

		// Messages
		apiV1.GET("/projects/:id/messages", messageHandler.List)
		apiV1.POST("/projects/:id/read", messageHandler.MarkRead)
		apiV1.GET("/projects/:id/unread", messageHandler.Unread)
		apiV1.PATCH("/messages/:id", messageHandler.Edit)
		apiV1.DELETE("/messages/:id", messageHandler.Delete)
	}

	return router, bg
}

// Pinger is the part of *sqlx.DB the probes need.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Reports whether the database and the room event broker are reachable.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true"
// @Failure      503  {object}  map[string]interface{}  "ready: false"
// @Router       /ready [get]
// readinessHandler checks every dependency needed to serve traffic
func readinessHandler(db Pinger, broker realtime.Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if err := broker.Ping(c.Request.Context()); err != nil {
			checks["broker"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "room event broker not ready",
			})
			return
		}
		checks["broker"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns API version information
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one structured record per request. The handler
// installed by telemetry.SetupLogger decides between JSON and text output.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.RequestID(c)),
		}
		// The websocket token travels in the query string.
		if query != "" && path != "/ws" {
			attrs = append(attrs, slog.String("query", query))
		}
		if cfg.Logging.Format == "json" {
			attrs = append(attrs, slog.String("user_agent", c.Request.UserAgent()))
		}
		if userID, ok := middleware.UserID(c); ok {
			attrs = append(attrs, slog.Int64("user_id", userID))
		}

		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PATCH, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
