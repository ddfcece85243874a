package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/handler"
	"github.com/stemsi/pisaprep/internal/metrics"
	"github.com/stemsi/pisaprep/internal/middleware"
	"github.com/stemsi/pisaprep/internal/response"
	"github.com/stemsi/pisaprep/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Attempt *handler.AttemptHandler
	Profile *handler.ProfileHandler
	Sync    *handler.SyncHandler
	WS      *handler.WSHandler
	Health  *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", metrics.Handler())

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	// ─── 1. Owner API ──────────────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(
		limiter.Middleware(),
		middleware.RequireOwnerJWT(authService, cfg.OwnerID),
		middleware.Compress(5, middleware.DefaultCompressMinLength),
	)
	{
		sessions := api.Group("/session")
		sessions.Use(middleware.NoStore())
		{
			sessions.POST("/start", handlers.Session.Start)
			sessions.GET("/state", handlers.Session.State)
			sessions.POST("/select", handlers.Session.Select)
			sessions.POST("/next", handlers.Session.Next)
			sessions.POST("/prev", handlers.Session.Prev)
			sessions.POST("/submit", handlers.Session.Submit)
			sessions.POST("/visibility-lost", handlers.Session.VisibilityLost)
			sessions.POST("/warning/dismiss", handlers.Session.DismissWarning)
		}

		api.GET("/attempts", handlers.Attempt.List)
		api.GET("/attempts/:id/result", handlers.Attempt.Result)

		api.GET("/profile", handlers.Profile.Get)
		api.PUT("/profile/cosmetic", handlers.Profile.SelectCosmetic)

		api.POST("/sync/run", handlers.Sync.Run)
		api.GET("/sync/status", handlers.Sync.Status)
	}

	// ─── 2. WebSocket ──────────────────────────────────────────────────
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(middleware.RequireOwnerWSAuth(authService, cfg.OwnerID))
	{
		wsGroup.GET("/session/stream", handlers.WS.SessionStream)
	}

	return router
}
