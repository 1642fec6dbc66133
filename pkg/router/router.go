package router

import (
	"net/http"
	"os"
	"strings"

	"mentorchat/backend/internal/api"
	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/di"
	"mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/jwt"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config

	limiter *middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.Warn("invalid trusted proxies, trusting none", "error", err.Error())
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.ContextPropagationMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimit(cfg.Security.MaxBodySize))

	opts := middleware.DefaultRateLimiterOptions()
	if cfg.Security.RateLimit > 0 {
		opts.Limit = rate.Limit(cfg.Security.RateLimit)
	}
	if cfg.Security.RateLimitBurst > 0 {
		opts.Burst = cfg.Security.RateLimitBurst
	}

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
		limiter:   middleware.NewRateLimiter(container.Logger, opts),
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container
	jwtAuth := middleware.JWTAuthMiddleware(c.JWTService, r.Logger)
	limit := r.limiter.Middleware()

	r.AddOpenAPIValidation()

	healthHandler := api.NewHealthHandler(c.Health, c.Registry, appVersion())
	healthHandler.RegisterHealthRoutes(r.Engine)
	r.Engine.GET("/readyz", gin.WrapF(c.Health.HTTPHandler()))
	r.Engine.GET("/metrics", gin.WrapH(c.MetricsHandler))

	authHandler := api.NewAuthHandler(c.UserService, r.Logger.WithComponent("auth"))
	chatHandler := api.NewChatHandler(c.ChatService)
	adminHandler := api.NewAdminHandler(c.ChatService)

	v1 := r.Engine.Group("/api/v1")
	healthHandler.RegisterHealthRoutes(v1)

	auth := v1.Group("/auth", limit)
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", jwtAuth, authHandler.Me)
	}

	protected := v1.Group("", jwtAuth, limit)
	chatHandler.RegisterRoutes(protected.Group("", middleware.RequirePermission(jwt.PermissionSendMessages)))

	admin := protected.Group("/admin", middleware.RequireRole(jwt.RoleAdmin))
	{
		admin.GET("/moderation-logs", middleware.RequirePermission(jwt.PermissionReadModerationLog), adminHandler.ModerationLogs)
	}

	// browsers cannot set headers on the upgrade request, so the token may
	// arrive as a query parameter
	r.Engine.GET("/ws", jwtAuth, c.Hub.ServeWs)
}

// Close stops the router's background workers
func (r *Router) Close() {
	r.limiter.Stop()
}

func appVersion() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "dev"
}

// corsMiddleware allows the configured origins, including websocket headers
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimSuffix(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin == "":
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowAll || set[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
