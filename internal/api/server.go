package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"desktop-license-server/config"
	"desktop-license-server/internal/auth"
	"desktop-license-server/internal/cache"
	"desktop-license-server/internal/database"
	"desktop-license-server/internal/licensing"
	"desktop-license-server/internal/logging"
	"desktop-license-server/internal/metrics"
	"desktop-license-server/internal/ratelimit"
	"desktop-license-server/internal/token"
	"desktop-license-server/internal/vault"
	"desktop-license-server/internal/version"
)

// Deps are the services the HTTP layer dispatches to
type Deps struct {
	Licensing     *licensing.Service
	Authenticator *auth.Authenticator
	Limiter       *ratelimit.Limiter
	Gate          *version.Gate
	Catalog       *version.Catalog
	Store         database.Store
	Cache         *cache.CacheService // nil when Redis is disabled
	Codec         *token.Codec
	Vault         *vault.Client    // set when the signing key comes from Vault
	Metrics       *metrics.Manager // nil when metrics are disabled
	Logger        zerolog.Logger
}

// Server represents the HTTP API server
type Server struct {
	router        *gin.Engine
	httpServer    *http.Server
	config        config.ServerConfig
	licensing     *licensing.Service
	authenticator *auth.Authenticator
	limiter       *ratelimit.Limiter
	gate          *version.Gate
	catalog       *version.Catalog
	store         database.Store
	cache         *cache.CacheService
	codec         *token.Codec
	vault         *vault.Client
	metrics       *metrics.Manager
	logger        zerolog.Logger
	startedAt     time.Time
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	// Set Gin mode
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := configureClientIP(router, cfg); err != nil {
		deps.Logger.Error().Err(err).Msg("Invalid trusted proxy list, forwarding headers are ignored")
		_ = router.SetTrustedProxies(nil)
	}

	// Middleware
	router.Use(logging.GinMiddleware(deps.Logger))
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))

	s := &Server{
		router:        router,
		config:        cfg,
		licensing:     deps.Licensing,
		authenticator: deps.Authenticator,
		limiter:       deps.Limiter,
		gate:          deps.Gate,
		catalog:       deps.Catalog,
		store:         deps.Store,
		cache:         deps.Cache,
		codec:         deps.Codec,
		vault:         deps.Vault,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		startedAt:     time.Now(),
	}

	s.setupRoutes()
	return s
}

// configureClientIP makes c.ClientIP honour forwarding headers only from the
// configured proxies. gin trusts every peer unless told otherwise.
func configureClientIP(router *gin.Engine, cfg config.ServerConfig) error {
	switch cfg.TrustedPlatform {
	case config.PlatformCloudflare:
		router.TrustedPlatform = gin.PlatformCloudflare
	case config.PlatformGoogleAppEngine:
		router.TrustedPlatform = gin.PlatformGoogleAppEngine
	}

	proxies := config.SplitList(cfg.TrustedProxies)
	if len(proxies) == 0 {
		return router.SetTrustedProxies(nil)
	}
	router.RemoteIPHeaders = []string{"X-Forwarded-For", "X-Real-IP"}
	return router.SetTrustedProxies(proxies)
}

func corsConfig(cfg config.ServerConfig) cors.Config {
	corsConfig := cors.DefaultConfig()

	origins := config.SplitList(cfg.AllowedOrigins)
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Type", "Authorization",
		auth.DeviceHeader, auth.SessionHeader, logging.TraceHeader,
	}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Retry-After", logging.TraceHeader}
	return corsConfig
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	desktop := s.router.Group("/api/desktop")
	{
		desktop.POST("/activate", s.rateLimit(config.RouteActivate), s.handleActivate)
		desktop.POST("/refresh", s.rateLimit(config.RouteRefresh), s.handleRefresh)
		desktop.POST("/heartbeat", s.rateLimit(config.RouteHeartbeat), s.handleHeartbeat)
		desktop.POST("/deactivate", s.rateLimit(config.RouteDeactivate), s.handleDeactivate)
		desktop.GET("/devices", s.rateLimit(config.RouteDevices), auth.Middleware(s.authenticator, auth.AcceptAny), s.handleListDevices)

		// Unauthenticated
		desktop.GET("/updates", s.rateLimit(config.RouteUpdates), s.handleUpdates)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// rateLimit rejects requests over the route's sliding-window policy before any auth work
func (s *Server) rateLimit(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		client := c.ClientIP()
		if client == "" {
			client = "unknown"
		}
		decision := s.limiter.Check(c.Request.Context(), client, route)
		if decision.Remaining >= 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		}
		if !decision.Allowed {
			s.writeError(c, licensing.RateLimited(decision.RetryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  secondsOr(s.config.ReadTimeout, 15),
		WriteTimeout: secondsOr(s.config.WriteTimeout, 15),
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Bool("tls", s.config.TLSEnabled).Msg("Starting HTTP server")

	var err error
	if s.config.TLSEnabled {
		err = s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func secondsOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

// handleHealth reports database, redis, vault and signing key readiness
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components := gin.H{}

	if err := s.store.HealthCheck(ctx); err != nil {
		components["database"] = "unhealthy"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else {
		components["database"] = "healthy"
	}

	if s.codec != nil && s.codec.CanIssue() {
		components["signing_key"] = "loaded"
	} else {
		components["signing_key"] = "missing"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	switch {
	case s.cache == nil:
		components["redis"] = "disabled"
	case s.cache.Ping(ctx) != nil:
		components["redis"] = "unhealthy"
		if status == "healthy" {
			status = "degraded"
		}
	default:
		components["redis"] = "healthy"
	}

	// The key is already in memory, so Vault trouble only degrades
	switch {
	case s.vault == nil || !s.vault.IsEnabled():
		components["vault"] = "disabled"
	case s.vault.Health(ctx) != nil:
		components["vault"] = "unhealthy"
		if status == "healthy" {
			status = "degraded"
		}
	default:
		components["vault"] = "healthy"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
	})
}
