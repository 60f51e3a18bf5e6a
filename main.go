package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"desktop-license-server/config"
	"desktop-license-server/internal/api"
	"desktop-license-server/internal/auth"
	"desktop-license-server/internal/cache"
	"desktop-license-server/internal/database"
	"desktop-license-server/internal/devices"
	"desktop-license-server/internal/licensing"
	"desktop-license-server/internal/logging"
	"desktop-license-server/internal/metrics"
	"desktop-license-server/internal/ratelimit"
	"desktop-license-server/internal/token"
	"desktop-license-server/internal/vault"
	"desktop-license-server/internal/version"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize structured logging. Each service gets a child tagged with its component.
	logging.SetDefault(logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
	}))
	logger := logging.WithComponent("main")
	logger.Info().Msg("Structured logging initialized")

	ctx := context.Background()

	// Activation store
	var store database.Store
	switch cfg.DatabaseConfig.Driver {
	case "memory":
		store = database.NewMemoryStore()
		logger.Warn().Msg("Using in-memory activation store, data is lost on restart")
	default:
		db, err := database.NewDB(ctx, cfg.DatabaseConfig, logging.WithComponent("database"))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		store = database.NewRepository(db)
	}

	// Redis is optional and only backs the shared rate-limit window
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig, logging.WithComponent("cache"))
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, rate limits stay per instance")
			cacheService = nil
		} else {
			defer cacheService.Close()
		}
	}

	// Signing key
	keySource := token.KeySource{
		PEM:  cfg.TokenConfig.PrivateKeyPEM,
		Path: cfg.TokenConfig.PrivateKeyPath,
	}
	var vaultClient *vault.Client
	if cfg.VaultConfig.Enabled && cfg.TokenConfig.FromVault {
		vaultClient, err = vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Vault client")
		}
		keySource.Vault = vaultClient
	}
	keyPEM, err := keySource.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load token signing key")
	}
	codec, err := token.NewCodec(keyPEM, token.Options{
		Issuer:    cfg.TokenConfig.Issuer,
		TTL:       cfg.TokenConfig.TTL,
		ClockSkew: cfg.TokenConfig.ClockSkew,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid token signing key")
	}
	logger.Info().Dur("ttl", codec.TTL()).Msg("Token codec initialized")

	var metricsManager *metrics.Manager
	if cfg.MetricsConfig.Enabled {
		metricsManager = metrics.NewManager()
	}

	// Authentication
	sessions := auth.NewJWTManager(cfg.SessionConfig.JWTSecret, cfg.SessionConfig.Issuer, 24*time.Hour)
	authOpts := []auth.AuthenticatorOption{auth.WithAuthLogger(logging.WithComponent("auth"))}
	if metricsManager != nil {
		authOpts = append(authOpts, auth.WithFailureHook(metricsManager.AuthFailed))
	}
	authenticator := auth.NewAuthenticator(sessions, codec, store, authOpts...)

	// Version gate and release catalog
	gate := version.NewGate(cfg.VersionConfig.MinimumVersion)
	catalog := version.NewCatalog(gate, cfg.VersionConfig.Releases)

	// Rate limiting
	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logging.WithComponent("ratelimit"))}
	if cfg.RateLimitConfig.UseRedis && cacheService != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithStore(ratelimit.NewRedisStore(cacheService)))
	}
	if metricsManager != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithLimitHook(metricsManager.RateLimited))
	}
	limiter := ratelimit.New(ratelimit.PoliciesFromConfig(cfg.RateLimitConfig), limiterOpts...)

	// Issuance orchestrator
	serviceOpts := []licensing.Option{licensing.WithLogger(logging.WithComponent("licensing"))}
	if metricsManager != nil {
		serviceOpts = append(serviceOpts, licensing.WithRecorder(metricsManager))
	}
	licensingService := licensing.NewService(licensing.Deps{
		Auth:     authenticator,
		Devices:  devices.NewService(store, devices.WithLogger(logging.WithComponent("devices"))),
		Licenses: store,
		Wallets:  store,
		Codec:    codec,
		Gate:     gate,
		Catalog:  catalog,
	}, licensing.SettingsFromConfig(cfg), serviceOpts...)

	server := api.NewServer(cfg.ServerConfig, api.Deps{
		Licensing:     licensingService,
		Authenticator: authenticator,
		Limiter:       limiter,
		Gate:          gate,
		Catalog:       catalog,
		Store:         store,
		Cache:         cacheService,
		Codec:         codec,
		Vault:         vaultClient,
		Metrics:       metricsManager,
		Logger:        logging.Default(),
	})

	// Start web server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start web server")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down...")

	// Graceful shutdown
	timeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down web server")
	}

	logger.Info().Msg("Shutdown complete")
}
