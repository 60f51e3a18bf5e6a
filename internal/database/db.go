package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"desktop-license-server/config"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	return connect(ctx, poolConfig, cfg, logger)
}

// NewDBFromURL connects using a connection URL, e.g. from TEST_DATABASE_URL
func NewDBFromURL(ctx context.Context, url string, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	return connect(ctx, poolConfig, config.DatabaseConfig{MaxConns: 5, MinConns: 1}, logger)
}

func connect(ctx context.Context, poolConfig *pgxpool.Config, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	// Configure connection pool
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	l := logger.With().Str("component", "database").Logger()
	l.Info().Str("database", poolConfig.ConnConfig.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: l}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("Running database migrations")

	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

		// Licenses are written by billing; this service reads them and bumps usage
		`CREATE TABLE IF NOT EXISTS licenses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id VARCHAR(64) NOT NULL,
			plan_tier VARCHAR(32) NOT NULL DEFAULT 'free',
			status VARCHAR(20) NOT NULL DEFAULT 'trial'
				CHECK (status IN ('trial', 'active', 'past_due', 'cancelled', 'suspended')),
			max_devices INTEGER NOT NULL DEFAULT 1 CHECK (max_devices >= 0),
			usage_count BIGINT NOT NULL DEFAULT 0,
			usage_limit BIGINT NOT NULL DEFAULT 0,
			usage_limit_reached BOOLEAN NOT NULL DEFAULT FALSE,
			trial_ends_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_licenses_user_id ON licenses(user_id)`,

		// One row per (license, device); deactivation is a soft delete
		`CREATE TABLE IF NOT EXISTS device_activations (
			id UUID PRIMARY KEY,
			license_id UUID NOT NULL REFERENCES licenses(id) ON DELETE CASCADE,
			device_id VARCHAR(128) NOT NULL,
			device_name VARCHAR(255) NOT NULL DEFAULT '',
			platform VARCHAR(32) NOT NULL DEFAULT '',
			app_version VARCHAR(64) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			activated_at TIMESTAMPTZ NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL,
			deactivated_at TIMESTAMPTZ,
			deactivated_reason VARCHAR(32),
			current_jti VARCHAR(64),
			token_expires_at TIMESTAMPTZ,
			CONSTRAINT uq_device_activations_license_device UNIQUE (license_id, device_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_device_activations_active ON device_activations(license_id) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_device_activations_last_seen ON device_activations(last_seen_at) WHERE is_active`,

		`CREATE TABLE IF NOT EXISTS wallets (
			user_id VARCHAR(64) PRIMARY KEY,
			balance NUMERIC(20, 4) NOT NULL DEFAULT 0,
			currency VARCHAR(8) NOT NULL DEFAULT 'USD',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("statements", len(migrations)).Msg("Database migrations completed")
	return nil
}
