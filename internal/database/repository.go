package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"desktop-license-server/internal/license"
)

// Repository implements Store on PostgreSQL
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

const licenseColumns = `id, user_id, plan_tier, status, max_devices, usage_count, usage_limit,
	usage_limit_reached, trial_ends_at, created_at, updated_at`

const activationColumns = `id, license_id, device_id, device_name, platform, app_version, is_active,
	activated_at, last_seen_at, deactivated_at, deactivated_reason, current_jti, token_expires_at`

func scanLicense(row pgx.Row) (*License, error) {
	var l License
	err := row.Scan(
		&l.ID, &l.UserID, &l.PlanTier, &l.Status, &l.MaxDevices, &l.UsageCount, &l.UsageLimit,
		&l.UsageLimitReached, &l.TrialEndsAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.inUTC()
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanActivation(row pgx.Row) (*DeviceActivation, error) {
	var a DeviceActivation
	err := row.Scan(
		&a.ID, &a.LicenseID, &a.DeviceID, &a.DeviceName, &a.Platform, &a.AppVersion, &a.IsActive,
		&a.ActivatedAt, &a.LastSeenAt, &a.DeactivatedAt, &a.DeactivatedReason, &a.CurrentJTI, &a.TokenExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	a.inUTC()
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetLicenseByID retrieves a license by ID
func (r *Repository) GetLicenseByID(ctx context.Context, licenseID string) (*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE id = $1`

	l, err := scanLicense(r.db.Pool.QueryRow(ctx, query, licenseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return l, nil
}

// GetLicenseByUserID returns the user's current license, preferring entitled ones
func (r *Repository) GetLicenseByUserID(ctx context.Context, userID string) (*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE user_id = $1
		ORDER BY (status IN ('active', 'trial')) DESC, updated_at DESC
		LIMIT 1`

	l, err := scanLicense(r.db.Pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license for user: %w", err)
	}
	return l, nil
}

// IncrementUsage adds n to the usage counter and recomputes usage_limit_reached
func (r *Repository) IncrementUsage(ctx context.Context, licenseID string, n int64) (*License, error) {
	query := `
	UPDATE licenses SET
		usage_count = usage_count + $2,
		usage_limit_reached = (usage_limit > 0 AND usage_count + $2 >= usage_limit),
		updated_at = NOW()
	WHERE id = $1
	RETURNING ` + licenseColumns

	l, err := scanLicense(r.db.Pool.QueryRow(ctx, query, licenseID, n))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}
	return l, nil
}

// ActivateDevice locks the license row so concurrent activations for the same
// license serialise, then counts and upserts inside the same transaction.
func (r *Repository) ActivateDevice(ctx context.Context, p ActivateParams) (*DeviceActivation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin activation: %w", err)
	}
	defer tx.Rollback(ctx)

	var status, planTier string
	var maxDevices int
	err = tx.QueryRow(ctx,
		`SELECT status, plan_tier, max_devices FROM licenses WHERE id = $1 FOR UPDATE`,
		p.LicenseID,
	).Scan(&status, &planTier, &maxDevices)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock license: %w", err)
	}
	if !license.Status(status).Entitled() {
		return nil, ErrLicenseInactive
	}

	var others int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM device_activations WHERE license_id = $1 AND is_active AND device_id <> $2`,
		p.LicenseID, p.DeviceID,
	).Scan(&others)
	if err != nil {
		return nil, fmt.Errorf("failed to count active devices: %w", err)
	}
	if others >= license.DeviceCeiling(license.ParsePlanTier(planTier), maxDevices) {
		return nil, ErrDeviceLimitExceeded
	}

	query := `
	INSERT INTO device_activations (
		id, license_id, device_id, device_name, platform, app_version, is_active,
		activated_at, last_seen_at, current_jti, token_expires_at
	) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7, $8, $9)
	ON CONFLICT (license_id, device_id) DO UPDATE SET
		device_name = COALESCE(NULLIF(EXCLUDED.device_name, ''), device_activations.device_name),
		platform = COALESCE(NULLIF(EXCLUDED.platform, ''), device_activations.platform),
		app_version = COALESCE(NULLIF(EXCLUDED.app_version, ''), device_activations.app_version),
		activated_at = CASE WHEN device_activations.is_active
			THEN device_activations.activated_at ELSE EXCLUDED.activated_at END,
		is_active = TRUE,
		last_seen_at = EXCLUDED.last_seen_at,
		deactivated_at = NULL,
		deactivated_reason = NULL,
		current_jti = EXCLUDED.current_jti,
		token_expires_at = EXCLUDED.token_expires_at
	RETURNING ` + activationColumns

	activation, err := scanActivation(tx.QueryRow(ctx, query,
		uuid.New().String(), p.LicenseID, p.DeviceID, p.DeviceName, p.Platform, p.AppVersion,
		p.At, p.TokenID, p.TokenExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert activation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}
	return activation, nil
}

// GetActivation finds the row for a (license, device) pair
func (r *Repository) GetActivation(ctx context.Context, licenseID, deviceID string) (*DeviceActivation, error) {
	query := `SELECT ` + activationColumns + ` FROM device_activations WHERE license_id = $1 AND device_id = $2`

	a, err := scanActivation(r.db.Pool.QueryRow(ctx, query, licenseID, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activation: %w", err)
	}
	return a, nil
}

// GetActivationByID retrieves an activation by ID
func (r *Repository) GetActivationByID(ctx context.Context, activationID string) (*DeviceActivation, error) {
	query := `SELECT ` + activationColumns + ` FROM device_activations WHERE id = $1`

	a, err := scanActivation(r.db.Pool.QueryRow(ctx, query, activationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activation: %w", err)
	}
	return a, nil
}

// ListActiveActivations returns active devices, most recently seen first
func (r *Repository) ListActiveActivations(ctx context.Context, licenseID string) ([]*DeviceActivation, error) {
	query := `SELECT ` + activationColumns + ` FROM device_activations
		WHERE license_id = $1 AND is_active
		ORDER BY last_seen_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activations: %w", err)
	}
	defer rows.Close()

	var activations []*DeviceActivation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activation: %w", err)
		}
		activations = append(activations, a)
	}
	return activations, rows.Err()
}

// CountActiveActivations counts active devices for a license
func (r *Repository) CountActiveActivations(ctx context.Context, licenseID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM device_activations WHERE license_id = $1 AND is_active`,
		licenseID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activations: %w", err)
	}
	return count, nil
}

// TouchActivation updates last_seen_at only
func (r *Repository) TouchActivation(ctx context.Context, activationID string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE device_activations SET last_seen_at = GREATEST(last_seen_at, $2) WHERE id = $1`,
		activationID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch activation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordTokenIssued stores the newest jti/exp for an activation
func (r *Repository) RecordTokenIssued(ctx context.Context, rec TokenRecord) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE device_activations SET
			current_jti = $2,
			token_expires_at = $3,
			app_version = COALESCE(NULLIF($4, ''), app_version),
			last_seen_at = GREATEST(last_seen_at, $5)
		WHERE id = $1`,
		rec.ActivationID, rec.TokenID, rec.ExpiresAt, rec.AppVersion, rec.At,
	)
	if err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateActivation soft-deletes an activation. Already inactive rows are left untouched.
func (r *Repository) DeactivateActivation(ctx context.Context, activationID string, reason DeactivationReason, at time.Time) (bool, error) {
	if !reason.Valid() {
		return false, fmt.Errorf("%w: unknown deactivation reason %q", ErrInvalidRecord, reason)
	}

	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE device_activations SET
			is_active = FALSE,
			deactivated_at = $2,
			deactivated_reason = $3
		WHERE id = $1 AND is_active`,
		activationID, at, string(reason),
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM device_activations WHERE id = $1)`, activationID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check activation: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// DeactivateStale deactivates active rows not seen since lastSeenBefore
func (r *Repository) DeactivateStale(ctx context.Context, lastSeenBefore time.Time, at time.Time) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE device_activations SET
			is_active = FALSE,
			deactivated_at = $2,
			deactivated_reason = $3
		WHERE is_active AND last_seen_at < $1`,
		lastSeenBefore, at, string(ReasonStaleTimeout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stale devices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetWalletByUserID retrieves a user's wallet
func (r *Repository) GetWalletByUserID(ctx context.Context, userID string) (*Wallet, error) {
	var w Wallet
	err := r.db.Pool.QueryRow(ctx,
		`SELECT user_id, balance, currency, updated_at FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&w.UserID, &w.Balance, &w.Currency, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	w.UpdatedAt = w.UpdatedAt.UTC()
	return &w, nil
}

// UpsertLicense writes a license row. Used by tooling and tests; billing owns these rows in production.
func (r *Repository) UpsertLicense(ctx context.Context, l *License) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if err := l.Validate(); err != nil {
		return err
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO licenses (id, user_id, plan_tier, status, max_devices, usage_count, usage_limit, usage_limit_reached, trial_ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			plan_tier = EXCLUDED.plan_tier,
			status = EXCLUDED.status,
			max_devices = EXCLUDED.max_devices,
			usage_count = EXCLUDED.usage_count,
			usage_limit = EXCLUDED.usage_limit,
			usage_limit_reached = EXCLUDED.usage_limit_reached,
			trial_ends_at = EXCLUDED.trial_ends_at,
			updated_at = NOW()`,
		l.ID, l.UserID, l.PlanTier, l.Status, l.MaxDevices, l.UsageCount, l.UsageLimit, l.UsageLimitReached, l.TrialEndsAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert license: %w", err)
	}
	return nil
}
