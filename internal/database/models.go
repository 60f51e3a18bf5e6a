package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"desktop-license-server/internal/license"
)

var validate = validator.New()

// Storage errors
var (
	ErrNotFound            = errors.New("record not found")
	ErrDeviceLimitExceeded = errors.New("device limit exceeded")
	ErrLicenseInactive     = errors.New("license is not active")
	ErrInvalidRecord       = errors.New("invalid record")
)

// DeactivationReason records why a device stopped being active
type DeactivationReason string

const (
	ReasonUserLogout     DeactivationReason = "user_logout"
	ReasonKeyRegenerated DeactivationReason = "key_regenerated"
	ReasonAdminRevoked   DeactivationReason = "admin_revoked"
	ReasonStaleTimeout   DeactivationReason = "stale_timeout"
)

// Valid reports whether r is a known reason
func (r DeactivationReason) Valid() bool {
	switch r {
	case ReasonUserLogout, ReasonKeyRegenerated, ReasonAdminRevoked, ReasonStaleTimeout:
		return true
	}
	return false
}

// License is the billing-owned entitlement record. This service reads it and bumps usage counters.
type License struct {
	ID                string     `json:"id" db:"id" validate:"required"`
	UserID            string     `json:"user_id" db:"user_id" validate:"required"`
	PlanTier          string     `json:"plan_tier" db:"plan_tier" validate:"required"`
	Status            string     `json:"status" db:"status" validate:"oneof=trial active past_due cancelled suspended"`
	MaxDevices        int        `json:"max_devices" db:"max_devices" validate:"gte=0"` // 0 = tier default
	UsageCount        int64      `json:"usage_count" db:"usage_count" validate:"gte=0"`
	UsageLimit        int64      `json:"usage_limit" db:"usage_limit" validate:"gte=0"` // 0 = unlimited
	UsageLimitReached bool       `json:"usage_limit_reached" db:"usage_limit_reached"`
	TrialEndsAt       *time.Time `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Validate rejects rows that do not satisfy the model's constraints
func (l *License) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("%w: license %s: %v", ErrInvalidRecord, l.ID, err)
	}
	return nil
}

// Tier returns the parsed plan tier
func (l *License) Tier() license.PlanTier {
	return license.ParsePlanTier(l.PlanTier)
}

// LicenseStatus returns the typed status
func (l *License) LicenseStatus() license.Status {
	return license.Status(l.Status)
}

func (l *License) inUTC() {
	l.TrialEndsAt = utcPtr(l.TrialEndsAt)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
}

// DeviceCeiling is the number of devices the license may hold at once
func (l *License) DeviceCeiling() int {
	return license.DeviceCeiling(l.Tier(), l.MaxDevices)
}

// Entitled reports whether the license may hold devices and receive tokens
func (l *License) Entitled() bool {
	return l.LicenseStatus().Entitled()
}

// DeviceActivation binds one installation to a license
type DeviceActivation struct {
	ID                string     `json:"activation_id" db:"id" validate:"required"`
	LicenseID         string     `json:"license_id" db:"license_id" validate:"required"`
	DeviceID          string     `json:"device_id" db:"device_id" validate:"required,max=128"`
	DeviceName        string     `json:"device_name" db:"device_name" validate:"max=255"`
	Platform          string     `json:"platform" db:"platform" validate:"max=32"`
	AppVersion        string     `json:"app_version" db:"app_version" validate:"max=64"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	ActivatedAt       time.Time  `json:"activated_at" db:"activated_at"`
	LastSeenAt        time.Time  `json:"last_seen_at" db:"last_seen_at"`
	DeactivatedAt     *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
	DeactivatedReason *string    `json:"deactivated_reason,omitempty" db:"deactivated_reason"`
	CurrentJTI        *string    `json:"-" db:"current_jti"`
	TokenExpiresAt    *time.Time `json:"-" db:"token_expires_at"`
}

// Validate rejects rows that do not satisfy the model's constraints
func (a *DeviceActivation) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("%w: activation %s: %v", ErrInvalidRecord, a.ID, err)
	}
	return nil
}

// inUTC drops the session location pgx attaches to timestamptz values
func (a *DeviceActivation) inUTC() {
	a.ActivatedAt = a.ActivatedAt.UTC()
	a.LastSeenAt = a.LastSeenAt.UTC()
	a.DeactivatedAt = utcPtr(a.DeactivatedAt)
	a.TokenExpiresAt = utcPtr(a.TokenExpiresAt)
}

// IsCurrentToken reports whether jti is the most recently issued token for this device
func (a *DeviceActivation) IsCurrentToken(jti string) bool {
	return a.CurrentJTI != nil && *a.CurrentJTI == jti
}

// ActivateParams describe one activation attempt together with the token minted for it
type ActivateParams struct {
	LicenseID      string    `validate:"required"`
	DeviceID       string    `validate:"required,max=128"`
	DeviceName     string    `validate:"max=255"`
	Platform       string    `validate:"max=32"`
	AppVersion     string    `validate:"max=64"`
	TokenID        string    `validate:"required"`
	TokenExpiresAt time.Time `validate:"required"`
	At             time.Time `validate:"required"`
}

// Validate checks required fields
func (p ActivateParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// TokenRecord is the bookkeeping written when a token is reissued for an activation
type TokenRecord struct {
	ActivationID string
	TokenID      string
	ExpiresAt    time.Time
	AppVersion   string
	At           time.Time
}

// Wallet is the prepaid balance used for managed AI usage
type Wallet struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Balance   float64   `json:"balance" db:"balance"`
	Currency  string    `json:"currency" db:"currency"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
