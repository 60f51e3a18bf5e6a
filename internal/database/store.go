package database

import (
	"context"
	"time"
)

// LicenseStore reads license records and maintains their usage counters.
// Lookups return nil, nil when no row exists.
type LicenseStore interface {
	GetLicenseByID(ctx context.Context, licenseID string) (*License, error)
	GetLicenseByUserID(ctx context.Context, userID string) (*License, error)
	IncrementUsage(ctx context.Context, licenseID string, n int64) (*License, error)
}

// ActivationStore persists device activations.
type ActivationStore interface {
	// ActivateDevice checks license status and the device ceiling and upserts the
	// activation with its token bookkeeping in one atomic step.
	ActivateDevice(ctx context.Context, p ActivateParams) (*DeviceActivation, error)
	GetActivation(ctx context.Context, licenseID, deviceID string) (*DeviceActivation, error)
	GetActivationByID(ctx context.Context, activationID string) (*DeviceActivation, error)
	ListActiveActivations(ctx context.Context, licenseID string) ([]*DeviceActivation, error)
	CountActiveActivations(ctx context.Context, licenseID string) (int, error)
	TouchActivation(ctx context.Context, activationID string, at time.Time) error
	RecordTokenIssued(ctx context.Context, rec TokenRecord) error
	// DeactivateActivation returns false when the row was already inactive.
	DeactivateActivation(ctx context.Context, activationID string, reason DeactivationReason, at time.Time) (bool, error)
	DeactivateStale(ctx context.Context, lastSeenBefore time.Time, at time.Time) (int, error)
}

// WalletStore reads prepaid balances
type WalletStore interface {
	GetWalletByUserID(ctx context.Context, userID string) (*Wallet, error)
}

// Store is everything the license service needs from persistence
type Store interface {
	LicenseStore
	ActivationStore
	WalletStore
	HealthCheck(ctx context.Context) error
}
