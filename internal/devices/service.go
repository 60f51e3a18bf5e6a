package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"desktop-license-server/internal/database"
)

// ErrInvalidDevice is returned for device ids or metadata that fail boundary checks
var ErrInvalidDevice = errors.New("invalid device")

const (
	maxDeviceIDLen   = 128
	maxDeviceNameLen = 255
	maxPlatformLen   = 32
	maxVersionLen    = 64
)

// Metadata is what the client reports about itself at activation
type Metadata struct {
	Name       string
	Platform   string
	AppVersion string
}

// ActivateRequest carries one activation attempt and the token minted for it
type ActivateRequest struct {
	LicenseID      string
	DeviceID       string
	Metadata       Metadata
	TokenID        string
	TokenExpiresAt time.Time
}

// Service enforces the device lifecycle on top of an ActivationStore
type Service struct {
	store  database.ActivationStore
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a device service
func NewService(store database.ActivationStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateDeviceID checks a client-generated device identifier
func ValidateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDevice)
	}
	if len(id) > maxDeviceIDLen {
		return fmt.Errorf("%w: device_id longer than %d bytes", ErrInvalidDevice, maxDeviceIDLen)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("%w: device_id contains whitespace or control characters", ErrInvalidDevice)
		}
	}
	return nil
}

func (m Metadata) normalize() (Metadata, error) {
	out := Metadata{
		Name:       strings.TrimSpace(m.Name),
		Platform:   strings.ToLower(strings.TrimSpace(m.Platform)),
		AppVersion: strings.TrimSpace(m.AppVersion),
	}
	switch {
	case len(out.Name) > maxDeviceNameLen:
		return out, fmt.Errorf("%w: device_name too long", ErrInvalidDevice)
	case len(out.Platform) > maxPlatformLen:
		return out, fmt.Errorf("%w: platform too long", ErrInvalidDevice)
	case len(out.AppVersion) > maxVersionLen:
		return out, fmt.Errorf("%w: app_version too long", ErrInvalidDevice)
	}
	return out, nil
}

// Activate registers the device under the license, or refreshes an existing
// active row. The ceiling check and the upsert are atomic in the store.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*database.DeviceActivation, error) {
	if err := ValidateDeviceID(req.DeviceID); err != nil {
		return nil, err
	}
	meta, err := req.Metadata.normalize()
	if err != nil {
		return nil, err
	}

	activation, err := s.store.ActivateDevice(ctx, database.ActivateParams{
		LicenseID:      req.LicenseID,
		DeviceID:       req.DeviceID,
		DeviceName:     meta.Name,
		Platform:       meta.Platform,
		AppVersion:     meta.AppVersion,
		TokenID:        req.TokenID,
		TokenExpiresAt: req.TokenExpiresAt,
		At:             s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("license_id", req.LicenseID).
		Str("device_id", req.DeviceID).
		Str("activation_id", activation.ID).
		Msg("Device activated")
	return activation, nil
}

// Lookup returns the activation row for a (license, device) pair, or nil
func (s *Service) Lookup(ctx context.Context, licenseID, deviceID string) (*database.DeviceActivation, error) {
	return s.store.GetActivation(ctx, licenseID, deviceID)
}

// Touch updates last_seen_at only
func (s *Service) Touch(ctx context.Context, activationID string) error {
	return s.store.TouchActivation(ctx, activationID, s.now().UTC())
}

// RecordRefresh stores the newly issued jti/exp and bumps last_seen_at
func (s *Service) RecordRefresh(ctx context.Context, activationID, jti string, exp time.Time, appVersion string) error {
	appVersion = strings.TrimSpace(appVersion)
	if len(appVersion) > maxVersionLen {
		appVersion = ""
	}
	return s.store.RecordTokenIssued(ctx, database.TokenRecord{
		ActivationID: activationID,
		TokenID:      jti,
		ExpiresAt:    exp,
		AppVersion:   appVersion,
		At:           s.now().UTC(),
	})
}

// Deactivate soft-deletes the activation. Deactivating an inactive row succeeds without changes.
func (s *Service) Deactivate(ctx context.Context, activationID string, reason database.DeactivationReason) error {
	changed, err := s.store.DeactivateActivation(ctx, activationID, reason, s.now().UTC())
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info().
			Str("activation_id", activationID).
			Str("reason", string(reason)).
			Msg("Device deactivated")
	}
	return nil
}

// CountActive returns the number of active devices for a license
func (s *Service) CountActive(ctx context.Context, licenseID string) (int, error) {
	return s.store.CountActiveActivations(ctx, licenseID)
}

// List returns the license's active devices
func (s *Service) List(ctx context.Context, licenseID string) ([]*database.DeviceActivation, error) {
	return s.store.ListActiveActivations(ctx, licenseID)
}

// SweepStale deactivates devices not seen within maxIdle
func (s *Service) SweepStale(ctx context.Context, maxIdle time.Duration) (int, error) {
	if maxIdle <= 0 {
		return 0, fmt.Errorf("idle duration must be positive")
	}
	now := s.now().UTC()
	n, err := s.store.DeactivateStale(ctx, now.Add(-maxIdle), now)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int("deactivated", n).Dur("max_idle", maxIdle).Msg("Stale device sweep finished")
	return n, nil
}
