package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"desktop-license-server/config"
	"desktop-license-server/internal/auth"
	"desktop-license-server/internal/database"
	"desktop-license-server/internal/devices"
	"desktop-license-server/internal/logging"
	"desktop-license-server/internal/token"
	"desktop-license-server/internal/version"
)

// Recorder receives operational counters. *metrics.Manager implements it.
type Recorder interface {
	TokenIssued(operation string)
	Activation(result string)
	Heartbeat()
	AdvisoryFailed(source string)
}

type nopRecorder struct{}

func (nopRecorder) TokenIssued(string)    {}
func (nopRecorder) Activation(string)     {}
func (nopRecorder) Heartbeat()            {}
func (nopRecorder) AdvisoryFailed(string) {}

// Settings are the protocol knobs taken from configuration
type Settings struct {
	GraceWindow         time.Duration // zero disables grace refresh
	HeartbeatInterval   time.Duration
	LowBalanceThreshold float64
	TrialEndingWindow   time.Duration
	AdvisoryTimeout     time.Duration
}

// SettingsFromConfig extracts Settings from the loaded configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		GraceWindow:         cfg.TokenConfig.GraceWindowOrDisabled(),
		HeartbeatInterval:   time.Duration(cfg.HeartbeatConfig.IntervalSeconds) * time.Second,
		LowBalanceThreshold: cfg.HeartbeatConfig.LowBalanceThreshold,
		TrialEndingWindow:   cfg.HeartbeatConfig.TrialEndingWindow,
		AdvisoryTimeout:     cfg.HeartbeatConfig.AdvisoryTimeout,
	}
}

// Deps are the collaborators of the Service
type Deps struct {
	Auth     *auth.Authenticator
	Devices  *devices.Service
	Licenses database.LicenseStore
	Wallets  database.WalletStore
	Codec    *token.Codec
	Gate     *version.Gate
	Catalog  *version.Catalog
}

// Service runs the activate, refresh, heartbeat and deactivate protocol
type Service struct {
	auth     *auth.Authenticator
	devices  *devices.Service
	licenses database.LicenseStore
	wallets  database.WalletStore
	codec    *token.Codec
	gate     *version.Gate
	catalog  *version.Catalog
	settings Settings
	recorder Recorder
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the base logger. Request loggers from the context take precedence.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates the orchestrator
func NewService(deps Deps, settings Settings, opts ...Option) *Service {
	if settings.HeartbeatInterval <= 0 {
		settings.HeartbeatInterval = 15 * time.Minute
	}
	if settings.AdvisoryTimeout <= 0 {
		settings.AdvisoryTimeout = 2 * time.Second
	}
	if deps.Gate == nil {
		deps.Gate = version.NewGate("0.0.0")
	}

	s := &Service{
		auth:     deps.Auth,
		devices:  deps.Devices,
		licenses: deps.Licenses,
		wallets:  deps.Wallets,
		codec:    deps.Codec,
		gate:     deps.Gate,
		catalog:  deps.Catalog,
		settings: settings,
		recorder: nopRecorder{},
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if logging.TraceIDFromContext(ctx) != "" {
		return logging.FromContext(ctx)
	}
	return &s.logger
}

// ============================================================================
// ACTIVATE
// ============================================================================

// ActivateRequest is the body of POST activate plus the request credential
type ActivateRequest struct {
	Credential auth.Credential
	DeviceID   string
	DeviceName string
	Platform   string
	AppVersion string
}

// ActivateResult is returned on successful activation
type ActivateResult struct {
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
	ActivationID   string    `json:"activation_id"`
	ActiveDevices  int       `json:"active_devices"`
	MaxDevices     int       `json:"max_devices"`
	UpdateRequired bool      `json:"update_required"`
}

// Activate registers a device with a session credential and returns its first token.
// The token is minted before the write so the activation row and its jti commit together.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*ActivateResult, error) {
	ac, err := s.auth.Authenticate(ctx, req.Credential, auth.AcceptSession)
	if err != nil {
		return nil, err
	}
	if req.Credential.DeviceID != "" && req.Credential.DeviceID != req.DeviceID {
		return nil, auth.ErrDeviceMismatch
	}
	if err := devices.ValidateDeviceID(req.DeviceID); err != nil {
		return nil, err
	}

	lic := ac.License
	if lic == nil {
		s.recorder.Activation("no_license")
		return nil, noLicenseError()
	}
	if !lic.Entitled() {
		s.recorder.Activation("inactive")
		return nil, inactiveLicenseError(lic.Status)
	}

	issued, err := s.codec.Issue(token.NewClaims(ac.UserID, lic.ID, req.DeviceID, lic.Tier()))
	if err != nil {
		return nil, err
	}

	activation, err := s.devices.Activate(ctx, devices.ActivateRequest{
		LicenseID: lic.ID,
		DeviceID:  req.DeviceID,
		Metadata: devices.Metadata{
			Name:       req.DeviceName,
			Platform:   req.Platform,
			AppVersion: req.AppVersion,
		},
		TokenID:        issued.ID,
		TokenExpiresAt: issued.ExpiresAt,
	})
	switch {
	case errors.Is(err, database.ErrDeviceLimitExceeded):
		s.recorder.Activation("device_limit")
		return nil, deviceLimitError(lic.DeviceCeiling())
	case errors.Is(err, database.ErrLicenseInactive):
		s.recorder.Activation("inactive")
		return nil, inactiveLicenseError(lic.Status)
	case errors.Is(err, database.ErrNotFound):
		s.recorder.Activation("no_license")
		return nil, noLicenseError()
	case err != nil:
		return nil, fmt.Errorf("activate device: %w", err)
	}

	count, err := s.devices.CountActive(ctx, lic.ID)
	if err != nil {
		s.log(ctx).Warn().Err(err).Str("license_id", lic.ID).Msg("Failed to count active devices")
	}

	s.recorder.Activation("success")
	s.recorder.TokenIssued("activate")
	s.log(ctx).Info().
		Str("user_id", ac.UserID).
		Str("license_id", lic.ID).
		Str("device_id", req.DeviceID).
		Str("jti", issued.ID).
		Msg("License token issued for activation")

	return &ActivateResult{
		Token:          issued.Token,
		ExpiresAt:      issued.ExpiresAt,
		ActivationID:   activation.ID,
		ActiveDevices:  count,
		MaxDevices:     lic.DeviceCeiling(),
		UpdateRequired: s.gate.UpdateRequired(req.AppVersion),
	}, nil
}

// ============================================================================
// REFRESH
// ============================================================================

// RefreshRequest is the body of POST refresh plus the request credentials
type RefreshRequest struct {
	Credential   auth.Credential
	SessionToken string // X-Session-Token, only consulted when the token has expired
	AppVersion   string
}

// RefreshResult carries the rotated token
type RefreshResult struct {
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
	UpdateRequired bool      `json:"update_required"`
	Grace          bool      `json:"grace,omitempty"`
}

// Refresh rotates the device's token after re-validating the license. An expired
// token is accepted together with a session credential within the grace window.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResult, error) {
	ac, err := s.auth.Authenticate(ctx, req.Credential, auth.AcceptToken|auth.RequireDevice)
	if errors.Is(err, auth.ErrTokenExpired) && req.SessionToken != "" && s.settings.GraceWindow > 0 {
		ac, err = s.resolveGrace(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	lic, err := s.entitledLicense(ctx, ac.LicenseID)
	if err != nil {
		return nil, err
	}
	if lic.UsageLimitReached {
		return nil, usageLimitError()
	}

	activation, err := s.activeDevice(ctx, ac)
	if err != nil {
		return nil, err
	}

	issued, err := s.codec.Issue(token.NewClaims(ac.UserID, lic.ID, ac.DeviceID, lic.Tier()))
	if err != nil {
		return nil, err
	}

	if err := s.devices.RecordRefresh(ctx, activation.ID, issued.ID, issued.ExpiresAt, req.AppVersion); err != nil {
		return nil, fmt.Errorf("record refresh: %w", err)
	}

	operation := "refresh"
	if ac.Via == auth.ViaGrace {
		operation = "grace_refresh"
	}
	s.recorder.TokenIssued(operation)
	s.log(ctx).Info().
		Str("license_id", lic.ID).
		Str("device_id", ac.DeviceID).
		Str("jti", issued.ID).
		Str("previous_jti", ac.Claims.ID).
		Str("operation", operation).
		Msg("License token rotated")

	return &RefreshResult{
		Token:          issued.Token,
		ExpiresAt:      issued.ExpiresAt,
		UpdateRequired: s.gate.UpdateRequired(req.AppVersion),
		Grace:          ac.Via == auth.ViaGrace,
	}, nil
}

func (s *Service) resolveGrace(ctx context.Context, req RefreshRequest) (*auth.AuthContext, error) {
	ac, exp, err := s.auth.ResolveExpired(ctx, req.Credential, req.SessionToken)
	if err != nil {
		return nil, err
	}
	if s.now().Sub(exp) > s.settings.GraceWindow {
		s.log(ctx).Info().
			Str("device_id", ac.DeviceID).
			Time("expired_at", exp).
			Msg("Grace refresh refused, token expired outside the grace window")
		return nil, graceExpiredError()
	}
	return ac, nil
}

// ============================================================================
// HEARTBEAT
// ============================================================================

// HeartbeatRequest is the optional telemetry a client reports
type HeartbeatRequest struct {
	Credential  auth.Credential
	AppVersion  string
	Arch        string
	UsageEvents int64
}

// HeartbeatResult acknowledges a heartbeat
type HeartbeatResult struct {
	Acknowledged           bool       `json:"acknowledged"`
	NextHeartbeatInSeconds int        `json:"next_heartbeat_in_seconds"`
	Messages               []Advisory `json:"messages"`
	UpdateRequired         bool       `json:"update_required"`
}

// Heartbeat records that the device is alive. It never reissues a token and
// advisory lookups cannot fail the call.
func (s *Service) Heartbeat(ctx context.Context, req HeartbeatRequest) (*HeartbeatResult, error) {
	ac, err := s.auth.Authenticate(ctx, req.Credential, auth.AcceptToken|auth.RequireDevice)
	if err != nil {
		return nil, err
	}

	activation, err := s.activeDevice(ctx, ac)
	if err != nil {
		return nil, err
	}

	if err := s.devices.Touch(ctx, activation.ID); err != nil {
		return nil, fmt.Errorf("touch activation: %w", err)
	}
	s.recorder.Heartbeat()

	var lic *database.License
	if req.UsageEvents > 0 {
		lic = s.recordUsage(ctx, ac.LicenseID, req.UsageEvents)
	}

	appVersion := req.AppVersion
	if appVersion == "" {
		appVersion = activation.AppVersion
	}

	messages := s.advisories(ctx, advisoryInput{
		userID:     ac.UserID,
		licenseID:  ac.LicenseID,
		license:    lic,
		managedAI:  ac.Claims.Entitlements.ManagedAI,
		platform:   activation.Platform,
		arch:       req.Arch,
		appVersion: appVersion,
	})

	return &HeartbeatResult{
		Acknowledged:           true,
		NextHeartbeatInSeconds: int(s.settings.HeartbeatInterval / time.Second),
		Messages:               messages,
		UpdateRequired:         s.gate.UpdateRequired(req.AppVersion),
	}, nil
}

// recordUsage increments usage counters. Failures are logged and swallowed.
func (s *Service) recordUsage(ctx context.Context, licenseID string, n int64) *database.License {
	ctx, cancel := context.WithTimeout(ctx, s.settings.AdvisoryTimeout)
	defer cancel()

	lic, err := s.licenses.IncrementUsage(ctx, licenseID, n)
	if err != nil {
		s.recorder.AdvisoryFailed("usage")
		s.log(ctx).Warn().Err(err).Str("license_id", licenseID).Int64("events", n).Msg("Failed to record usage")
		return nil
	}
	return lic
}

// ============================================================================
// DEACTIVATE
// ============================================================================

// Deactivate marks the calling device inactive. Other devices of the user are untouched.
func (s *Service) Deactivate(ctx context.Context, cred auth.Credential) error {
	ac, err := s.auth.Authenticate(ctx, cred, auth.AcceptAny)
	if err != nil {
		return err
	}
	if err := devices.ValidateDeviceID(ac.DeviceID); err != nil {
		return err
	}
	if ac.LicenseID == "" {
		return noLicenseError()
	}

	activation, err := s.devices.Lookup(ctx, ac.LicenseID, ac.DeviceID)
	if err != nil {
		return fmt.Errorf("lookup activation: %w", err)
	}
	if activation == nil {
		return unknownDeviceError(ac.DeviceID)
	}

	if err := s.devices.Deactivate(ctx, activation.ID, database.ReasonUserLogout); err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	return nil
}

// ============================================================================
// DEVICES
// ============================================================================

// DeviceList reports the license's active devices against its ceiling
type DeviceList struct {
	Devices       []*database.DeviceActivation `json:"devices"`
	ActiveDevices int                          `json:"active_devices"`
	MaxDevices    int                          `json:"max_devices"`
}

// Devices lists the active devices of the caller's license
func (s *Service) Devices(ctx context.Context, ac *auth.AuthContext) (*DeviceList, error) {
	lic := ac.License
	if lic == nil && ac.LicenseID != "" {
		var err error
		lic, err = s.licenses.GetLicenseByID(ctx, ac.LicenseID)
		if err != nil {
			return nil, fmt.Errorf("get license: %w", err)
		}
	}
	if lic == nil {
		return nil, noLicenseError()
	}

	list, err := s.devices.List(ctx, lic.ID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if list == nil {
		list = []*database.DeviceActivation{}
	}
	return &DeviceList{
		Devices:       list,
		ActiveDevices: len(list),
		MaxDevices:    lic.DeviceCeiling(),
	}, nil
}

// ============================================================================
// SHARED CHECKS
// ============================================================================

func (s *Service) entitledLicense(ctx context.Context, licenseID string) (*database.License, error) {
	lic, err := s.licenses.GetLicenseByID(ctx, licenseID)
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	if lic == nil {
		return nil, noLicenseError()
	}
	if !lic.Entitled() {
		return nil, inactiveLicenseError(lic.Status)
	}
	return lic, nil
}

// activeDevice loads the caller's activation and requires it to be active.
// A token older than the current one is still accepted.
func (s *Service) activeDevice(ctx context.Context, ac *auth.AuthContext) (*database.DeviceActivation, error) {
	activation, err := s.devices.Lookup(ctx, ac.LicenseID, ac.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("lookup activation: %w", err)
	}
	if activation == nil {
		return nil, unknownDeviceError(ac.DeviceID)
	}
	if !activation.IsActive {
		return nil, deactivatedDeviceError(ac.DeviceID)
	}
	if ac.Claims != nil && !activation.IsCurrentToken(ac.Claims.ID) {
		s.log(ctx).Info().
			Str("event", "token_superseded").
			Str("device_id", ac.DeviceID).
			Str("jti", ac.Claims.ID).
			Msg("Request used a superseded token")
	}
	return activation, nil
}
