package licensing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"desktop-license-server/config"
	"desktop-license-server/internal/auth"
	"desktop-license-server/internal/database"
	"desktop-license-server/internal/devices"
	"desktop-license-server/internal/license"
	"desktop-license-server/internal/token"
	"desktop-license-server/internal/version"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type countingRecorder struct {
	mu         sync.Mutex
	tokens     map[string]int
	activation map[string]int
	heartbeats int
	advisory   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{tokens: map[string]int{}, activation: map[string]int{}, advisory: map[string]int{}}
}

func (r *countingRecorder) TokenIssued(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[op]++
}

func (r *countingRecorder) Activation(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activation[result]++
}

func (r *countingRecorder) Heartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats++
}

func (r *countingRecorder) AdvisoryFailed(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advisory[source]++
}

// failingWallets makes every wallet lookup fail
type failingWallets struct{}

func (failingWallets) GetWalletByUserID(context.Context, string) (*database.Wallet, error) {
	return nil, errors.New("wallet service unavailable")
}

type harness struct {
	svc      *Service
	store    *database.MemoryStore
	codec    *token.Codec
	sessions *auth.JWTManager
	clock    *fakeClock
	rec      *countingRecorder
}

type harnessOption func(*Deps)

func newHarness(t *testing.T, lic *database.License, opts ...harnessOption) *harness {
	t.Helper()
	// Session credentials are validated against the wall clock, so the fake clock starts there.
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}

	priv, _, err := token.GenerateKeyPair()
	require.NoError(t, err)
	codec, err := token.NewCodec(priv, token.Options{
		Issuer: "license-server", TTL: time.Hour, ClockSkew: 30 * time.Second, Now: clock.Now,
	})
	require.NoError(t, err)

	store := database.NewMemoryStore()
	if lic != nil {
		require.NoError(t, store.PutLicense(lic))
	}

	sessions := auth.NewJWTManager("session-secret-for-tests-0123456789", "web", 24*time.Hour)
	gate := version.NewGate("1.3.0")
	deps := Deps{
		Auth:     auth.NewAuthenticator(sessions, codec, store),
		Devices:  devices.NewService(store, devices.WithClock(clock.Now)),
		Licenses: store,
		Wallets:  store,
		Codec:    codec,
		Gate:     gate,
		Catalog: version.NewCatalog(gate, []config.Release{
			{Platform: "windows", Arch: "amd64", Version: "1.6.0", URL: "https://dl.example.com/1.6.0.msi"},
		}),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	rec := newCountingRecorder()
	svc := NewService(deps, Settings{
		GraceWindow:         24 * time.Hour,
		HeartbeatInterval:   15 * time.Minute,
		LowBalanceThreshold: 5,
		TrialEndingWindow:   3 * 24 * time.Hour,
		AdvisoryTimeout:     time.Second,
	}, WithClock(clock.Now), WithRecorder(rec))

	return &harness{svc: svc, store: store, codec: codec, sessions: sessions, clock: clock, rec: rec}
}

func proLicense(maxDevices int) *database.License {
	return &database.License{
		ID: "lic-1", UserID: "user-1", PlanTier: "pro", Status: "active", MaxDevices: maxDevices,
	}
}

func (h *harness) session(t *testing.T, userID string) string {
	t.Helper()
	s, err := h.sessions.GenerateSessionToken(auth.UserClaims{UserID: userID, Email: userID + "@example.com"})
	require.NoError(t, err)
	return s
}

func (h *harness) activate(t *testing.T, deviceID string) *ActivateResult {
	t.Helper()
	res, err := h.svc.Activate(context.Background(), ActivateRequest{
		Credential: auth.Credential{Bearer: h.session(t, "user-1")},
		DeviceID:   deviceID,
		DeviceName: "Workstation",
		Platform:   "windows",
		AppVersion: "1.4.0",
	})
	require.NoError(t, err)
	return res
}

func tokenCred(tok, deviceID string) auth.Credential {
	return auth.Credential{Bearer: tok, DeviceID: deviceID}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var limitErr *LimitError
	var stateErr *StateError
	var authErr auth.AuthError
	switch {
	case errors.As(err, &limitErr):
		assert.Equal(t, code, limitErr.Code)
	case errors.As(err, &stateErr):
		assert.Equal(t, code, stateErr.Code)
	case errors.As(err, &authErr):
		assert.Equal(t, code, authErr.Code)
	default:
		t.Fatalf("unexpected error type %T: %v", err, err)
	}
}

// ============================================================================
// FULL LIFECYCLE
// ============================================================================

func TestLifecycle_ActivateRefreshHeartbeatDeactivate(t *testing.T) {
	h := newHarness(t, proLicense(2))
	ctx := context.Background()

	act := h.activate(t, "dev-a")
	require.NotEmpty(t, act.Token)
	require.NotEmpty(t, act.ActivationID)
	assert.Equal(t, 1, act.ActiveDevices)
	assert.Equal(t, 2, act.MaxDevices)
	assert.True(t, act.ExpiresAt.Equal(h.clock.Now().Add(time.Hour)))

	h.clock.Advance(30 * time.Minute)
	ref, err := h.svc.Refresh(ctx, RefreshRequest{Credential: tokenCred(act.Token, "dev-a"), AppVersion: "1.4.1"})
	require.NoError(t, err)
	assert.NotEqual(t, act.Token, ref.Token)
	assert.False(t, ref.Grace)

	t1, err := h.codec.Verify(act.Token)
	require.NoError(t, err)
	t2, err := h.codec.Verify(ref.Token)
	require.NoError(t, err)
	row, err := h.store.GetActivation(ctx, "lic-1", "dev-a")
	require.NoError(t, err)
	assert.True(t, row.IsCurrentToken(t2.ID))
	assert.False(t, row.IsCurrentToken(t1.ID))
	assert.Equal(t, "1.4.1", row.AppVersion)

	hb, err := h.svc.Heartbeat(ctx, HeartbeatRequest{Credential: tokenCred(ref.Token, "dev-a")})
	require.NoError(t, err)
	assert.True(t, hb.Acknowledged)
	assert.Equal(t, 900, hb.NextHeartbeatInSeconds)
	row, err = h.store.GetActivation(ctx, "lic-1", "dev-a")
	require.NoError(t, err)
	assert.True(t, row.IsCurrentToken(t2.ID), "heartbeat does not rotate the token")

	require.NoError(t, h.svc.Deactivate(ctx, tokenCred(ref.Token, "dev-a")))

	_, err = h.svc.Refresh(ctx, RefreshRequest{Credential: tokenCred(ref.Token, "dev-a")})
	requireCode(t, err, CodeLicenseInactive)
	assert.ErrorIs(t, err, ErrLicenseInactive)
	assert.ErrorIs(t, err, ErrDeviceDeactivated)

	_, err = h.svc.Heartbeat(ctx, HeartbeatRequest{Credential: tokenCred(ref.Token, "dev-a")})
	requireCode(t, err, CodeLicenseInactive)

	assert.Equal(t, 1, h.rec.tokens["activate"])
	assert.Equal(t, 1, h.rec.tokens["refresh"])
	assert.Equal(t, 1, h.rec.heartbeats)
}

func TestReactivationAfterDeactivate(t *testing.T) {
	h := newHarness(t, proLicense(1))
	ctx := context.Background()

	first := h.activate(t, "dev-a")
	require.NoError(t, h.svc.Deactivate(ctx, tokenCred(first.Token, "dev-a")))
	require.NoError(t, h.svc.Deactivate(ctx, tokenCred(first.Token, "dev-a")), "deactivate is idempotent")

	second := h.activate(t, "dev-a")
	assert.Equal(t, first.ActivationID, second.ActivationID)

	_, err := h.svc.Refresh(ctx, RefreshRequest{Credential: tokenCred(second.Token, "dev-a")})
	assert.NoError(t, err)
}

// ============================================================================
// ACTIVATE
// ============================================================================

func TestActivate_DeviceCeiling(t *testing.T) {
	h := newHarness(t, proLicense(2))

	a := h.activate(t, "dev-a")
	h.activate(t, "dev-b")

	_, err := h.svc.Activate(context.Background(), ActivateRequest{
		Credential: auth.Credential{Bearer: h.session(t, "user-1")},
		DeviceID:   "dev-c",
	})
	requireCode(t, err, CodeDeviceLimitExceeded)
	assert.ErrorIs(t, err, database.ErrDeviceLimitExceeded)
	assert.Equal(t, 1, h.rec.activation["device_limit"])

	again := h.activate(t, "dev-a")
	assert.Equal(t, a.ActivationID, again.ActivationID)
	assert.Equal(t, 2, again.ActiveDevices)
}

func TestActivate_ReportsTierDefaultCeiling(t *testing.T) {
	h := newHarness(t, proLicense(0))

	act := h.activate(t, "dev-a")
	assert.Equal(t, 3, act.MaxDevices)

	list, err := h.svc.Devices(context.Background(), &auth.AuthContext{LicenseID: "lic-1", DeviceID: "dev-a", Via: auth.ViaToken})
	require.NoError(t, err)
	assert.Equal(t, 3, list.MaxDevices)
}

func TestActivate_Rejections(t *testing.T) {
	t.Run("license token instead of session", func(t *testing.T) {
		h := newHarness(t, proLicense(2))
		act := h.activate(t, "dev-a")
		_, err := h.svc.Activate(context.Background(), ActivateRequest{
			Credential: tokenCred(act.Token, "dev-a"),
			DeviceID:   "dev-a",
		})
		requireCode(t, err, "FORBIDDEN")
	})

	t.Run("no license", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.svc.Activate(context.Background(), ActivateRequest{
			Credential: auth.Credential{Bearer: h.session(t, "user-1")},
			DeviceID:   "dev-a",
		})
		requireCode(t, err, CodeNoLicense)
	})

	t.Run("cancelled license", func(t *testing.T) {
		lic := proLicense(2)
		lic.Status = "cancelled"
		h := newHarness(t, lic)
		_, err := h.svc.Activate(context.Background(), ActivateRequest{
			Credential: auth.Credential{Bearer: h.session(t, "user-1")},
			DeviceID:   "dev-a",
		})
		requireCode(t, err, CodeLicenseInactive)
		assert.ErrorIs(t, err, ErrLicenseInactive)
	})

	t.Run("device header disagrees with body", func(t *testing.T) {
		h := newHarness(t, proLicense(2))
		_, err := h.svc.Activate(context.Background(), ActivateRequest{
			Credential: auth.Credential{Bearer: h.session(t, "user-1"), DeviceID: "dev-b"},
			DeviceID:   "dev-a",
		})
		requireCode(t, err, "DEVICE_MISMATCH")
	})

	t.Run("missing device id", func(t *testing.T) {
		h := newHarness(t, proLicense(2))
		_, err := h.svc.Activate(context.Background(), ActivateRequest{
			Credential: auth.Credential{Bearer: h.session(t, "user-1")},
		})
		assert.ErrorIs(t, err, devices.ErrInvalidDevice)
	})
}

func TestActivate_FlagsOutdatedClient(t *testing.T) {
	h := newHarness(t, proLicense(2))
	res, err := h.svc.Activate(context.Background(), ActivateRequest{
		Credential: auth.Credential{Bearer: h.session(t, "user-1")},
		DeviceID:   "dev-a",
		AppVersion: "1.2.0",
	})
	require.NoError(t, err)
	assert.True(t, res.UpdateRequired)
}

// ============================================================================
// REFRESH
// ============================================================================

func TestRefresh_RevalidatesLicense(t *testing.T) {
	h := newHarness(t, proLicense(2))
	act := h.activate(t, "dev-a")

	suspended := proLicense(2)
	suspended.Status = "suspended"
	require.NoError(t, h.store.PutLicense(suspended))

	_, err := h.svc.Refresh(context.Background(), RefreshRequest{Credential: tokenCred(act.Token, "dev-a")})
	requireCode(t, err, CodeLicenseInactive)
	assert.NotErrorIs(t, err, ErrDeviceDeactivated)
}

func TestRefresh_UsageLimitReached(t *testing.T) {
	h := newHarness(t, proLicense(2))
	act := h.activate(t, "dev-a")

	limited := proLicense(2)
	limited.UsageLimitReached = true
	require.NoError(t, h.store.PutLicense(limited))

	_, err := h.svc.Refresh(context.Background(), RefreshRequest{Credential: tokenCred(act.Token, "dev-a")})
	requireCode(t, err, CodeUsageLimitReached)
}

func TestRefresh_PicksUpPlanChange(t *testing.T) {
	h := newHarness(t, proLicense(2))
	act := h.activate(t, "dev-a")

	upgraded := proLicense(2)
	upgraded.PlanTier = "enterprise"
	require.NoError(t, h.store.PutLicense(upgraded))

	ref, err := h.svc.Refresh(context.Background(), RefreshRequest{Credential: tokenCred(act.Token, "dev-a")})
	require.NoError(t, err)
	claims, err := h.codec.Verify(ref.Token)
	require.NoError(t, err)
	assert.Equal(t, string(license.PlanEnterprise), claims.PlanTier)
	assert.True(t, claims.Entitlements.HasFeature("sso"))
}

func TestRefresh_SupersededTokenStillAccepted(t *testing.T) {
	h := newHarness(t, proLicense(2))
	act := h.activate(t, "dev-a")

	_, err := h.svc.Refresh(context.Background(), RefreshRequest{Credential: tokenCred(act.Token, "dev-a")})
	require.NoError(t, err)

	_, err = h.svc.Refresh(context.Background(), RefreshRequest{Credential: tokenCred(act.Token, "dev-a")})
	assert.NoError(t, err)
}

func TestRefresh_Grace(t *testing.T) {
	h := newHarness(t, proLicense(2))
	act := h.activate(t, "dev-a")
	h.clock.Advance(3 * time.Hour)

	_, err := h.svc.Refresh(context.Background(), RefreshRequest{Credential: tokenCred(act.Token, "dev-a")})
	requireCode(t, err, "TOKEN_EXPIRED")

	res, err := h.svc.Refresh(context.Background(), RefreshRequest{
		Credential:   tokenCred(act.Token, "dev-a"),
		SessionToken: h.session(t, "user-1"),
	})
	require.NoError(t, err)
	assert.True(t, res.Grace)
	assert.Equal(t, 1, h.rec.tokens["grace_refresh"])

	_, err = h.codec.Verify(res.Token)
	assert.NoError(t, err)
}

func TestRefresh_GraceBounds(t *testing.T) {
	t.Run("outside the window", func(t *testing.T) {
		h := newHarness(t, proLicense(2))
		act := h.activate(t, "dev-a")
		h.clock.Advance(time.Hour + 24*time.Hour + time.Second)

		_, err := h.svc.Refresh(context.Background(), RefreshRequest{
			Credential:   tokenCred(act.Token, "dev-a"),
			SessionToken: h.session(t, "user-1"),
		})
		requireCode(t, err, CodeGraceExpired)
		assert.ErrorIs(t, err, ErrGraceExpired)
	})

	t.Run("grace disabled", func(t *testing.T) {
		h := newHarness(t, proLicense(2))
		h.svc.settings.GraceWindow = 0
		act := h.activate(t, "dev-a")
		h.clock.Advance(2 * time.Hour)

		_, err := h.svc.Refresh(context.Background(), RefreshRequest{
			Credential:   tokenCred(act.Token, "dev-a"),
			SessionToken: h.session(t, "user-1"),
		})
		requireCode(t, err, "TOKEN_EXPIRED")
		assert.Zero(t, h.rec.tokens["grace_refresh"])
	})

	t.Run("session of another user", func(t *testing.T) {
		h := newHarness(t, proLicense(2))
		act := h.activate(t, "dev-a")
		h.clock.Advance(2 * time.Hour)

		_, err := h.svc.Refresh(context.Background(), RefreshRequest{
			Credential:   tokenCred(act.Token, "dev-a"),
			SessionToken: h.session(t, "user-2"),
		})
		requireCode(t, err, "FORBIDDEN")
	})

	t.Run("tampered token never reaches grace", func(t *testing.T) {
		h := newHarness(t, proLicense(2))
		act := h.activate(t, "dev-a")
		h.clock.Advance(2 * time.Hour)

		_, err := h.svc.Refresh(context.Background(), RefreshRequest{
			Credential:   tokenCred(act.Token+"x", "dev-a"),
			SessionToken: h.session(t, "user-1"),
		})
		requireCode(t, err, "INVALID_TOKEN")
	})

	t.Run("deactivated device", func(t *testing.T) {
		h := newHarness(t, proLicense(2))
		act := h.activate(t, "dev-a")
		require.NoError(t, h.svc.Deactivate(context.Background(), tokenCred(act.Token, "dev-a")))
		h.clock.Advance(2 * time.Hour)

		_, err := h.svc.Refresh(context.Background(), RefreshRequest{
			Credential:   tokenCred(act.Token, "dev-a"),
			SessionToken: h.session(t, "user-1"),
		})
		requireCode(t, err, CodeLicenseInactive)
	})
}

func TestRefreshAndHeartbeat_RequireDeviceHeader(t *testing.T) {
	h := newHarness(t, proLicense(2))
	act := h.activate(t, "dev-a")
	noHeader := auth.Credential{Bearer: act.Token}

	_, err := h.svc.Refresh(context.Background(), RefreshRequest{Credential: noHeader})
	requireCode(t, err, "DEVICE_REQUIRED")

	_, err = h.svc.Heartbeat(context.Background(), HeartbeatRequest{Credential: noHeader})
	requireCode(t, err, "DEVICE_REQUIRED")

	h.clock.Advance(2 * time.Hour)
	_, err = h.svc.Refresh(context.Background(), RefreshRequest{Credential: noHeader, SessionToken: h.session(t, "user-1")})
	requireCode(t, err, "DEVICE_REQUIRED")
}

func TestSettingsFromConfig_NegativeGraceDisables(t *testing.T) {
	cfg := &config.Config{TokenConfig: config.TokenConfig{GraceWindow: -time.Second}}
	assert.Zero(t, SettingsFromConfig(cfg).GraceWindow)

	cfg.TokenConfig.GraceWindow = 6 * time.Hour
	assert.Equal(t, 6*time.Hour, SettingsFromConfig(cfg).GraceWindow)
}

func TestRefresh_UnknownDevice(t *testing.T) {
	h := newHarness(t, proLicense(2))
	issued, err := h.codec.Issue(token.NewClaims("user-1", "lic-1", "dev-ghost", license.PlanPro))
	require.NoError(t, err)

	_, err = h.svc.Refresh(context.Background(), RefreshRequest{Credential: tokenCred(issued.Token, "dev-ghost")})
	requireCode(t, err, CodeUnknownDevice)
}

// ============================================================================
// HEARTBEAT
// ============================================================================

func advisoryTypes(msgs []Advisory) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

func TestHeartbeat_Advisories(t *testing.T) {
	trialEnds := time.Now().UTC().Add(36 * time.Hour)
	lic := &database.License{
		ID: "lic-1", UserID: "user-1", PlanTier: "trial", Status: "trial", MaxDevices: 1,
		UsageLimit: 10, TrialEndsAt: &trialEnds,
	}
	h := newHarness(t, lic)
	h.store.PutWallet(&database.Wallet{UserID: "user-1", Balance: 1.5, Currency: "USD"})

	act := h.activate(t, "dev-a")

	hb, err := h.svc.Heartbeat(context.Background(), HeartbeatRequest{
		Credential:  tokenCred(act.Token, "dev-a"),
		AppVersion:  "1.4.0",
		Arch:        "amd64",
		UsageEvents: 10,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		AdvisoryUsageLimitReached, AdvisoryTrialEnding, AdvisoryLowBalance, AdvisoryUpdateAvailable,
	}, advisoryTypes(hb.Messages))
	assert.False(t, hb.UpdateRequired)

	stored, err := h.store.GetLicenseByID(context.Background(), "lic-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.UsageCount)
}

func TestHeartbeat_AdvisoryFailureDegradesToFewerMessages(t *testing.T) {
	h := newHarness(t, proLicense(1), func(d *Deps) { d.Wallets = failingWallets{} })
	act := h.activate(t, "dev-a")

	hb, err := h.svc.Heartbeat(context.Background(), HeartbeatRequest{Credential: tokenCred(act.Token, "dev-a")})
	require.NoError(t, err)
	assert.True(t, hb.Acknowledged)
	assert.NotNil(t, hb.Messages)
	assert.Empty(t, hb.Messages)
	assert.Equal(t, 1, h.rec.advisory["wallet"])
}

func TestHeartbeat_OutdatedClientStillAcknowledged(t *testing.T) {
	h := newHarness(t, proLicense(1))
	act := h.activate(t, "dev-a")

	hb, err := h.svc.Heartbeat(context.Background(), HeartbeatRequest{
		Credential: tokenCred(act.Token, "dev-a"),
		AppVersion: "1.0.0",
	})
	require.NoError(t, err)
	assert.True(t, hb.Acknowledged)
	assert.True(t, hb.UpdateRequired)
}

func TestHeartbeat_RequiresLicenseToken(t *testing.T) {
	h := newHarness(t, proLicense(1))
	_, err := h.svc.Heartbeat(context.Background(), HeartbeatRequest{
		Credential: auth.Credential{Bearer: h.session(t, "user-1"), DeviceID: "dev-a"},
	})
	requireCode(t, err, "FORBIDDEN")
}

func TestHeartbeat_TouchesLastSeen(t *testing.T) {
	h := newHarness(t, proLicense(1))
	act := h.activate(t, "dev-a")
	h.clock.Advance(10 * time.Minute)

	_, err := h.svc.Heartbeat(context.Background(), HeartbeatRequest{Credential: tokenCred(act.Token, "dev-a")})
	require.NoError(t, err)

	row, err := h.store.GetActivation(context.Background(), "lic-1", "dev-a")
	require.NoError(t, err)
	assert.True(t, row.LastSeenAt.Equal(h.clock.Now()))
}

// ============================================================================
// DEACTIVATE AND LISTING
// ============================================================================

func TestDeactivate_OnlyThisDevice(t *testing.T) {
	h := newHarness(t, proLicense(3))
	ctx := context.Background()
	h.activate(t, "dev-a")
	h.activate(t, "dev-b")

	err := h.svc.Deactivate(ctx, auth.Credential{Bearer: h.session(t, "user-1"), DeviceID: "dev-a"})
	require.NoError(t, err)

	n, err := h.store.CountActiveActivations(ctx, "lic-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = h.svc.Deactivate(ctx, auth.Credential{Bearer: h.session(t, "user-1")})
	assert.ErrorIs(t, err, devices.ErrInvalidDevice, "session deactivation needs a device header")

	err = h.svc.Deactivate(ctx, auth.Credential{Bearer: h.session(t, "user-1"), DeviceID: "dev-zzz"})
	requireCode(t, err, CodeUnknownDevice)
}

func TestDevices_Listing(t *testing.T) {
	h := newHarness(t, proLicense(3))
	a := h.activate(t, "dev-a")
	h.activate(t, "dev-b")

	list, err := h.svc.Devices(context.Background(), &auth.AuthContext{LicenseID: "lic-1", DeviceID: "dev-a", Via: auth.ViaToken})
	require.NoError(t, err)
	assert.Equal(t, 2, list.ActiveDevices)
	assert.Equal(t, 3, list.MaxDevices)

	require.NoError(t, h.svc.Deactivate(context.Background(), tokenCred(a.Token, "dev-a")))
	list, err = h.svc.Devices(context.Background(), &auth.AuthContext{LicenseID: "lic-1"})
	require.NoError(t, err)
	require.Len(t, list.Devices, 1)
	assert.Equal(t, "dev-b", list.Devices[0].DeviceID)

	_, err = h.svc.Devices(context.Background(), &auth.AuthContext{UserID: "user-9"})
	requireCode(t, err, CodeNoLicense)
}

func TestErrorStatuses(t *testing.T) {
	assert.Equal(t, 429, RateLimited(time.Second).HTTPStatus())
	assert.Equal(t, 403, deviceLimitError(2).HTTPStatus())
	assert.Equal(t, 403, usageLimitError().HTTPStatus())
	assert.Equal(t, 403, inactiveLicenseError("cancelled").HTTPStatus())
	assert.Equal(t, 404, unknownDeviceError("d").HTTPStatus())
	assert.Equal(t, 401, graceExpiredError().HTTPStatus())
	assert.Equal(t, 403, noLicenseError().HTTPStatus())
}
