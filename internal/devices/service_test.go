package devices

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"desktop-license-server/internal/database"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T, maxDevices int) (*Service, *database.MemoryStore, *fakeClock) {
	t.Helper()
	store := database.NewMemoryStore()
	require.NoError(t, store.PutLicense(&database.License{
		ID: "lic-1", UserID: "user-1", PlanTier: "pro", Status: "active", MaxDevices: maxDevices,
	}))
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewService(store, WithClock(clock.Now)), store, clock
}

func req(deviceID string) ActivateRequest {
	return ActivateRequest{
		LicenseID:      "lic-1",
		DeviceID:       deviceID,
		Metadata:       Metadata{Name: "  Laptop ", Platform: "Windows", AppVersion: "1.4.0"},
		TokenID:        "jti-" + deviceID,
		TokenExpiresAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

// ============================================================================
// ACTIVATION
// ============================================================================

func TestActivate_CeilingOfTwo(t *testing.T) {
	svc, _, _ := setup(t, 2)
	ctx := context.Background()

	a, err := svc.Activate(ctx, req("dev-a"))
	require.NoError(t, err)
	assert.Equal(t, "Laptop", a.DeviceName)
	assert.Equal(t, "windows", a.Platform)

	_, err = svc.Activate(ctx, req("dev-b"))
	require.NoError(t, err)

	_, err = svc.Activate(ctx, req("dev-c"))
	assert.ErrorIs(t, err, database.ErrDeviceLimitExceeded)

	again, err := svc.Activate(ctx, req("dev-a"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	n, err := svc.CountActive(ctx, "lic-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestActivate_RejectsBadInput(t *testing.T) {
	svc, _, _ := setup(t, 2)

	tests := []struct {
		name string
		mod  func(*ActivateRequest)
	}{
		{"empty device id", func(r *ActivateRequest) { r.DeviceID = "" }},
		{"device id with space", func(r *ActivateRequest) { r.DeviceID = "dev a" }},
		{"device id too long", func(r *ActivateRequest) { r.DeviceID = strings.Repeat("x", 129) }},
		{"control character", func(r *ActivateRequest) { r.DeviceID = "dev\x00" }},
		{"name too long", func(r *ActivateRequest) { r.Metadata.Name = strings.Repeat("n", 256) }},
		{"platform too long", func(r *ActivateRequest) { r.Metadata.Platform = strings.Repeat("p", 33) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := req("dev-a")
			tt.mod(&r)
			_, err := svc.Activate(context.Background(), r)
			assert.ErrorIs(t, err, ErrInvalidDevice)
		})
	}
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func TestTouch_OnlyMovesLastSeen(t *testing.T) {
	svc, store, clock := setup(t, 1)
	ctx := context.Background()

	a, err := svc.Activate(ctx, req("dev-a"))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	require.NoError(t, svc.Touch(ctx, a.ID))

	got, err := store.GetActivationByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSeenAt.Equal(clock.Now()))
	assert.True(t, got.IsCurrentToken("jti-dev-a"))
}

func TestRecordRefresh(t *testing.T) {
	svc, store, clock := setup(t, 1)
	ctx := context.Background()

	a, err := svc.Activate(ctx, req("dev-a"))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, svc.RecordRefresh(ctx, a.ID, "jti-2", clock.Now().Add(time.Hour), " 1.5.0 "))

	got, err := store.GetActivationByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCurrentToken("jti-2"))
	assert.Equal(t, "1.5.0", got.AppVersion)
	assert.True(t, got.LastSeenAt.Equal(clock.Now()))
}

func TestDeactivate_Idempotent(t *testing.T) {
	svc, _, _ := setup(t, 1)
	ctx := context.Background()

	a, err := svc.Activate(ctx, req("dev-a"))
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, a.ID, database.ReasonUserLogout))
	require.NoError(t, svc.Deactivate(ctx, a.ID, database.ReasonUserLogout))

	n, err := svc.CountActive(ctx, "lic-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := svc.Lookup(ctx, "lic-1", "dev-a")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, svc.Deactivate(ctx, "missing", database.ReasonUserLogout), database.ErrNotFound)
}

func TestSweepStale(t *testing.T) {
	svc, _, clock := setup(t, 3)
	ctx := context.Background()

	_, err := svc.Activate(ctx, req("dev-old"))
	require.NoError(t, err)
	clock.Advance(40 * 24 * time.Hour)
	_, err = svc.Activate(ctx, req("dev-new"))
	require.NoError(t, err)

	n, err := svc.SweepStale(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := svc.List(ctx, "lic-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "dev-new", list[0].DeviceID)

	_, err = svc.SweepStale(ctx, 0)
	assert.Error(t, err)
}
