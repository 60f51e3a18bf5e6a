package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"desktop-license-server/config"
	"desktop-license-server/internal/auth"
	"desktop-license-server/internal/database"
	"desktop-license-server/internal/license"
	"desktop-license-server/internal/token"
)

func runCommand(cmd *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func mustRunCommand(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	output, err := runCommand(cmd, args...)
	require.NoError(t, err, output)
	return output
}

// useMemoryStore points the device commands at a seeded in-memory store
func useMemoryStore(t *testing.T) *database.MemoryStore {
	t.Helper()
	store := database.NewMemoryStore()
	require.NoError(t, store.PutLicense(&database.License{
		ID: "lic-1", UserID: "user-1", PlanTier: "pro", Status: "active", MaxDevices: 3,
	}))

	prev := openActivationStore
	openActivationStore = func(context.Context) (database.ActivationStore, func(), error) {
		return store, func() {}, nil
	}
	t.Cleanup(func() { openActivationStore = prev })
	return store
}

func seedActivation(t *testing.T, store *database.MemoryStore, deviceID string, at time.Time) *database.DeviceActivation {
	t.Helper()
	a, err := store.ActivateDevice(context.Background(), database.ActivateParams{
		LicenseID:      "lic-1",
		DeviceID:       deviceID,
		TokenID:        "jti-" + deviceID,
		TokenExpiresAt: at.Add(time.Hour),
		At:             at,
	})
	require.NoError(t, err)
	return a
}

// ============================================================================
// KEYS AND TOKENS
// ============================================================================

func TestKeygenCommandWritesKeyPair(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	output := mustRunCommand(t, RunKeygenCommand(), "--out", dir)
	assert.Contains(t, output, "Private key written to")
	assert.Contains(t, output, "Public key written to")

	privPEM, err := os.ReadFile(filepath.Join(dir, "signing_key.pem"))
	require.NoError(t, err)
	_, err = token.ParsePrivateKeyPEM(privPEM)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "signing_key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	pubPEM, err := os.ReadFile(filepath.Join(dir, "signing_key.pub.pem"))
	require.NoError(t, err)
	_, err = token.ParsePublicKeyPEM(pubPEM)
	require.NoError(t, err)

	_, err = runCommand(RunKeygenCommand(), "--out", dir)
	assert.ErrorContains(t, err, "already exists")

	mustRunCommand(t, RunKeygenCommand(), "--out", dir, "--force")
}

func TestKeygenCommandPrintsToStdout(t *testing.T) {
	output := mustRunCommand(t, RunKeygenCommand())
	assert.Contains(t, output, "BEGIN PRIVATE KEY")
	assert.Contains(t, output, "BEGIN PUBLIC KEY")
}

func TestInspectCommand(t *testing.T) {
	privPEM, pubPEM, err := token.GenerateKeyPair()
	require.NoError(t, err)
	pubPath := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o644))

	issue := func(t *testing.T, now time.Time) string {
		t.Helper()
		codec, err := token.NewCodec(privPEM, token.Options{
			Issuer: "desktop-license-server", TTL: time.Hour, Now: func() time.Time { return now },
		})
		require.NoError(t, err)
		issued, err := codec.Issue(token.NewClaims("user-1", "lic-1", "dev-1", license.PlanPro))
		require.NoError(t, err)
		return issued.Token
	}

	t.Run("valid token", func(t *testing.T) {
		output := mustRunCommand(t, RunInspectCommand(), "--public-key", pubPath, issue(t, time.Now()))
		assert.Contains(t, output, "Status:      valid")
		assert.Contains(t, output, "lic-1")
		assert.Contains(t, output, "dev-1")
		assert.Contains(t, output, "Managed AI:  true")
	})

	t.Run("expired token still shows claims", func(t *testing.T) {
		output := mustRunCommand(t, RunInspectCommand(), "--public-key", pubPath, issue(t, time.Now().Add(-3*time.Hour)))
		assert.Contains(t, output, "Status:      expired")
		assert.Contains(t, output, "dev-1")
	})

	t.Run("foreign key is rejected", func(t *testing.T) {
		_, otherPub, err := token.GenerateKeyPair()
		require.NoError(t, err)
		otherPath := filepath.Join(t.TempDir(), "other.pem")
		require.NoError(t, os.WriteFile(otherPath, otherPub, 0o644))

		output, err := runCommand(RunInspectCommand(), "--public-key", otherPath, issue(t, time.Now()))
		require.Error(t, err)
		assert.Contains(t, output, "Status:      bad_signature")
	})

	t.Run("public key required", func(t *testing.T) {
		_, err := runCommand(RunInspectCommand(), "--public-key", "", "x.y.z")
		assert.ErrorContains(t, err, "--public-key is required")
	})
}

func TestSessionCommandMintsValidCredential(t *testing.T) {
	secret := "session-secret-for-tests-0123456789"
	output := mustRunCommand(t, RunSessionCommand(), "--secret", secret, "--issuer", "web", "user-7", "user7@example.com")

	claims, err := auth.NewJWTManager(secret, "web", time.Hour).ValidateSessionToken(strings.TrimSpace(output))
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.UserID)
	assert.Equal(t, "user7@example.com", claims.Email)
}

func TestSessionCommandRequiresSecret(t *testing.T) {
	_, err := runCommand(RunSessionCommand(), "--secret", "", "user-7", "user7@example.com")
	assert.ErrorContains(t, err, "secret")
}

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	output := mustRunCommand(t, RunInitConfigCommand(), path)
	assert.Contains(t, output, "Sample configuration written to")

	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "desktop-license-server", cfg.TokenConfig.Issuer)

	_, err = runCommand(RunInitConfigCommand(), path)
	assert.ErrorContains(t, err, "already exists")

	mustRunCommand(t, RunInitConfigCommand(), path, "--force")
}

// ============================================================================
// DEVICE ADMINISTRATION
// ============================================================================

func TestSweepStaleCommand(t *testing.T) {
	store := useMemoryStore(t)
	now := time.Now().UTC()
	stale := seedActivation(t, store, "dev-old", now.Add(-60*24*time.Hour))
	fresh := seedActivation(t, store, "dev-new", now.Add(-time.Hour))

	output := mustRunCommand(t, RunSweepStaleCommand(), "720h")
	assert.Contains(t, output, "Deactivated 1 stale device(s)")

	ctx := context.Background()
	row, err := store.GetActivationByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, row.IsActive)
	require.NotNil(t, row.DeactivatedReason)
	assert.Equal(t, string(database.ReasonStaleTimeout), *row.DeactivatedReason)

	row, err = store.GetActivationByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, row.IsActive)
}

func TestSweepStaleCommandRejectsBadDuration(t *testing.T) {
	useMemoryStore(t)

	_, err := runCommand(RunSweepStaleCommand(), "soon")
	assert.ErrorContains(t, err, "invalid duration")

	_, err = runCommand(RunSweepStaleCommand(), "0s")
	assert.ErrorContains(t, err, "must be positive")
}

func TestRevokeCommand(t *testing.T) {
	store := useMemoryStore(t)
	a := seedActivation(t, store, "dev-1", time.Now().UTC())

	output := mustRunCommand(t, RunRevokeCommand(), a.ID)
	assert.Contains(t, output, "revoked")

	row, err := store.GetActivationByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, row.IsActive)
	require.NotNil(t, row.DeactivatedReason)
	assert.Equal(t, string(database.ReasonAdminRevoked), *row.DeactivatedReason)

	// Revoking twice is harmless
	mustRunCommand(t, RunRevokeCommand(), a.ID)

	_, err = runCommand(RunRevokeCommand(), "missing-id")
	assert.ErrorContains(t, err, "not found")
}
