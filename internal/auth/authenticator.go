package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"desktop-license-server/internal/database"
	"desktop-license-server/internal/logging"
	"desktop-license-server/internal/token"
)

// Authenticator resolves bearer credentials into an AuthContext. It reads
// license records but never mutates state.
type Authenticator struct {
	sessions *JWTManager
	codec    *token.Codec
	licenses database.LicenseStore
	logger   zerolog.Logger
	onFail   func(code string)
}

// AuthenticatorOption configures an Authenticator
type AuthenticatorOption func(*Authenticator)

// WithAuthLogger sets the logger
func WithAuthLogger(logger zerolog.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.logger = logger }
}

// WithFailureHook is called with the error code of every rejected credential
func WithFailureHook(fn func(code string)) AuthenticatorOption {
	return func(a *Authenticator) { a.onFail = fn }
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(sessions *JWTManager, codec *token.Codec, licenses database.LicenseStore, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		sessions: sessions,
		codec:    codec,
		licenses: licenses,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BearerFromHeader extracts the credential from an Authorization header value
func BearerFromHeader(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// credentialKind peeks at the unverified header to route the credential.
// Nothing read here is trusted until the matching verifier accepts it.
func credentialKind(bearer string) (Via, error) {
	t, _, err := jwt.NewParser().ParseUnverified(bearer, jwt.MapClaims{})
	if err != nil {
		return "", ErrInvalidToken
	}
	switch t.Method.Alg() {
	case token.Algorithm:
		return ViaToken, nil
	case jwt.SigningMethodHS256.Alg():
		return ViaSession, nil
	default:
		return "", ErrInvalidToken
	}
}

// Authenticate verifies cred and resolves the caller. accept limits which
// credential kinds the operation takes; other kinds fail with ErrForbidden.
func (a *Authenticator) Authenticate(ctx context.Context, cred Credential, accept Accept) (*AuthContext, error) {
	ac, err := a.authenticate(ctx, cred, accept)
	if err != nil {
		a.fail(err, cred)
		return nil, err
	}
	return ac, nil
}

func (a *Authenticator) authenticate(ctx context.Context, cred Credential, accept Accept) (*AuthContext, error) {
	if cred.Bearer == "" {
		return nil, ErrUnauthenticated
	}

	kind, err := credentialKind(cred.Bearer)
	if err != nil {
		return nil, err
	}

	switch kind {
	case ViaSession:
		if accept&AcceptSession == 0 {
			return nil, AuthError{Code: ErrForbidden.Code, Message: "this operation requires a license token"}
		}
		return a.fromSession(ctx, cred)
	default:
		if accept&AcceptToken == 0 {
			return nil, AuthError{Code: ErrForbidden.Code, Message: "this operation requires a signed-in session"}
		}
		return a.fromToken(cred, accept&RequireDevice != 0)
	}
}

func (a *Authenticator) fromSession(ctx context.Context, cred Credential) (*AuthContext, error) {
	user, err := a.sessions.ValidateSessionToken(cred.Bearer)
	if err != nil {
		return nil, err
	}

	lic, err := a.licenses.GetLicenseByUserID(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve license: %w", err)
	}

	ac := &AuthContext{
		UserID:   user.UserID,
		Email:    user.Email,
		DeviceID: cred.DeviceID,
		Via:      ViaSession,
		License:  lic,
	}
	if lic != nil {
		ac.LicenseID = lic.ID
	}
	return ac, nil
}

func (a *Authenticator) fromToken(cred Credential, requireDevice bool) (*AuthContext, error) {
	claims, err := a.codec.Verify(cred.Bearer)
	if err != nil {
		return nil, mapVerifyError(err)
	}
	if requireDevice && cred.DeviceID == "" {
		return nil, ErrDeviceRequired
	}
	if cred.DeviceID != "" && cred.DeviceID != claims.DeviceID {
		return nil, ErrDeviceMismatch
	}

	return &AuthContext{
		UserID:    claims.UserID(),
		LicenseID: claims.LicenseID,
		DeviceID:  claims.DeviceID,
		Via:       ViaToken,
		Claims:    claims,
	}, nil
}

// ResolveExpired authenticates a grace request: an expired but authentic license
// token accompanied by a valid session credential for the same user and the
// device header of the same device. It returns the token's expiry so the caller
// can bound how stale the token may be.
func (a *Authenticator) ResolveExpired(ctx context.Context, cred Credential, session string) (*AuthContext, time.Time, error) {
	ac, exp, err := a.resolveExpired(ctx, cred, session)
	if err != nil {
		a.fail(err, cred)
		return nil, time.Time{}, err
	}
	return ac, exp, nil
}

func (a *Authenticator) resolveExpired(ctx context.Context, cred Credential, session string) (*AuthContext, time.Time, error) {
	if cred.Bearer == "" || session == "" {
		return nil, time.Time{}, ErrUnauthenticated
	}

	claims, err := a.codec.VerifyIgnoringExpiry(cred.Bearer)
	if err != nil {
		return nil, time.Time{}, mapVerifyError(err)
	}
	if cred.DeviceID == "" {
		return nil, time.Time{}, ErrDeviceRequired
	}
	if cred.DeviceID != claims.DeviceID {
		return nil, time.Time{}, ErrDeviceMismatch
	}

	user, err := a.sessions.ValidateSessionToken(session)
	if err != nil {
		return nil, time.Time{}, err
	}
	if user.UserID != claims.UserID() {
		return nil, time.Time{}, AuthError{Code: ErrForbidden.Code, Message: "session belongs to a different user"}
	}

	return &AuthContext{
		UserID:    claims.UserID(),
		Email:     user.Email,
		LicenseID: claims.LicenseID,
		DeviceID:  claims.DeviceID,
		Via:       ViaGrace,
		Claims:    claims,
	}, claims.ExpiresAtTime(), nil
}

// mapVerifyError turns codec failures into the user-facing auth errors.
// Only expiry is retryable; signature and structure failures need a new sign-in.
func mapVerifyError(err error) error {
	if errors.Is(err, token.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}

func (a *Authenticator) fail(err error, cred Credential) {
	var authErr AuthError
	if !errors.As(err, &authErr) {
		a.logger.Error().Err(err).Msg("Authentication lookup failed")
		return
	}
	a.logger.Debug().
		Str("code", authErr.Code).
		Str("credential", logging.Mask(cred.Bearer)).
		Str("device_id", cred.DeviceID).
		Msg("Credential rejected")
	if a.onFail != nil {
		a.onFail(authErr.Code)
	}
}
