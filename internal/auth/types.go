package auth

import (
	"net/http"

	"desktop-license-server/internal/database"
	"desktop-license-server/internal/token"
)

// UserClaims represents the session credential claims for a user
type UserClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Via names the kind of credential a request authenticated with
type Via string

const (
	ViaSession Via = "session"
	ViaToken   Via = "token"
	ViaGrace   Via = "grace"
)

// Accept is a set of credential kinds an operation takes
type Accept uint8

const (
	AcceptSession Accept = 1 << iota
	AcceptToken
	// RequireDevice makes license-token requests carry the X-Device-ID header
	RequireDevice

	AcceptAny = AcceptSession | AcceptToken
)

// Credential is what a request presents
type Credential struct {
	Bearer   string
	DeviceID string // from the X-Device-ID header, may be empty
}

// AuthContext is the resolved identity of a request
type AuthContext struct {
	UserID    string
	Email     string
	LicenseID string
	DeviceID  string
	Via       Via
	// Claims is set when the request carried a license token
	Claims *token.Claims
	// License is set for session credentials; nil when the user holds none
	License *database.License
}

// Error types for authentication
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// HTTPStatus returns the status code the error is reported with
func (e AuthError) HTTPStatus() int {
	switch e.Code {
	case ErrForbidden.Code, ErrDeviceMismatch.Code:
		return http.StatusForbidden
	case ErrDeviceRequired.Code:
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}

// Common authentication errors
var (
	ErrUnauthenticated = AuthError{Code: "UNAUTHENTICATED", Message: "authentication required"}
	ErrInvalidToken    = AuthError{Code: "INVALID_TOKEN", Message: "invalid token, please sign in again"}
	ErrTokenExpired    = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrForbidden       = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
	ErrDeviceMismatch  = AuthError{Code: "DEVICE_MISMATCH", Message: "token was issued to a different device"}
	ErrDeviceRequired  = AuthError{Code: "DEVICE_REQUIRED", Message: "X-Device-ID header is required"}
)
