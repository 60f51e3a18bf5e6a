package licensing

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"desktop-license-server/internal/database"
)

// Error codes returned to desktop clients
const (
	CodeDeviceLimitExceeded = "DEVICE_LIMIT_EXCEEDED"
	CodeUsageLimitReached   = "USAGE_LIMIT_REACHED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeLicenseInactive     = "LICENSE_INACTIVE"
	CodeUnknownDevice       = "UNKNOWN_DEVICE"
	CodeGraceExpired        = "GRACE_EXPIRED"
	CodeNoLicense           = "NO_LICENSE"
)

var (
	// ErrLicenseInactive matches both an inactive license and a deactivated device
	ErrLicenseInactive   = database.ErrLicenseInactive
	ErrDeviceDeactivated = errors.New("device has been deactivated")
	ErrUnknownDevice     = errors.New("device is not registered")
	ErrGraceExpired      = errors.New("grace window has passed")
	ErrNoLicense         = errors.New("no license for user")
	ErrUsageLimitReached = errors.New("usage limit reached")
)

// LimitError reports a quota the caller ran into
type LimitError struct {
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *LimitError) Error() string { return e.Message }
func (e *LimitError) Unwrap() error { return e.Err }

// HTTPStatus returns the status code the error is reported with
func (e *LimitError) HTTPStatus() int {
	if e.Code == CodeRateLimited {
		return http.StatusTooManyRequests
	}
	return http.StatusForbidden
}

// StateError reports that the license or device is not in a state that allows the operation
type StateError struct {
	Code    string
	Message string
	Err     error
}

func (e *StateError) Error() string { return e.Message }
func (e *StateError) Unwrap() error { return e.Err }

// HTTPStatus returns the status code the error is reported with
func (e *StateError) HTTPStatus() int {
	switch e.Code {
	case CodeUnknownDevice:
		return http.StatusNotFound
	case CodeGraceExpired:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}

// RateLimited builds the error returned when the limiter rejects a request
func RateLimited(retryAfter time.Duration) *LimitError {
	return &LimitError{
		Code:       CodeRateLimited,
		Message:    "too many requests, please try again later",
		RetryAfter: retryAfter,
	}
}

func deviceLimitError(maxDevices int) *LimitError {
	return &LimitError{
		Code:    CodeDeviceLimitExceeded,
		Message: fmt.Sprintf("device limit reached (%d active); deactivate another device first", maxDevices),
		Err:     database.ErrDeviceLimitExceeded,
	}
}

func usageLimitError() *LimitError {
	return &LimitError{
		Code:    CodeUsageLimitReached,
		Message: "usage limit for the current plan has been reached",
		Err:     ErrUsageLimitReached,
	}
}

func inactiveLicenseError(status string) *StateError {
	return &StateError{
		Code:    CodeLicenseInactive,
		Message: fmt.Sprintf("license is %s", status),
		Err:     ErrLicenseInactive,
	}
}

func deactivatedDeviceError(deviceID string) *StateError {
	return &StateError{
		Code:    CodeLicenseInactive,
		Message: fmt.Sprintf("device %s has been deactivated; activate it again to continue", deviceID),
		Err:     errors.Join(ErrLicenseInactive, ErrDeviceDeactivated),
	}
}

func unknownDeviceError(deviceID string) *StateError {
	return &StateError{
		Code:    CodeUnknownDevice,
		Message: fmt.Sprintf("device %s is not registered", deviceID),
		Err:     ErrUnknownDevice,
	}
}

func graceExpiredError() *StateError {
	return &StateError{
		Code:    CodeGraceExpired,
		Message: "token expired too long ago; sign in and activate again",
		Err:     ErrGraceExpired,
	}
}

func noLicenseError() *StateError {
	return &StateError{
		Code:    CodeNoLicense,
		Message: "no license found for this account",
		Err:     ErrNoLicense,
	}
}
