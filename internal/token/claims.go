package token

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"

	"desktop-license-server/internal/license"
)

var validate = validator.New()

// Claims is the payload of a license token. Subject holds the user id.
type Claims struct {
	LicenseID    string               `json:"license_id" validate:"required,max=64"`
	DeviceID     string               `json:"device_id" validate:"required,max=128"`
	PlanTier     string               `json:"plan_tier" validate:"required,max=32"`
	Entitlements license.Entitlements `json:"entitlements"`
	jwt.RegisteredClaims
}

// NewClaims builds the claims for one device under a license, deriving entitlements from the plan.
func NewClaims(userID, licenseID, deviceID string, tier license.PlanTier) Claims {
	return Claims{
		LicenseID:    licenseID,
		DeviceID:     deviceID,
		PlanTier:     string(tier),
		Entitlements: license.EntitlementsFor(tier),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}
}

// UserID returns the subject
func (c *Claims) UserID() string {
	return c.Subject
}

// ExpiresAtTime returns exp, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}

// IssuedAtTime returns iat, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time.UTC()
}

// validateIdentity checks the fields every token must carry regardless of timing.
func (c *Claims) validateIdentity() error {
	if c.Subject == "" {
		return fmt.Errorf("missing subject")
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	return nil
}
