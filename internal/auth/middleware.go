package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// DeviceHeader identifies the calling installation
	DeviceHeader = "X-Device-ID"
	// SessionHeader carries the session credential on grace refreshes
	SessionHeader = "X-Session-Token"

	// Context keys for auth data
	ContextKeyUserID      = "user_id"
	ContextKeyLicenseID   = "license_id"
	ContextKeyDeviceID    = "device_id"
	ContextKeyAuthContext = "auth_context"
)

// CredentialFromRequest reads the bearer credential and device header
func CredentialFromRequest(r *http.Request) Credential {
	return Credential{
		Bearer:   BearerFromHeader(r.Header.Get("Authorization")),
		DeviceID: r.Header.Get(DeviceHeader),
	}
}

// Middleware authenticates the request and stores the AuthContext on the gin context
func Middleware(a *Authenticator, accept Accept) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, err := a.Authenticate(c.Request.Context(), CredentialFromRequest(c.Request), accept)
		if err != nil {
			var authErr AuthError
			if !errors.As(err, &authErr) {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
					"code":  "INTERNAL_ERROR",
				})
				return
			}
			c.AbortWithStatusJSON(authErr.HTTPStatus(), gin.H{
				"error": authErr.Message,
				"code":  authErr.Code,
			})
			return
		}

		c.Set(ContextKeyUserID, ac.UserID)
		c.Set(ContextKeyLicenseID, ac.LicenseID)
		c.Set(ContextKeyDeviceID, ac.DeviceID)
		c.Set(ContextKeyAuthContext, ac)

		c.Next()
	}
}

// GetAuthContext extracts the AuthContext set by Middleware
func GetAuthContext(c *gin.Context) *AuthContext {
	if ac, exists := c.Get(ContextKeyAuthContext); exists {
		return ac.(*AuthContext)
	}
	return nil
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
