package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"desktop-license-server/internal/auth"
	"desktop-license-server/internal/licensing"
)

type activateBody struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name" binding:"max=255"`
	Platform   string `json:"platform" binding:"max=32"`
	AppVersion string `json:"app_version" binding:"max=64"`
}

type refreshBody struct {
	AppVersion string `json:"app_version" binding:"max=64"`
}

type heartbeatBody struct {
	AppVersion  string `json:"app_version" binding:"max=64"`
	Arch        string `json:"arch" binding:"max=32"`
	UsageEvents int64  `json:"usage_events" binding:"gte=0"`
}

// bindOptionalJSON binds a JSON body that may be omitted entirely
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// sessionFromHeader accepts the session token raw or with a Bearer prefix
func sessionFromHeader(v string) string {
	if bearer := auth.BearerFromHeader(v); bearer != "" {
		return bearer
	}
	return strings.TrimSpace(v)
}

// handleActivate registers a device against the caller's license and returns its first token
func (s *Server) handleActivate(c *gin.Context) {
	var body activateBody
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := s.licensing.Activate(c.Request.Context(), licensing.ActivateRequest{
		Credential: auth.CredentialFromRequest(c.Request),
		DeviceID:   body.DeviceID,
		DeviceName: body.DeviceName,
		Platform:   body.Platform,
		AppVersion: body.AppVersion,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleRefresh rotates the device token, entering grace mode when it has expired
func (s *Server) handleRefresh(c *gin.Context) {
	var body refreshBody
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := s.licensing.Refresh(c.Request.Context(), licensing.RefreshRequest{
		Credential:   auth.CredentialFromRequest(c.Request),
		SessionToken: sessionFromHeader(c.GetHeader(auth.SessionHeader)),
		AppVersion:   body.AppVersion,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleHeartbeat records liveness and usage and returns advisories
func (s *Server) handleHeartbeat(c *gin.Context) {
	var body heartbeatBody
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := s.licensing.Heartbeat(c.Request.Context(), licensing.HeartbeatRequest{
		Credential:  auth.CredentialFromRequest(c.Request),
		AppVersion:  body.AppVersion,
		Arch:        body.Arch,
		UsageEvents: body.UsageEvents,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleDeactivate releases the calling device's seat
func (s *Server) handleDeactivate(c *gin.Context) {
	err := s.licensing.Deactivate(c.Request.Context(), auth.CredentialFromRequest(c.Request))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deactivated": true})
}

// handleListDevices lists the active devices of the caller's license
func (s *Server) handleListDevices(c *gin.Context) {
	ac := auth.GetAuthContext(c)
	if ac == nil {
		s.writeError(c, auth.ErrUnauthenticated)
		return
	}

	list, err := s.licensing.Devices(c.Request.Context(), ac)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}
