package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"desktop-license-server/internal/auth"
	"desktop-license-server/internal/devices"
	"desktop-license-server/internal/licensing"
	"desktop-license-server/internal/logging"
	"desktop-license-server/internal/token"
)

const (
	codeInvalidRequest  = "INVALID_REQUEST"
	codeUnknownPlatform = "UNKNOWN_PLATFORM"
	codeInternal        = "INTERNAL_ERROR"
)

// writeError maps an error onto the JSON error body {error, code}. Unknown
// errors become a generic 500 and their cause is only logged.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		authErr    auth.AuthError
		limitErr   *licensing.LimitError
		stateErr   *licensing.StateError
		signingErr *token.SigningError
	)

	switch {
	case errors.As(err, &authErr):
		respond(c, authErr.HTTPStatus(), authErr.Code, authErr.Message)
	case errors.As(err, &limitErr):
		if limitErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(limitErr)))
		}
		respond(c, limitErr.HTTPStatus(), limitErr.Code, limitErr.Message)
	case errors.As(err, &stateErr):
		respond(c, stateErr.HTTPStatus(), stateErr.Code, stateErr.Message)
	case errors.Is(err, devices.ErrInvalidDevice):
		respond(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.As(err, &signingErr):
		logging.FromContext(c.Request.Context()).Error().
			Str("op", signingErr.Op).
			Msg("Token signing failed, check signing key configuration")
		respond(c, http.StatusInternalServerError, codeInternal, "internal server error")
	default:
		logging.FromContext(c.Request.Context()).Error().Err(err).Msg("Request failed")
		respond(c, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

func respond(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": message,
		"code":  code,
	})
}

func badRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, codeInvalidRequest, message)
}

func retryAfterSeconds(e *licensing.LimitError) int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
