package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type updatesQuery struct {
	Platform       string `form:"platform" binding:"required,max=32"`
	Arch           string `form:"arch" binding:"required,max=32"`
	CurrentVersion string `form:"current_version" binding:"max=64"`
}

// handleUpdates answers an update check from the release catalog
func (s *Server) handleUpdates(c *gin.Context) {
	var q updatesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "platform and arch are required")
		return
	}

	if s.catalog == nil {
		respond(c, http.StatusNotFound, codeUnknownPlatform, "no releases published")
		return
	}

	update, ok := s.catalog.Lookup(q.Platform, q.Arch, q.CurrentVersion)
	if !ok {
		respond(c, http.StatusNotFound, codeUnknownPlatform, "no releases for "+q.Platform+"/"+q.Arch)
		return
	}

	resp := gin.H{
		"up_to_date": update.UpToDate,
		"mandatory":  update.Mandatory,
	}
	if s.gate != nil && s.gate.Minimum() != "" {
		resp["minimum_version"] = s.gate.Minimum()
	}
	if rel := update.Latest; rel != nil {
		resp["version"] = rel.Version
		resp["url"] = rel.URL
		if rel.SHA256 != "" {
			resp["sha256"] = rel.SHA256
		}
		if rel.Notes != "" {
			resp["notes"] = rel.Notes
		}
		if !rel.PublishedAt.IsZero() {
			resp["published_at"] = rel.PublishedAt
		}
	}

	c.JSON(http.StatusOK, resp)
}
