package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ushadow-io/ushadow/internal/apierr"
	"github.com/ushadow-io/ushadow/internal/auth"
)

// registerSettingsRoutes wires spec §6's Configuration surface, all
// behind the admin role since it exposes and mutates secret-bearing
// configuration.
func (s *Server) registerSettingsRoutes(g *gin.RouterGroup) {
	grp := g.Group("/settings", s.broker.Middleware(), auth.RequireRole("admin"))
	grp.GET("/config", s.handleGetConfig)
	grp.PUT("/config", s.handlePutConfig)
	grp.GET("/requirements", s.handleGetRequirements)
	grp.POST("/requirements", s.handlePostRequirements)
	grp.POST("/refresh", s.handleConfigRefresh)
	grp.POST("/reset", s.handleConfigReset)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Effective())
}

func (s *Server) handlePutConfig(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid configuration patch", err))
		return
	}
	if err := s.cfg.Update(patch); err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "applying configuration patch", err))
		return
	}
	c.JSON(http.StatusOK, s.cfg.Effective())
}

// handleGetRequirements resolves capabilities for the currently
// registry-known services, surfacing which configuration keys are
// still missing — the setup wizard's primary read endpoint.
func (s *Server) handleGetRequirements(c *gin.Context) {
	ids := make([]string, 0)
	for _, svc := range s.reg.AllServices() {
		ids = append(ids, svc.ID)
	}
	resolution, err := s.resolver.Resolve(ids)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "resolving capabilities", err))
		return
	}
	c.JSON(http.StatusOK, resolution)
}

// handlePostRequirements resolves capabilities for an explicit set of
// enabled service ids, the shape the deploy wizard POSTs when the
// operator is choosing which services to enable.
func (s *Server) handlePostRequirements(c *gin.Context) {
	var req struct {
		ServiceIDs []string `json:"service_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid requirements request", err))
		return
	}
	resolution, err := s.resolver.Resolve(req.ServiceIDs)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "resolving capabilities", err))
		return
	}
	c.JSON(http.StatusOK, resolution)
}

func (s *Server) handleConfigRefresh(c *gin.Context) {
	s.cfg.Refresh()
	if err := s.reg.Reload(); err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "reloading registry", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleConfigReset(c *gin.Context) {
	var req struct {
		IncludeSecrets bool `json:"include_secrets"`
	}
	_ = c.ShouldBindJSON(&req)
	if err := s.cfg.Reset(req.IncludeSecrets); err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "resetting configuration", err))
		return
	}
	c.JSON(http.StatusOK, s.cfg.Effective())
}
