package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ushadow-io/ushadow/internal/apierr"
	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/cloud"
)

// registerCloudRoutes wires spec §4.7's cloud-provider provisioning
// surface: region/size listing and instance lifecycle, all admin-gated
// since provisioning spends real money.
func (s *Server) registerCloudRoutes(g *gin.RouterGroup) {
	grp := g.Group("/cloud", s.broker.Middleware(), auth.RequireRole("admin"))
	grp.GET("/:provider/regions", s.handleCloudRegions)
	grp.GET("/:provider/sizes", s.handleCloudSizes)
	grp.POST("/:provider/instances", s.handleCloudCreateInstance)
	grp.GET("/:provider/instances", s.handleCloudListInstances)
	grp.GET("/:provider/instances/:id", s.handleCloudGetInstance)
	grp.DELETE("/:provider/instances/:id", s.handleCloudDeleteInstance)
	grp.POST("/:provider/instances/:id/stop", s.handleCloudStopInstance)
	grp.POST("/:provider/instances/:id/start", s.handleCloudStartInstance)
	grp.GET("/usage/:instance_id", s.handleCloudInstanceUsage)
}

func (s *Server) cloudProvider(c *gin.Context) (cloud.CloudProvider, bool) {
	name := cloud.ProviderName(c.Param("provider"))
	p, ok := s.providers[name]
	if !ok {
		writeError(c, apierr.New(apierr.Unconfigured, "cloud provider "+string(name)+" is not configured"))
		return nil, false
	}
	return p, true
}

func (s *Server) handleCloudRegions(c *gin.Context) {
	p, ok := s.cloudProvider(c)
	if !ok {
		return
	}
	regions, err := p.ListRegions(c.Request.Context())
	if err != nil {
		writeError(c, apierr.Wrap(apierr.BackendFailed, "listing regions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions})
}

func (s *Server) handleCloudSizes(c *gin.Context) {
	p, ok := s.cloudProvider(c)
	if !ok {
		return
	}
	sizes, err := p.ListSizes(c.Request.Context())
	if err != nil {
		writeError(c, apierr.Wrap(apierr.BackendFailed, "listing sizes", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sizes": sizes})
}

func (s *Server) handleCloudCreateInstance(c *gin.Context) {
	p, ok := s.cloudProvider(c)
	if !ok {
		return
	}
	var req struct {
		Name       string   `json:"name" binding:"required"`
		Region     string   `json:"region" binding:"required"`
		Size       string   `json:"size"`
		SSHKeyIDs  []string `json:"ssh_key_ids"`
		UserData   string   `json:"user_data"`
		HourlyRate float64  `json:"hourly_rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid create-instance request", err))
		return
	}
	if req.Size == "" {
		sizes, err := p.ListSizes(c.Request.Context())
		if err != nil {
			writeError(c, apierr.Wrap(apierr.BackendFailed, "listing sizes for recommendation", err))
			return
		}
		recommended, found := cloud.GetRecommendedSize(sizes, req.Region)
		if !found {
			writeError(c, apierr.New(apierr.Validation, "no size in "+req.Region+" meets the minimum floor"))
			return
		}
		req.Size = recommended.ID
	}

	instance, err := p.Create(c.Request.Context(), cloud.CreateRequest{
		Name: req.Name, Region: req.Region, Size: req.Size,
		SSHKeyIDs: req.SSHKeyIDs, UserData: req.UserData,
	})
	if err != nil {
		writeError(c, apierr.Wrap(apierr.BackendFailed, "creating instance", err))
		return
	}
	s.usage.RecordStart(instance.ID, p.Name(), req.HourlyRate, time.Now())
	c.JSON(http.StatusCreated, instance)
}

func (s *Server) handleCloudListInstances(c *gin.Context) {
	p, ok := s.cloudProvider(c)
	if !ok {
		return
	}
	instances, err := p.List(c.Request.Context())
	if err != nil {
		writeError(c, apierr.Wrap(apierr.BackendFailed, "listing instances", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": instances})
}

func (s *Server) handleCloudGetInstance(c *gin.Context) {
	p, ok := s.cloudProvider(c)
	if !ok {
		return
	}
	instance, err := p.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, apierr.Wrap(apierr.BackendFailed, "fetching instance", err))
		return
	}
	c.JSON(http.StatusOK, instance)
}

func (s *Server) handleCloudDeleteInstance(c *gin.Context) {
	p, ok := s.cloudProvider(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := p.Delete(c.Request.Context(), id); err != nil {
		writeError(c, apierr.Wrap(apierr.BackendFailed, "deleting instance", err))
		return
	}
	s.usage.RecordStop(id, time.Now())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCloudStopInstance(c *gin.Context) {
	p, ok := s.cloudProvider(c)
	if !ok {
		return
	}
	if err := p.Stop(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, apierr.Wrap(apierr.BackendFailed, "stopping instance", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCloudStartInstance(c *gin.Context) {
	p, ok := s.cloudProvider(c)
	if !ok {
		return
	}
	if err := p.Start(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, apierr.Wrap(apierr.BackendFailed, "starting instance", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCloudInstanceUsage(c *gin.Context) {
	cost := s.usage.InstanceCost(c.Param("instance_id"), time.Now())
	c.JSON(http.StatusOK, gin.H{"instance_id": c.Param("instance_id"), "cost_usd": cost})
}
