package api

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ushadow-io/ushadow/internal/apierr"
	"github.com/ushadow-io/ushadow/internal/auth"
)

// registerKubernetesRoutes wires cluster registration: an operator
// pastes a kubeconfig and gets back a cluster_id to use as
// POST /api/deployments's cluster_id field.
func (s *Server) registerKubernetesRoutes(g *gin.RouterGroup) {
	admin := g.Group("/kubernetes", s.broker.Middleware(), auth.RequireRole("admin"))
	admin.POST("/clusters", s.handleRegisterCluster)
	admin.GET("/clusters", s.handleListClusters)
}

type registerClusterRequest struct {
	Name          string `json:"name"`
	Kubeconfig    string `json:"kubeconfig" binding:"required"`
	Base64Encoded bool   `json:"base64_encoded"`
}

func (s *Server) handleRegisterCluster(c *gin.Context) {
	var req registerClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid cluster registration request", err))
		return
	}

	raw := []byte(req.Kubeconfig)
	if req.Base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Kubeconfig)
		if err != nil {
			writeError(c, apierr.Wrap(apierr.Validation, "invalid base64 kubeconfig", err))
			return
		}
		raw = decoded
	}

	info, err := s.clusters.Register(raw, req.Name)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "registering kubernetes cluster", err))
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleListClusters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clusters": s.clusters.List()})
}
