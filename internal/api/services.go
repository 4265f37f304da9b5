package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ushadow-io/ushadow/internal/apierr"
	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/deployment"
)

// registerServiceRoutes wires spec §6's Services & deployments
// surface. Every route requires an authenticated principal; lifecycle
// mutations additionally require the admin role, mirroring the
// teacher's auth-required-for-mutation, read-open-to-any-session
// split in internal/dashboard/server.go.
func (s *Server) registerServiceRoutes(g *gin.RouterGroup) {
	authed := g.Group("", s.broker.Middleware())
	authed.GET("/services", s.handleListServices)
	authed.GET("/services/:id/preflight", s.handlePreflight)

	admin := g.Group("", s.broker.Middleware(), auth.RequireRole("admin"))
	admin.POST("/services/:id/start", s.handleServiceStart)
	admin.POST("/services/:id/stop", s.handleServiceStop)
	admin.POST("/services/:id/restart", s.handleServiceRestart)

	admin.POST("/deployments", s.handleCreateDeployment)
	authed.GET("/deployments/:id", s.handleGetDeployment)
	admin.DELETE("/deployments/:id", s.handleDeleteDeployment)
	authed.GET("/deployments/:id/logs", s.handleDeploymentLogs)
}

func (s *Server) handleListServices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": s.reg.AllServices()})
}

func (s *Server) handlePreflight(c *gin.Context) {
	id := c.Param("id")
	def, ok := s.reg.Get(id)
	if !ok {
		writeError(c, apierr.New(apierr.Validation, "service not found: "+id))
		return
	}
	resolution, err := s.resolver.Resolve([]string{def.ID})
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "resolving capabilities", err))
		return
	}
	c.JSON(http.StatusOK, resolution)
}

// handleServiceStart is the convenience one-shot deploy-to-local-
// docker endpoint a dashboard's "Start" button calls; operators who
// need an explicit target use POST /deployments instead.
func (s *Server) handleServiceStart(c *gin.Context) {
	id := c.Param("id")
	dep, err := s.engine.Deploy(c.Request.Context(), deployment.DeployRequest{
		ServiceID: id,
		Target:    deployment.Target{Kind: deployment.TargetLocalDocker},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dep)
}

func (s *Server) handleServiceStop(c *gin.Context) {
	dep, err := s.engine.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (s *Server) handleServiceRestart(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.engine.Stop(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	dep, err := s.engine.Status(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	redeployed, err := s.engine.Deploy(ctx, deployment.DeployRequest{ServiceID: dep.ServiceID, Target: dep.Target})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, redeployed)
}

// createDeploymentRequest is the wire shape of POST /api/deployments:
// a flat body naming the target by discriminant fields rather than a
// nested target object, matching how the dashboard's deploy form
// posts it.
type createDeploymentRequest struct {
	ServiceID     string            `json:"service_id" binding:"required"`
	TargetType    string            `json:"target_type" binding:"required"`
	UNodeHostname string            `json:"unode_hostname"`
	ClusterID     string            `json:"cluster_id"`
	Namespace     string            `json:"namespace"`
	Replicas      int32             `json:"replicas"`
	ServiceType   string            `json:"service_type"`
	IngressHost   string            `json:"ingress_host"`
	Annotations   map[string]string `json:"annotations"`
}

// targetKindFor maps the wire-level target_type vocabulary
// ("local_docker", "docker_unode", "kubernetes") onto the deployment
// package's TargetKind constants.
func targetKindFor(wireType string) (deployment.TargetKind, bool) {
	switch wireType {
	case "local_docker":
		return deployment.TargetLocalDocker, true
	case "docker_unode":
		return deployment.TargetRemoteDocker, true
	case "kubernetes":
		return deployment.TargetKubernetes, true
	default:
		return "", false
	}
}

func (s *Server) handleCreateDeployment(c *gin.Context) {
	var req createDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid deployment request", err))
		return
	}
	kind, ok := targetKindFor(req.TargetType)
	if !ok {
		writeError(c, apierr.New(apierr.Validation, "unknown target_type: "+req.TargetType))
		return
	}

	deployReq := deployment.DeployRequest{
		ServiceID: req.ServiceID,
		Target: deployment.Target{
			Kind:        kind,
			NodeID:      req.UNodeHostname,
			ClusterID:   req.ClusterID,
			Namespace:   req.Namespace,
			ServiceType: req.ServiceType,
			Replicas:    req.Replicas,
			IngressHost: req.IngressHost,
			Annotations: req.Annotations,
		},
	}
	dep, err := s.engine.Deploy(c.Request.Context(), deployReq)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dep)
}

func (s *Server) handleGetDeployment(c *gin.Context) {
	dep, err := s.engine.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (s *Server) handleDeleteDeployment(c *gin.Context) {
	if err := s.engine.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDeploymentLogs(c *gin.Context) {
	tail := 200
	if raw := c.Query("tail"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			tail = n
		}
	}
	logs, err := s.engine.Logs(c.Request.Context(), c.Param("id"), tail)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
