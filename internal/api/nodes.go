package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ushadow-io/ushadow/internal/apierr"
	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/node"
)

// registerNodeRoutes wires spec §6's Nodes surface. Token creation is
// an admin-only operation; /join and /heartbeat are called by u-node
// agents bearing a join token or an already-established node identity,
// not a dashboard session, so they sit outside the Broker middleware.
func (s *Server) registerNodeRoutes(g *gin.RouterGroup) {
	grp := g.Group("/nodes")
	grp.POST("/join-tokens", s.broker.Middleware(), auth.RequireRole("admin"), s.handleCreateJoinToken)
	grp.POST("/join", s.handleNodeJoin)
	grp.POST("/heartbeat", s.requireNodeSecret(), s.handleNodeHeartbeat)
	grp.GET("", s.broker.Middleware(), s.handleListNodes)
	grp.DELETE("/:id", s.broker.Middleware(), auth.RequireRole("admin"), s.handleRemoveNode)
}

// requireNodeSecret guards the heartbeat endpoint with the same
// shared-secret header the u-node agent's HeartbeatSender sends,
// mirroring internal/nodeagent.Server's own authenticated() check.
func (s *Server) requireNodeSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.nodes.SharedSecret()
		if secret == "" || c.GetHeader("X-Ushadow-Node-Secret") != secret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid node secret"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleCreateJoinToken(c *gin.Context) {
	var req struct {
		Role    string `json:"role"`
		TTL     string `json:"ttl"`
		MaxUses int    `json:"max_uses"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid join-token request", err))
		return
	}
	ttl := 24 * time.Hour
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil {
			writeError(c, apierr.Wrap(apierr.Validation, "invalid ttl", err))
			return
		}
		ttl = parsed
	}
	token, err := s.nodes.CreateJoinToken(c.Request.Context(), req.Role, ttl, req.MaxUses)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "creating join token", err))
		return
	}
	c.JSON(http.StatusCreated, token)
}

func (s *Server) handleNodeJoin(c *gin.Context) {
	var req node.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid join request", err))
		return
	}
	n, err := s.nodes.Join(c.Request.Context(), req)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Authentication, "join failed", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"node": n, "shared_secret": s.nodes.SharedSecret()})
}

func (s *Server) handleNodeHeartbeat(c *gin.Context) {
	var hb node.Heartbeat
	if err := c.ShouldBindJSON(&hb); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid heartbeat", err))
		return
	}
	if err := s.nodes.Heartbeat(c.Request.Context(), hb); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "heartbeat rejected", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleListNodes(c *gin.Context) {
	nodes, err := s.nodes.ListNodes(c.Request.Context())
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "listing nodes", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

func (s *Server) handleRemoveNode(c *gin.Context) {
	if err := s.nodes.RemoveNode(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "removing node", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
