package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/ushadow-io/ushadow/internal/apierr"
	"github.com/ushadow-io/ushadow/internal/auth"
)

// exchangeFederated and refreshFederated delegate to the configured
// FederatedBroker with the request's context, so the handlers below
// stay thin.
func (s *Server) exchangeFederated(c *gin.Context, code, verifier string) (auth.Principal, *oauth2.Token, error) {
	return s.broker.Federated().ExchangeCode(withCtx(c), code, verifier)
}

func (s *Server) refreshFederated(c *gin.Context, refreshToken string) (*oauth2.Token, error) {
	return s.broker.Federated().RefreshToken(withCtx(c), refreshToken)
}

func withCtx(c *gin.Context) context.Context { return c.Request.Context() }

// registerAuthRoutes wires spec §6's Authentication surface. The
// local-mode endpoints (setup, login) stay registered when no
// LocalBroker was configured; they then answer with an unconfigured
// error (422), and setup/status reports that no setup is required.
func (s *Server) registerAuthRoutes(g *gin.RouterGroup) {
	grp := g.Group("/auth")
	grp.GET("/setup/status", s.handleSetupStatus)
	grp.POST("/setup", s.handleSetup)
	grp.POST("/login", s.handleLogin)
	grp.POST("/token", s.handleOAuthCallback)
	grp.POST("/refresh", s.handleRefresh)
	grp.GET("/me", s.broker.Middleware(), s.handleMe)
	grp.POST("/service-token", s.broker.Middleware(), auth.RequireRole("admin"), s.handleServiceToken)
}

func (s *Server) handleSetupStatus(c *gin.Context) {
	if s.local == nil {
		c.JSON(http.StatusOK, gin.H{"setup_required": false, "federated": s.broker.FederatedEnabled()})
		return
	}
	required, err := s.local.SetupRequired()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"setup_required": required, "federated": s.broker.FederatedEnabled()})
}

func (s *Server) handleSetup(c *gin.Context) {
	if s.local == nil {
		writeError(c, apierr.New(apierr.Unconfigured, "local auth mode is not enabled"))
		return
	}
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid setup request", err))
		return
	}
	principal, err := s.local.Setup(req.Email, req.Password)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Conflict, "setup failed", err))
		return
	}
	c.JSON(http.StatusCreated, principal)
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.local == nil {
		writeError(c, apierr.New(apierr.Unconfigured, "local auth mode is not enabled"))
		return
	}
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid login request", err))
		return
	}
	principal, err := s.local.Login(req.Email, req.Password)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Authentication, "login failed", err))
		return
	}
	c.JSON(http.StatusOK, principal)
}

// handleOAuthCallback completes the federated authorization-code
// exchange (spec §4.9's PKCE flow), standing in for /api/auth/token.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	if !s.broker.FederatedEnabled() {
		writeError(c, apierr.New(apierr.Unconfigured, "federated auth mode is not enabled"))
		return
	}
	var req struct {
		Code         string `json:"code" binding:"required"`
		CodeVerifier string `json:"code_verifier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid token exchange request", err))
		return
	}
	principal, token, err := s.exchangeFederated(c, req.Code, req.CodeVerifier)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Authentication, "token exchange failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"principal":     principal,
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
		"expires_at":    token.Expiry,
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	if !s.broker.FederatedEnabled() {
		writeError(c, apierr.New(apierr.Unconfigured, "federated auth mode is not enabled"))
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid refresh request", err))
		return
	}
	token, err := s.refreshFederated(c, req.RefreshToken)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Authentication, "refresh failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
		"expires_at":    token.Expiry,
	})
}

func (s *Server) handleMe(c *gin.Context) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		writeError(c, apierr.New(apierr.Authentication, "no principal on request"))
		return
	}
	c.JSON(http.StatusOK, principal)
}

func (s *Server) handleServiceToken(c *gin.Context) {
	if s.local == nil {
		writeError(c, apierr.New(apierr.Unconfigured, "service tokens require local auth mode"))
		return
	}
	var req struct {
		Subject string   `json:"subject" binding:"required"`
		Roles   []string `json:"roles"`
		TTL     string   `json:"ttl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.Validation, "invalid service-token request", err))
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
	if len(req.Roles) == 0 {
		req.Roles = []string{"service"}
	}
	token, err := s.local.MintServiceToken(req.Subject, req.Roles, ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
