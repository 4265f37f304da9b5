// Package api wires the full HTTP surface of spec §6 onto gin,
// following the teacher's internal/dashboard/server.go router shape:
// one *gin.Engine, route groups per concern, closures over the
// collaborators each group needs, and CORS/auth as global or
// group-scoped middleware rather than per-handler checks.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ushadow-io/ushadow/core/utils"
	"github.com/ushadow-io/ushadow/internal/apierr"
	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/capability"
	"github.com/ushadow-io/ushadow/internal/cloud"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/deployment"
	"github.com/ushadow-io/ushadow/internal/githubimport"
	"github.com/ushadow-io/ushadow/internal/node"
	"github.com/ushadow-io/ushadow/internal/registry"
)

// Server is the control-plane HTTP API. One Server is built per
// process and bound to a single *gin.Engine.
type Server struct {
	cfg        *config.Store
	reg        *registry.Registry
	resolver   *capability.Resolver
	engine     *deployment.Engine
	nodes      *node.Manager
	broker     *auth.Broker
	local      *auth.LocalBroker
	importer   *githubimport.Importer
	providers  map[cloud.ProviderName]cloud.CloudProvider
	usage      *cloud.UsageLedger
	clusters   *deployment.K8sClusterRegistry
	logger     *utils.Logger
	httpServer *http.Server
}

// New builds a Server. local may be nil when local auth mode is not
// configured (federated-only deployments still need it for setup- status
// reporting, so pass a LocalBroker whenever possible); importer may be
// nil when GitHub import is not configured; providers may be nil or
// empty when no cloud driver has an API token configured, in which
// case the /cloud routes report each provider as unconfigured.
func New(
	cfg *config.Store,
	reg *registry.Registry,
	resolver *capability.Resolver,
	engine *deployment.Engine,
	nodes *node.Manager,
	broker *auth.Broker,
	local *auth.LocalBroker,
	importer *githubimport.Importer,
	providers map[cloud.ProviderName]cloud.CloudProvider,
	usage *cloud.UsageLedger,
	clusters *deployment.K8sClusterRegistry,
) *Server {
	if usage == nil {
		usage = cloud.NewUsageLedger()
	}
	if clusters == nil {
		clusters = deployment.NewK8sClusterRegistry()
	}
	return &Server{
		cfg:       cfg,
		reg:       reg,
		resolver:  resolver,
		engine:    engine,
		nodes:     nodes,
		broker:    broker,
		local:     local,
		importer:  importer,
		providers: providers,
		usage:     usage,
		clusters:  clusters,
		logger:    utils.NewLogger("api"),
	}
}

// Router builds the *gin.Engine, wiring every route spec §6 names.
func (s *Server) Router(corsOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(corsOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = corsOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	corsCfg.AllowCredentials = len(corsOrigins) > 0
	router.Use(cors.New(corsCfg))

	apiGroup := router.Group("/api")
	s.registerAuthRoutes(apiGroup)
	s.registerSettingsRoutes(apiGroup)
	s.registerServiceRoutes(apiGroup)
	s.registerNodeRoutes(apiGroup)
	s.registerGitHubImportRoutes(apiGroup)
	s.registerCloudRoutes(apiGroup)
	s.registerKubernetesRoutes(apiGroup)

	return router
}

// Run starts the HTTP server and blocks until it exits or ctx is done.
func (s *Server) Run(ctx context.Context, addr string, corsOrigins []string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Router(corsOrigins)}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// requestLogger mirrors the teacher's structured per-request logging
// idiom (core/utils.Logger, one line per request) rather than gin's
// own text logger, keeping log output uniform across this module.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// writeError renders a classified apierr.Error (or any error,
// classified as Internal) using the one status-mapping table spec §7
// defines, so no handler ever picks its own HTTP status.
func writeError(c *gin.Context, err error) {
	e := apierr.As(err)
	c.JSON(e.Status(), e.ToBody())
}
