package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ushadow-io/ushadow/core/health"
	"github.com/ushadow-io/ushadow/core/metrics"
	"github.com/ushadow-io/ushadow/core/utils"
	"github.com/ushadow-io/ushadow/internal/api"
	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/capability"
	"github.com/ushadow-io/ushadow/internal/cloud"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/deployment"
	"github.com/ushadow-io/ushadow/internal/dockerrt"
	"github.com/ushadow-io/ushadow/internal/githubimport"
	"github.com/ushadow-io/ushadow/internal/node"
	"github.com/ushadow-io/ushadow/internal/proxy"
	"github.com/ushadow-io/ushadow/internal/registry"
	"github.com/ushadow-io/ushadow/internal/store"
)

// Exit codes, per spec §6's documented startup failure classes.
const (
	exitOK                  = 0
	exitConfigError         = 64
	exitMissingCollaborator = 69
	exitInternalError       = 70
)

func main() {
	logger := utils.NewLogger("controlplane-main")
	printBanner(logger)

	logger.Step(1, 8, "Loading environment-level bootstrap settings")
	configDir := config.GetEnv("USHADOW_CONFIG_DIR", "./config")
	servicesDir := config.GetEnv("USHADOW_SERVICES_DIR", "./compose")
	providersDir := config.GetEnv("USHADOW_PROVIDERS_DIR", "./config/providers")
	infraManifest := config.GetEnv("USHADOW_INFRASTRUCTURE_MANIFEST", "./config/infrastructure.yaml")
	mongoURI := config.GetEnv("MONGO_URI", "mongodb://localhost:27017")
	mongoDatabase := config.GetEnv("MONGO_DATABASE", "ushadow")
	bindAddr := fmt.Sprintf(":%d", config.GetEnvInt("BACKEND_PORT", 8080))
	healthPort := config.GetEnvInt("HEALTH_PORT", 9090)
	metricsPort := config.GetEnvInt("METRICS_PORT", 9100)
	corsOrigins := splitNonEmpty(config.GetEnv("CORS_ORIGINS", ""))

	logger.Step(2, 8, "Opening the Configuration Store")
	cfg, err := config.Open(configDir)
	if err != nil {
		logger.Fatal(exitConfigError, "loading configuration store: %v", err)
	}
	logger.Success("configuration loaded from %s", configDir)

	logger.Step(3, 8, "Loading the Service & Provider Registry")
	reg, err := registry.New(servicesDir, providersDir)
	if err != nil {
		logger.Fatal(exitConfigError, "loading registry: %v", err)
	}
	infrastructure, err := capability.LoadInfrastructureMap(infraManifest)
	if err != nil {
		logger.Fatal(exitConfigError, "loading infrastructure manifest: %v", err)
	}
	resolver := capability.New(reg, cfg, infrastructure)
	logger.Success("%d services, %d capabilities loaded", len(reg.AllServices()), len(reg.Capabilities()))

	logger.Step(4, 8, "Connecting to the persistent store")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mongoClient, err := store.Connect(ctx, mongoURI, mongoDatabase)
	if err != nil {
		logger.Fatal(exitMissingCollaborator, "connecting to store: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	deploymentStore := store.NewDeploymentStore(mongoClient)
	nodeStore := store.NewNodeStore(mongoClient)
	tokenStore := store.NewJoinTokenStore(mongoClient)
	userStore := store.NewUserStore(mongoClient)
	logger.Success("connected to %s", mongoDatabase)

	logger.Step(5, 8, "Initializing metrics, node manager, and overlay proxy controller")
	m := metrics.NewCollector("ushadow")
	heartbeatInterval := time.Duration(config.GetEnvInt("NODE_HEARTBEAT_INTERVAL_SECONDS", 15)) * time.Second
	nodeManager := node.New(nodeStore, tokenStore, cfg, heartbeatInterval, m)

	proxyBaseURL := config.GetEnv("USHADOW_PROXY_ADMIN_URL", "http://localhost:8088")
	proxyTransport := proxy.NewHTTPTransport(proxyBaseURL)
	proxyController := proxy.New(proxyTransport, m)
	if err := proxyController.EnsureStaticRoutes(ctx); err != nil {
		logger.Warn("installing static proxy routes: %v", err)
	}

	logger.Step(6, 8, "Building the Deployment Engine's backends")
	backends := map[deployment.TargetKind]deployment.Backend{}
	if runtime, err := dockerrt.New(); err != nil {
		logger.Warn("local Docker backend unavailable: %v", err)
	} else {
		backends[deployment.TargetLocalDocker] = deployment.NewLocalDockerBackend(runtime, config.GetEnv("USHADOW_DOCKER_NETWORK", "ushadow"))
		logger.Success("local-docker backend ready")
	}
	backends[deployment.TargetRemoteDocker] = deployment.NewRemoteDockerBackend(nodeManager)
	clusterRegistry := deployment.NewK8sClusterRegistry()
	if kubeconfig := config.GetEnv("KUBECONFIG", ""); kubeconfig != "" || config.GetEnvBool("USHADOW_ENABLE_KUBERNETES", false) {
		if kubeBackend, err := deployment.NewKubernetesBackend(kubeconfig, clusterRegistry); err != nil {
			logger.Warn("kubernetes backend unavailable: %v", err)
		} else {
			backends[deployment.TargetKubernetes] = kubeBackend
			logger.Success("kubernetes backend ready")
		}
	} else {
		backends[deployment.TargetKubernetes] = deployment.NewMultiClusterKubernetesBackend(clusterRegistry)
	}

	engine := deployment.New(reg, resolver, cfg, deploymentStore, backends, proxyController, m)
	if err := proxyController.Reconcile(ctx, deploymentLister{store: deploymentStore}); err != nil {
		logger.Warn("reconciling overlay proxy routes at startup: %v", err)
	}

	logger.Step(7, 8, "Configuring authentication")
	var localBroker *auth.LocalBroker
	if secret := cfg.GetString("security.auth_secret_key", ""); secret != "" {
		localBroker = auth.NewLocalBroker(userStore, secret, cfg.Get("security.signups_enabled", true).(bool))
		logger.Success("local auth mode enabled")
	}
	var federatedBroker *auth.FederatedBroker
	if issuer := cfg.GetString("keycloak.issuer_url", ""); issuer != "" {
		federatedBroker, err = auth.NewFederatedBroker(ctx,
			issuer,
			cfg.GetString("keycloak.client_id", ""),
			cfg.GetString("keycloak.client_secret", ""),
			cfg.GetString("keycloak.redirect_url", ""),
		)
		if err != nil {
			logger.Fatal(exitConfigError, "configuring federated auth: %v", err)
		}
		logger.Success("federated (OIDC) auth mode enabled")
	}
	broker, err := auth.NewBroker(localBroker, federatedBroker)
	if err != nil {
		logger.Fatal(exitConfigError, "%v", err)
	}

	var importer *githubimport.Importer
	if token := cfg.GetString("github.token", ""); token != "" {
		client := githubimport.NewClient(ctx, token)
		importer = githubimport.New(client, servicesDir, reg)
		logger.Success("GitHub import configured")
	}

	cloudProviders := map[cloud.ProviderName]cloud.CloudProvider{}
	if token := cfg.GetString("cloud.hetzner.api_token", ""); token != "" {
		cloudProviders[cloud.ProviderHetzner] = cloud.NewHetzner(token)
		logger.Success("Hetzner cloud driver configured")
	}
	if token := cfg.GetString("cloud.digitalocean.api_token", ""); token != "" {
		cloudProviders[cloud.ProviderDigitalOcean] = cloud.NewDigitalOcean(token)
		logger.Success("DigitalOcean cloud driver configured")
	}
	usageLedger := cloud.NewUsageLedger()

	logger.Step(8, 8, "Starting the HTTP API and health/metrics servers")
	healthChecker := health.NewChecker("controlplane")
	go func() {
		if err := healthChecker.Start(healthPort); err != nil {
			logger.Error("health server: %v", err)
		}
	}()
	go func() {
		metricsAddr := fmt.Sprintf(":%d", metricsPort)
		if err := http.ListenAndServe(metricsAddr, m.Handler()); err != nil {
			logger.Error("metrics server: %v", err)
		}
	}()

	server := api.New(cfg, reg, resolver, engine, nodeManager, broker, localBroker, importer, cloudProviders, usageLedger, clusterRegistry)
	healthChecker.SetHealthy(true)
	healthChecker.SetReady(true)

	go handleShutdownSignals(logger, cancel, healthChecker)

	logger.Success("control plane listening on %s", bindAddr)
	if err := server.Run(ctx, bindAddr, corsOrigins); err != nil {
		logger.Fatal(exitInternalError, "HTTP server error: %v", err)
	}
	logger.Info("control plane shut down gracefully")
}

// deploymentLister adapts the Deployment Store to proxy.DeploymentLister,
// surfacing every currently-running deployment's route for Reconcile's
// startup pass.
type deploymentLister struct {
	store *store.DeploymentStore
}

func (l deploymentLister) RunningDeployments(ctx context.Context) ([]proxy.RunningDeployment, error) {
	deployments, err := l.store.List(ctx, deployment.StateRunning)
	if err != nil {
		return nil, err
	}
	out := make([]proxy.RunningDeployment, 0, len(deployments))
	for _, d := range deployments {
		if d.AccessURL == "" || d.PrimaryPort == 0 {
			continue
		}
		out = append(out, proxy.RunningDeployment{ServiceID: d.ServiceID, Host: d.AccessURL, Port: d.PrimaryPort})
	}
	return out, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func handleShutdownSignals(logger *utils.Logger, cancel context.CancelFunc, healthChecker *health.Checker) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Warn("received signal: %v", sig)
	logger.Info("initiating graceful shutdown...")

	healthChecker.SetReady(false)
	time.Sleep(2 * time.Second) // let in-flight load balancer checks drain
	healthChecker.SetHealthy(false)
	_ = healthChecker.Stop()

	cancel()
}

func printBanner(logger *utils.Logger) {
	fmt.Println(`
+-------------------------------------------+
|             ushadow control plane          |
+-------------------------------------------+`)
	logger.Info("starting control plane...")
}
