package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ushadow-io/ushadow/core/health"
	"github.com/ushadow-io/ushadow/core/utils"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/dockerrt"
	"github.com/ushadow-io/ushadow/internal/nodeagent"
)

const (
	exitConfigError         = 64
	exitMissingCollaborator = 69
	exitInternalError       = 70
)

func main() {
	logger := utils.NewLogger("nodeagent-main")
	printBanner(logger)

	logger.Step(1, 5, "Loading node agent configuration")
	nodeID := config.GetEnv("USHADOW_NODE_ID", "")
	if nodeID == "" {
		logger.Fatal(exitConfigError, "USHADOW_NODE_ID is required")
	}
	secret := config.GetEnv("USHADOW_NODE_SECRET", "")
	if secret == "" {
		logger.Fatal(exitConfigError, "USHADOW_NODE_SECRET is required")
	}
	controlPlaneURL := config.GetEnv("USHADOW_CONTROL_PLANE_URL", "")
	if controlPlaneURL == "" {
		logger.Fatal(exitConfigError, "USHADOW_CONTROL_PLANE_URL is required")
	}
	networkName := config.GetEnv("USHADOW_DOCKER_NETWORK", "ushadow")
	capabilities := splitNonEmpty(config.GetEnv("USHADOW_NODE_CAPABILITIES", ""))
	agentPort := config.GetEnvInt("NODE_AGENT_PORT", 7070)
	healthPort := config.GetEnvInt("HEALTH_PORT", 9091)
	heartbeatInterval := time.Duration(config.GetEnvInt("NODE_HEARTBEAT_INTERVAL_SECONDS", 15)) * time.Second

	logger.Step(2, 5, "Connecting to the local Docker daemon")
	runtime, err := dockerrt.New()
	if err != nil {
		logger.Fatal(exitMissingCollaborator, "connecting to Docker: %v", err)
	}
	logger.Success("Docker runtime ready")

	logger.Step(3, 5, "Starting the agent's local HTTP surface")
	agentServer := nodeagent.New(runtime, networkName, secret)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := agentServer.Start(agentPort); err != nil {
			logger.Error("agent HTTP server: %v", err)
		}
	}()

	logger.Step(4, 5, "Starting the health server and heartbeat loop")
	healthChecker := health.NewChecker("nodeagent")
	go func() {
		if err := healthChecker.Start(healthPort); err != nil {
			logger.Error("health server: %v", err)
		}
	}()

	sender := nodeagent.NewHeartbeatSender(controlPlaneURL, nodeID, secret, capabilities, heartbeatInterval, func() []string {
		return nil
	})
	go sender.Run(ctx)

	healthChecker.SetHealthy(true)
	healthChecker.SetReady(true)

	logger.Step(5, 5, "Node agent ready")
	logger.Success("node %s reporting to %s", nodeID, controlPlaneURL)

	waitForShutdownSignal(logger)
	logger.Info("initiating graceful shutdown...")

	healthChecker.SetReady(false)
	time.Sleep(2 * time.Second)
	healthChecker.SetHealthy(false)
	_ = healthChecker.Stop()

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := agentServer.Stop(shutdownCtx); err != nil {
		logger.Warn("stopping agent HTTP server: %v", err)
	}

	logger.Info("node agent shut down gracefully")
}

func waitForShutdownSignal(logger *utils.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Warn("received signal: %v", sig)
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

func printBanner(logger *utils.Logger) {
	fmt.Println(`
+-------------------------------------------+
|               ushadow node agent           |
+-------------------------------------------+`)
	logger.Info("starting node agent...")
}
