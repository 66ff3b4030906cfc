package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fleetmaster/internal/agent"
	"fleetmaster/internal/config"
	"fleetmaster/internal/discovery/etcd"
	"fleetmaster/internal/models"
	clienthttp "fleetmaster/pkg/http"
	"fleetmaster/pkg/logger"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)

	agentLogger := logger.New("DelegateAgent", "", cfg.Agent.AccountID)

	// Prefer etcd discovery; fall back to the configured address.
	agentCfg := cfg.Agent
	if len(cfg.Databases.Etcd.Endpoints) > 0 && cfg.Orchestrator.ServiceName != "" {
		if discovery, err := etcd.NewServiceDiscovery(cfg.Databases.Etcd.Endpoints); err == nil {
			if addrs, err := discovery.Discover(cfg.Orchestrator.ServiceName); err == nil && len(addrs) > 0 {
				agentCfg.OrchestratorAddress = addrs[0]
				agentLogger.Info("Discovered orchestrator at " + addrs[0])
			}
			discovery.Close()
		}
	}
	if agentCfg.OrchestratorAddress == "" {
		log.Fatal("No orchestrator address configured or discovered")
	}

	httpClient, err := clienthttp.NewClient(cfg.Middleware.CircuitBreaker)
	if err != nil {
		agentLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid circuit breaker configuration")
	}

	runner := agent.NewRunner(agentCfg, agent.NewExecutor(httpClient), agentLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runner.Register(ctx); err != nil {
		agentLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to register with orchestrator")
	}
	runner.ListenForTaskPings(ctx)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	if err := runner.Run(ctx); err != nil {
		agentLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Agent loop failed")
	}
	agentLogger.Info("Delegate agent stopped")
}
