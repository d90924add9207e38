package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	grpcapi "github.com/clintrovert/trunkgate/internal/api/grpc"
	"github.com/clintrovert/trunkgate/internal/api/rest"
	"github.com/clintrovert/trunkgate/internal/bootstrap"
	"github.com/clintrovert/trunkgate/internal/command"
	"github.com/clintrovert/trunkgate/internal/config"
	"github.com/clintrovert/trunkgate/internal/leader"
	"github.com/clintrovert/trunkgate/internal/logging"
	"github.com/clintrovert/trunkgate/internal/temporal"
)

func main() {
	configPath := flag.String("config", "", "path to the trunkgate config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	temporalClient, err := temporal.NewClient(
		cfg.Temporal.Address,
		cfg.Temporal.Namespace,
		cfg.Temporal.TaskQueue,
		temporal.Options{
			RecheckInterval: cfg.Temporal.RecheckInterval,
			PhaseTimeout:    cfg.Temporal.PhaseTimeout,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("failed to create temporal client", zap.Error(err))
	}
	defer temporalClient.Close()

	v, err := bootstrap.Validator(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create validator", zap.Error(err))
	}

	repo := cfg.RepositoryInfo()
	hostClient := bootstrap.Host(cfg, repo, command.NewExecRunner(cfg.Command.Timeout, logger), logger)

	poller := leader.NewPoller(hostClient, leader.PollerConfig{
		Repository: repo,
		Label:      cfg.Leader.Label,
		Interval:   cfg.Leader.PollInterval,
		CreatePR:   cfg.Policy.CreatePR,
	}, logger)
	l := leader.New(poller, temporalClient, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	restHandler := rest.NewHandler(v, l, temporalClient, cfg.Task, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	restHandler.RegisterRoutes(router, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	restServer := &http.Server{
		Addr:              cfg.Leader.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting REST API server", zap.String("address", cfg.Leader.HTTPAddr))
		if err := restServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start REST server", zap.Error(err))
		}
	}()

	grpcListener, err := net.Listen("tcp", cfg.Leader.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}
	grpcServer := grpcapi.NewServer(logger)

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("failed to start gRPC server", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go grpcServer.Watch(ctx, temporalClient.CheckHealth, 30*time.Second)

	go func() {
		if err := l.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("leader failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shut down REST server", zap.Error(err))
	}
	grpcServer.Stop()

	logger.Info("shutdown complete")
}
