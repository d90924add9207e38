package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/activities"
	"github.com/clintrovert/trunkgate/internal/bootstrap"
	"github.com/clintrovert/trunkgate/internal/config"
	"github.com/clintrovert/trunkgate/internal/logging"
	"github.com/clintrovert/trunkgate/internal/metrics"
	"github.com/clintrovert/trunkgate/internal/orchestrator"
	workflows "github.com/clintrovert/trunkgate/internal/temporal/workflows"
	"github.com/clintrovert/trunkgate/internal/vcs"
	"github.com/clintrovert/trunkgate/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to the trunkgate config file")
	metricsAddr := flag.String("metrics-addr", ":9091", "address serving /metrics")
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

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Fatal("failed to create temporal client", zap.Error(err))
	}
	defer c.Close()

	registry := prometheus.NewRegistry()
	notifiers, closeNotifiers, err := bootstrap.Notifiers(cfg, metrics.New(registry), logger)
	if err != nil {
		logger.Fatal("failed to create notifiers", zap.Error(err))
	}
	defer closeNotifiers()

	var workspace *vcs.Workspace
	if cfg.Workspace.Dir != "" {
		workspace = vcs.NewWorkspace(cfg.Workspace.Dir, cfg.Workspace.CloneBase, cfg.Host.Token, logger)
	}

	// Each task names its repository; the worker builds an executor per attempt.
	factory := func(ctx context.Context, repo types.RepositoryInfo) (orchestrator.PhaseRunner, error) {
		if workspace != nil {
			var err error
			if repo, err = workspace.Prepare(ctx, repo); err != nil {
				return nil, err
			}
		}
		return bootstrap.Executor(cfg, repo, logger)
	}

	activities.SetPhaseActivities(activities.NewPhaseActivities(factory, logger))
	activities.SetNotifyActivities(activities.NewNotifyActivities(logger, notifiers...))

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.TaskWorkflow)

	w.RegisterActivity(activities.RunPhaseActivity)
	w.RegisterActivity(activities.NotifyActivity)
	w.RegisterActivity(activities.AbandonActivity)
	w.RegisterActivity(activities.ForgetActivity)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		logger.Info("starting metrics server", zap.String("address", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("starting worker",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("namespace", cfg.Temporal.Namespace),
	)

	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}

	logger.Info("shutting down worker")
}
