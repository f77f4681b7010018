package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/breaker"
	"github.com/oddsflow/collector/internal/config"
	"github.com/oddsflow/collector/internal/fetcher"
	"github.com/oddsflow/collector/internal/model"
	"github.com/oddsflow/collector/internal/monitor"
	"github.com/oddsflow/collector/internal/orchestrator"
	"github.com/oddsflow/collector/internal/retry"
	"github.com/oddsflow/collector/internal/scheduler"
	"github.com/oddsflow/collector/internal/sink"
	"github.com/oddsflow/collector/internal/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load("./config")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Health monitor with attached alert sinks.
	healthMonitor := monitor.NewHealthMonitor(monitor.Config{
		WindowSize:             cfg.Monitor.WindowSize,
		AlertThresholdFailures: cfg.Monitor.AlertThresholdFailures,
		MinSamples:             cfg.Monitor.MinSamples,
		AlertLogCapacity:       cfg.Monitor.AlertLogCapacity,
		DegradedAlertInterval:  cfg.Monitor.DegradedAlertInterval,
	}, logger)

	var sinks []sink.AlertSink

	if cfg.Alerts.File.Enabled {
		fileSink, err := sink.NewFileSink(cfg.Alerts.File.Path)
		if err != nil {
			logger.Fatal("Failed to open alert file sink", zap.Error(err))
		}
		sinks = append(sinks, fileSink)
	}

	if cfg.Alerts.NATS.Enabled {
		nc, err := connectNATS(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			logger.Fatal("Failed to create JetStream context", zap.Error(err))
		}

		natsSink, err := sink.NewNATSSink(js, logger)
		if err != nil {
			logger.Fatal("Failed to create NATS alert sink", zap.Error(err))
		}
		sinks = append(sinks, natsSink)
	}

	if cfg.Alerts.Webhook.Enabled {
		sinks = append(sinks, sink.NewWebhookSink(cfg.Alerts.Webhook.URL, logger))
	}

	for _, s := range sinks {
		healthMonitor.RegisterAlertCallback(sink.Callback(s, logger))
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				logger.Error("Failed to close alert sink", zap.Error(err))
			}
		}
	}()

	// Host resource sampler for health reports.
	if cfg.Metrics.Enabled {
		sampler := monitor.NewSystemSampler(cfg.Metrics.Interval, logger)
		if err := sampler.Start(ctx); err != nil {
			logger.Fatal("Failed to start system sampler", zap.Error(err))
		}
		defer sampler.Stop()
		healthMonitor.AttachResources(sampler)
	}

	// Per-source circuit breakers and the retry executor.
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
	}, logger)

	executor := retry.NewExecutor(breakers, retry.DefaultBackoff(), cfg.Orchestrator.EnableRetries, logger)

	orch, err := orchestrator.New(executor, healthMonitor, orchestrator.Config{
		MaxConcurrentTasks: cfg.Orchestrator.MaxConcurrentTasks,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create orchestrator", zap.Error(err))
	}

	// Run report persistence.
	var history storage.RunHistoryStorage
	if cfg.History.Enabled {
		history, err = storage.NewSQLiteRunHistory(logger, cfg.History.Path)
		if err != nil {
			logger.Fatal("Failed to create run history storage", zap.Error(err))
		}
		defer history.Close()
	}

	runCollection := func(runCtx context.Context) {
		for _, src := range cfg.Sources {
			timeout := src.Timeout
			if timeout <= 0 {
				timeout = cfg.Orchestrator.DefaultTimeout
			}

			task := &model.Task{
				Source:      src.Name,
				Description: src.Description,
				Fetcher:     fetcher.NewHTTPFetcher(src.URL, src.Headers, logger),
				Priority:    src.Priority,
				Timeout:     timeout,
				MaxRetries:  src.MaxRetries,
			}
			if task.MaxRetries == 0 {
				task.MaxRetries = cfg.Orchestrator.DefaultMaxRetries
			}

			if err := orch.Schedule(task); err != nil {
				logger.Error("Failed to schedule task",
					zap.String("source", src.Name),
					zap.Error(err))
			}
		}

		report := orch.Run(runCtx)

		if history != nil {
			if err := history.Store(runCtx, report); err != nil {
				logger.Error("Failed to store run report",
					zap.String("run_id", report.RunID),
					zap.Error(err))
			}
		}

		health := healthMonitor.Report()
		logger.Info("System health after run",
			zap.String("run_id", report.RunID),
			zap.String("system_health", string(health.SystemHealth)),
			zap.Int("sources", len(health.Sources)),
			zap.Int("recent_alerts", len(health.RecentAlerts)))
	}

	// Recurring runs; with no schedules configured, collect once and exit.
	if len(cfg.Schedules) == 0 {
		runCollection(ctx)
		return
	}

	runner := scheduler.NewCronRunner(runCollection, logger)
	for _, sched := range cfg.Schedules {
		if err := runner.AddSchedule(ctx, &model.CollectionSchedule{
			Name:       sched.Name,
			Expression: sched.Expression,
		}); err != nil {
			logger.Fatal("Failed to add schedule",
				zap.String("name", sched.Name),
				zap.Error(err))
		}
	}

	if err := runner.Start(ctx); err != nil {
		logger.Fatal("Failed to start cron runner", zap.Error(err))
	}

	// Periodic cleanup of old run history.
	if history != nil {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					cutoff := time.Now().AddDate(0, 0, -cfg.History.MaxAge)
					if err := history.DeleteBefore(ctx, cutoff); err != nil {
						logger.Error("Failed to cleanup old run history", zap.Error(err))
					}
				}
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	runner.Stop()
	logger.Info("Collector shutting down gracefully")
}

// connectNATS connects with retry, mirroring the reconnect options we
// want in production.
func connectNATS(cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.Alerts.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.Alerts.NATS.ReconnectWait),
		nats.Timeout(cfg.Alerts.NATS.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	var err error
	for i := 0; i < 5; i++ {
		nc, err = nats.Connect(cfg.Alerts.NATS.URL, opts...)
		if err == nil {
			return nc, nil
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return nil, err
}
