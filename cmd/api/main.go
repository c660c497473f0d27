package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roundup/internal/interfaces/scheduler"
	"roundup/internal/shared/config"
	"roundup/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize telemetry (if enabled)
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Printf("Error shutting down telemetry: %v", err)
			}
		}()
	}

	// Initialize dependencies
	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Start the worker pool and daily schedulers (if enabled)
	var scheds []*scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		deps.Pool.Start()

		provider := scheduler.DailyJobProvider(deps.ConfigRepo, deps.Orchestrator, deps.RoundUpService, deps.Reconciler)
		for _, at := range cfg.Scheduler.ScheduleTimes {
			// Only the first scheduler honors run-on-startup so the batch
			// is not submitted once per configured time.
			sched, err := scheduler.NewScheduler(deps.Pool, provider, scheduler.Config{
				ScheduleTime: at,
				RunOnStartup: cfg.Scheduler.RunOnStartup && len(scheds) == 0,
			})
			if err != nil {
				return err
			}
			sched.Start()
			scheds = append(scheds, sched)
		}
		log.Printf("Scheduler started with times: %v", cfg.Scheduler.ScheduleTimes)
	} else {
		// The pool still serves webhook-driven backfills
		deps.Pool.Start()
		log.Println("Scheduled sweeps are disabled")
	}

	// Setup routes and start servers
	handler := SetupRoutes(deps, cfg)
	srv, redirectSrv := StartServers(NewServerConfigFromConfig(handler, cfg))

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	GracefulShutdown(srv, redirectSrv, scheds, deps.Pool, 30*time.Second)
	return nil
}
