package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/labwatch/labwatch/internal/alerting"
	"github.com/labwatch/labwatch/internal/api"
	"github.com/labwatch/labwatch/internal/broadcast"
	"github.com/labwatch/labwatch/internal/config"
	"github.com/labwatch/labwatch/internal/database"
	"github.com/labwatch/labwatch/internal/notify"
	"github.com/labwatch/labwatch/internal/scheduler"
	"github.com/labwatch/labwatch/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "labwatchd",
	Short: "LabWatch homelab monitoring daemon",
	Long:  "Collects metrics from configured agents, evaluates alert rules and dispatches notifications.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collection, alerting and API pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func main() {
	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	hub := broadcast.NewHub(log)
	go hub.Run(ctx)

	dispatcher := notify.NewDispatcher(db, notify.NewRegistry(), clk, log)
	correlator := alerting.NewCorrelator(db, clk,
		time.Duration(cfg.Correlation.WindowMinutes)*time.Minute,
		cfg.Correlation.SuppressionThreshold)
	manager := alerting.NewManager(db, clk, log, dispatcher, hub, correlator)

	engine := alerting.NewEngine(db, clk, log, manager,
		time.Duration(cfg.Evaluation.IntervalSeconds)*time.Second,
		time.Duration(cfg.Evaluation.StalenessSeconds)*time.Second)
	go engine.Run(ctx)

	sched := scheduler.New(db, clk, log, scheduler.Options{
		DefaultInterval: time.Duration(cfg.Scheduler.DefaultIntervalSeconds) * time.Second,
		CollectTimeout:  cfg.CollectTimeout(),
		ShutdownGrace:   cfg.ShutdownGrace(),
		MaxConcurrent:   cfg.Scheduler.MaxConcurrentCollections,
	})
	if err := sched.Start(cfg.Agents); err != nil {
		return fmt.Errorf("failed to start scheduler: %v", err)
	}

	server := api.NewServer(db, sched, manager, dispatcher, hub, log)
	errCh := make(chan error, 1)
	go func() {
		log.Info("api server listening", "port", cfg.Server.Port)
		errCh <- server.Start(cfg.Server.Port)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			sched.Stop()
			return err
		}
	}

	log.Info("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("api server shutdown incomplete", "error", err)
	}
	return nil
}
