package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"harvest-iot-backend/config"
	"harvest-iot-backend/internal/api"
	"harvest-iot-backend/internal/db"
	"harvest-iot-backend/internal/flow"
	"harvest-iot-backend/internal/metrics"
	"harvest-iot-backend/internal/notification"
	"harvest-iot-backend/internal/store"
	"harvest-iot-backend/internal/tracker"
)

var configPath string

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "harvestd",
	Short: "Produce supply-chain tracker: Garden → Storage → Delivery → Client",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST/WebSocket server and the simulation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml" // Default path for local development
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "Path to the YAML configuration file (env CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(deviceCmd)
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return fmt.Errorf("invalid log configuration: %w", err)
	}
	logrus.WithField("path", configPath).Info("configuration loaded successfully")

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logrus.WithField("driver", cfg.Database.Driver).Info("database initialized successfully")

	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}
	defer sqlDB.Close()
	metrics.Init(sqlDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, cfg.History.MaxEntriesPerDevice)
	sim := flow.NewSimulator(
		flow.NewRandom(cfg.Simulator.Seed),
		flow.WithAdvanceProbability(cfg.Simulator.AdvanceProbability),
	)

	hub := notification.NewHub(cfg.Push.ClientBuffer, cfg.Push.Keepalive)
	hub.Start(ctx)

	trackerSvc := tracker.NewService(cfg, sim, appStore, hub)
	if err := trackerSvc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap tracker: %w", err)
	}
	go trackerSvc.Run(ctx)

	router := api.NewRouter(&cfg.Server, trackerSvc, hub)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logrus.Info("Shutdown signal received, stopping services...")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	cancel()
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	logrus.Info("Server gracefully stopped")
	return nil
}
