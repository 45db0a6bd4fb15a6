package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-cache/internal/frontend"
	"procodus.dev/weather-cache/pkg/metrics"
)

var frontendCmd = &cobra.Command{
	Use:   "frontend",
	Short: "Run the frontend server",
	Long: `Run the frontend web server that:
- Serves a search page and a weather page per city
- Reads weather from the backend gRPC API
- Exposes health and Prometheus endpoints`,
	RunE: runFrontend,
}

func init() {
	rootCmd.AddCommand(frontendCmd)

	// Frontend-specific flags
	frontendCmd.Flags().String("http-addr", ":8081", "HTTP listen address")
	frontendCmd.Flags().String("backend-addr", "localhost:9090", "Backend gRPC server address")
	frontendCmd.Flags().Duration("request-timeout", 15*time.Second, "timeout for each backend call")
	frontendCmd.Flags().String("metrics-namespace", "weather_cache", "Prometheus namespace (empty disables metrics)")

	// Bind flags to viper
	_ = viper.BindPFlag("frontend.http.addr", frontendCmd.Flags().Lookup("http-addr"))
	_ = viper.BindPFlag("frontend.backend.addr", frontendCmd.Flags().Lookup("backend-addr"))
	_ = viper.BindPFlag("frontend.backend.timeout", frontendCmd.Flags().Lookup("request-timeout"))
	_ = viper.BindPFlag("frontend.metrics.namespace", frontendCmd.Flags().Lookup("metrics-namespace"))
}

func runFrontend(_ *cobra.Command, _ []string) error {
	logger := GetLogger("frontend")
	logger.Info("starting frontend service")

	// Create frontend configuration from viper
	config := &frontend.ServerConfig{
		Logger:          logger,
		HTTPAddr:        viper.GetString("frontend.http.addr"),
		BackendGRPCAddr: viper.GetString("frontend.backend.addr"),
		RequestTimeout:  viper.GetDuration("frontend.backend.timeout"),
	}
	if ns := viper.GetString("frontend.metrics.namespace"); ns != "" {
		config.Metrics = metrics.NewFrontendMetrics(ns)
	}

	// Create and run server
	server, err := frontend.NewServer(config)
	if err != nil {
		logger.Error("failed to create frontend server", "error", err)
		return err
	}

	logger.Info("frontend server configuration",
		"http_addr", config.HTTPAddr,
		"backend_addr", config.BackendGRPCAddr,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("frontend server error", "error", err)
		return err
	}

	logger.Info("frontend server stopped")
	return nil
}
