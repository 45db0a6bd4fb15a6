package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-cache/internal/backend"
)

var backendCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"backend"},
	Short:   "Run the backend server",
	Long: `Run the backend server that:
- Answers weather requests from the cache database while readings are fresh
- Fetches and stores OpenWeather data on a cache miss
- Serves the HTTP API and gRPC endpoints
- Optionally publishes stored-reading events and consumes refresh requests via RabbitMQ
- Optionally warms the cache for a list of cities`,
	RunE: runBackend,
}

func init() {
	rootCmd.AddCommand(backendCmd)

	// Backend-specific flags
	backendCmd.Flags().String("http-addr", ":8080", "HTTP API listen address (empty disables)")
	backendCmd.Flags().String("grpc-addr", ":9090", "gRPC listen address (empty disables)")
	backendCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL")
	backendCmd.Flags().String("events-queue", "", "queue for stored-reading events (empty disables)")
	backendCmd.Flags().String("refresh-queue", "", "queue of refresh requests to consume (empty disables)")
	backendCmd.Flags().StringSlice("warm-cities", nil, "cities to keep warm in the cache")
	backendCmd.Flags().Duration("warm-interval", 15*time.Minute, "interval between cache warm-up runs")
	backendCmd.Flags().String("metrics-namespace", "weather_cache", "Prometheus namespace (empty disables metrics)")
	backendCmd.Flags().Bool("access-log", true, "write HTTP access logs to stdout")

	// Bind flags to viper
	_ = viper.BindPFlag("backend.http.addr", backendCmd.Flags().Lookup("http-addr"))
	_ = viper.BindPFlag("backend.grpc.addr", backendCmd.Flags().Lookup("grpc-addr"))
	_ = viper.BindPFlag("backend.rabbitmq.url", backendCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("backend.rabbitmq.events_queue", backendCmd.Flags().Lookup("events-queue"))
	_ = viper.BindPFlag("backend.rabbitmq.refresh_queue", backendCmd.Flags().Lookup("refresh-queue"))
	_ = viper.BindPFlag("backend.warm.cities", backendCmd.Flags().Lookup("warm-cities"))
	_ = viper.BindPFlag("backend.warm.interval", backendCmd.Flags().Lookup("warm-interval"))
	_ = viper.BindPFlag("backend.metrics.namespace", backendCmd.Flags().Lookup("metrics-namespace"))
	_ = viper.BindPFlag("backend.http.access_log", backendCmd.Flags().Lookup("access-log"))
}

func runBackend(_ *cobra.Command, _ []string) error {
	logger := GetLogger("backend")
	logger.Info("starting backend service")

	// Create backend configuration from viper
	config := &backend.ServerConfig{
		Logger:           logger,
		Database:         dbConfig(logger),
		UpstreamBaseURL:  viper.GetString("upstream.url"),
		APIKey:           viper.GetString("upstream.api_key"),
		UpstreamTimeout:  viper.GetDuration("upstream.timeout"),
		FreshnessWindow:  viper.GetDuration("cache.freshness_window"),
		HTTPAddr:         viper.GetString("backend.http.addr"),
		GRPCAddr:         viper.GetString("backend.grpc.addr"),
		RabbitMQURL:      viper.GetString("backend.rabbitmq.url"),
		EventsQueue:      viper.GetString("backend.rabbitmq.events_queue"),
		RefreshQueue:     viper.GetString("backend.rabbitmq.refresh_queue"),
		WarmCities:       splitList(viper.GetStringSlice("backend.warm.cities")),
		WarmInterval:     viper.GetDuration("backend.warm.interval"),
		MetricsNamespace: viper.GetString("backend.metrics.namespace"),
	}
	if viper.GetBool("backend.http.access_log") {
		config.AccessLog = os.Stdout
	}

	// Create and run server
	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create backend server", "error", err)
		return err
	}

	logger.Info("backend server configuration",
		"db_driver", config.Database.Driver,
		"db_host", config.Database.Host,
		"db_name", config.Database.DBName,
		"upstream_url", config.UpstreamBaseURL,
		"freshness_window", config.FreshnessWindow,
		"http_addr", config.HTTPAddr,
		"grpc_addr", config.GRPCAddr,
		"events_queue", config.EventsQueue,
		"refresh_queue", config.RefreshQueue,
		"warm_cities", config.WarmCities,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("backend server error", "error", err)
		return err
	}

	logger.Info("backend server stopped")
	return nil
}
