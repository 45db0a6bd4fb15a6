// Package main provides the unified CLI entry point for the weather-cache services.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-cache/internal/weather"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "weather-cache",
		Short: "Cache-through weather service",
		Long: `A cache-through weather service backed by OpenWeather and a relational store:
- serve: HTTP and gRPC weather API with the cache database
- frontend: Web page rendering weather from the backend
- fetch: One-shot lookup against the configured database
- generator: Publishes refresh requests to RabbitMQ
- fake-upstream: Serves synthetic OpenWeather payloads for local development`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/weather-cache/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")

	// Database flags are shared by serve and fetch
	flags.String("db-driver", "postgres", "database driver (postgres, mysql, sqlite)")
	flags.String("db-dsn", "", "database DSN; overrides the individual connection flags")
	flags.String("db-host", "localhost", "database host")
	flags.Int("db-port", 5432, "database port")
	flags.String("db-user", "postgres", "database user")
	flags.String("db-password", "", "database password")
	flags.String("db-name", "weather", "database name")
	flags.String("db-sslmode", "disable", "PostgreSQL SSL mode")

	// Upstream and cache flags are shared by serve and fetch
	flags.String("upstream-url", weather.DefaultBaseURL, "OpenWeather API base URL")
	flags.String("api-key", "", "OpenWeather API key")
	flags.Duration("upstream-timeout", 10*time.Second, "timeout for each upstream request")
	flags.Duration("freshness-window", weather.DefaultFreshnessWindow, "how long a stored reading answers requests")

	bindings := map[string]string{
		"log.level":   "log-level",
		"log.format":  "log-format",
		"db.driver":   "db-driver",
		"db.dsn":      "db-dsn",
		"db.host":     "db-host",
		"db.port":     "db-port",
		"db.user":     "db-user",
		"db.password": "db-password",
		"db.name":     "db-name",
		"db.sslmode":  "db-sslmode",

		"upstream.url":           "upstream-url",
		"upstream.api_key":       "api-key",
		"upstream.timeout":       "upstream-timeout",
		"cache.freshness_window": "freshness-window",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			log.Fatalf("failed to bind %s flag: %v", flag, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := InitConfig(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Log config file being used
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
