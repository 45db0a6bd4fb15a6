package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"procodus.dev/weather-cache/internal/backend"
	"procodus.dev/weather-cache/pkg/logger"
)

const envPrefix = "WEATHER_CACHE"

// InitConfig initializes Viper configuration.
// It supports reading from a .env file, config files (config.yaml) and
// environment variables.
func InitConfig(cfgFile string) error {
	// Values already present in the environment win over .env entries
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory and /etc/weather-cache/
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/weather-cache/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables, e.g. WEATHER_CACHE_UPSTREAM_API_KEY
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			// Config file not found; rely on env vars and defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger(service string) *slog.Logger {
	return logger.New(&logger.Config{
		Output:  os.Stdout,
		Level:   logger.ParseLevel(viper.GetString("log.level")),
		Format:  viper.GetString("log.format"),
		Service: service,
	})
}

// dbConfig builds the database configuration from the shared db.* keys.
func dbConfig(log *slog.Logger) *backend.DBConfig {
	return &backend.DBConfig{
		Logger:   log,
		Driver:   viper.GetString("db.driver"),
		DSN:      viper.GetString("db.dsn"),
		Host:     viper.GetString("db.host"),
		Port:     viper.GetInt("db.port"),
		User:     viper.GetString("db.user"),
		Password: viper.GetString("db.password"),
		DBName:   viper.GetString("db.name"),
		SSLMode:  viper.GetString("db.sslmode"),
	}
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
