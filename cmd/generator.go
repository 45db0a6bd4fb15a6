package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-cache/internal/producer"
	"procodus.dev/weather-cache/pkg/metrics"
)

var generatorCmd = &cobra.Command{
	Use:     "generator",
	Aliases: []string{"produce"},
	Short:   "Run the refresh request generator",
	Long: `Run the refresh request generator that:
- Publishes cache refresh requests to RabbitMQ
- Cycles through the configured cities, or fake ones when none are given
- Supports multiple concurrent producers`,
	RunE: runGenerator,
}

func init() {
	rootCmd.AddCommand(generatorCmd)

	// Generator-specific flags
	generatorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	generatorCmd.Flags().String("queue-name", "weather-refresh", "RabbitMQ queue name for refresh requests")
	generatorCmd.Flags().StringSlice("cities", nil, "cities to request (fake cities when empty)")
	generatorCmd.Flags().Int("producer-count", 1, "Number of concurrent producers")
	generatorCmd.Flags().Duration("interval", 30*time.Second, "Interval between refresh requests")
	generatorCmd.Flags().String("metrics-namespace", "", "Prometheus namespace (empty disables metrics)")

	// Bind flags to viper
	_ = viper.BindPFlag("generator.rabbitmq.url", generatorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("generator.rabbitmq.queue_name", generatorCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("generator.cities", generatorCmd.Flags().Lookup("cities"))
	_ = viper.BindPFlag("generator.producer_count", generatorCmd.Flags().Lookup("producer-count"))
	_ = viper.BindPFlag("generator.interval", generatorCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("generator.metrics.namespace", generatorCmd.Flags().Lookup("metrics-namespace"))
}

func runGenerator(_ *cobra.Command, _ []string) error {
	logger := GetLogger("generator")
	logger.Info("starting generator service")

	// Create producer configuration from viper
	config := &producer.ServerConfig{
		Logger:        logger,
		RabbitMQURL:   viper.GetString("generator.rabbitmq.url"),
		QueueName:     viper.GetString("generator.rabbitmq.queue_name"),
		Cities:        splitList(viper.GetStringSlice("generator.cities")),
		ProducerCount: viper.GetInt("generator.producer_count"),
		Interval:      viper.GetDuration("generator.interval"),
	}
	if ns := viper.GetString("generator.metrics.namespace"); ns != "" {
		config.Metrics = metrics.NewProducerMetrics(ns)
		config.MQMetrics = metrics.NewMQMetrics(ns)
	}

	// Create and run server
	server, err := producer.NewServer(config)
	if err != nil {
		logger.Error("failed to create generator server", "error", err)
		return err
	}

	logger.Info("generator server configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"cities", config.Cities,
		"producer_count", config.ProducerCount,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("generator server error", "error", err)
		return err
	}

	logger.Info("generator server stopped")
	return nil
}
