package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-cache/internal/backend"
	"procodus.dev/weather-cache/internal/weather"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <city>",
	Short: "Look up the weather for one city",
	Long: `Look up the weather for one city through the cache database.
A fresh stored reading is printed as is; otherwise OpenWeather is queried and
the result stored before printing.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().Bool("pretty", false, "indent the JSON output")
}

func runFetch(cmd *cobra.Command, args []string) (err error) {
	logger := GetLogger("fetch")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := backend.NewDB(dbConfig(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		err = errors.Join(err, backend.CloseDB(db, logger))
	}()

	store, err := weather.NewStore(&weather.StoreConfig{DB: db, Logger: logger})
	if err != nil {
		return err
	}

	client, err := weather.NewClient(&weather.ClientConfig{
		Logger:  logger,
		BaseURL: viper.GetString("upstream.url"),
		APIKey:  viper.GetString("upstream.api_key"),
		Timeout: viper.GetDuration("upstream.timeout"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize upstream client: %w", err)
	}

	svc, err := weather.NewService(&weather.ServiceConfig{
		Repository:      store,
		Upstream:        client,
		Logger:          logger,
		FreshnessWindow: viper.GetDuration("cache.freshness_window"),
	})
	if err != nil {
		return err
	}

	body, err := svc.GetWeather(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get weather for %q: %w", args[0], err)
	}

	if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err != nil {
			return err
		}
		body = buf.Bytes()
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return err
}
