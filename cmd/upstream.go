package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-cache/pkg/generator"
)

var fakeUpstreamCmd = &cobra.Command{
	Use:   "fake-upstream",
	Short: "Serve synthetic OpenWeather responses",
	Long: `Serve generated current-weather documents on /weather and /data/2.5/weather
so the backend can run without an OpenWeather account. Each city name maps to a
stable fake location whose readings drift between requests.`,
	RunE: runFakeUpstream,
}

func init() {
	rootCmd.AddCommand(fakeUpstreamCmd)

	fakeUpstreamCmd.Flags().String("addr", ":8090", "listen address")
	fakeUpstreamCmd.Flags().String("expect-key", "", "reject requests whose appid differs (empty accepts any)")
	fakeUpstreamCmd.Flags().StringSlice("not-found", []string{"Atlantis"}, "cities answered with 404")

	_ = viper.BindPFlag("fake_upstream.addr", fakeUpstreamCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("fake_upstream.api_key", fakeUpstreamCmd.Flags().Lookup("expect-key"))
	_ = viper.BindPFlag("fake_upstream.not_found", fakeUpstreamCmd.Flags().Lookup("not-found"))
}

func runFakeUpstream(cmd *cobra.Command, _ []string) error {
	logger := GetLogger("fake-upstream")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstream := generator.NewUpstream(&generator.UpstreamConfig{
		Logger:   logger,
		APIKey:   viper.GetString("fake_upstream.api_key"),
		NotFound: splitList(viper.GetStringSlice("fake_upstream.not_found")),
	})

	srv := &http.Server{
		Addr:              viper.GetString("fake_upstream.addr"),
		Handler:           upstream,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake upstream listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("fake upstream stopped", "requests", upstream.Requests())
	return nil
}
