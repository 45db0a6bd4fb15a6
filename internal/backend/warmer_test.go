package backend_test

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/weather-cache/internal/backend"
	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
)

var _ = Describe("Warmer", func() {
	Describe("NewWarmer", func() {
		It("should return error when config is nil", func() {
			_, err := backend.NewWarmer(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
		})

		It("should return error when logger is nil", func() {
			_, err := backend.NewWarmer(&backend.WarmerConfig{Weather: &fakeWeather{}})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
		})

		It("should return error when weather getter is nil", func() {
			_, err := backend.NewWarmer(&backend.WarmerConfig{Logger: testLogger()})
			Expect(err).To(MatchError(ContainSubstring("weather service cannot be nil")))
		})

		It("should skip blank city names", func() {
			w, err := backend.NewWarmer(&backend.WarmerConfig{
				Logger:  testLogger(),
				Weather: &fakeWeather{},
				Cities:  []string{"London", " ", "", " Paris "},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Cities()).To(Equal([]string{"London", "Paris"}))
		})
	})

	Describe("RunOnce", func() {
		It("should request every city and count failures", func() {
			fake := &fakeWeather{
				fn: func(_ context.Context, city string) ([]byte, error) {
					if city == "Atlantis" {
						return nil, weather.ErrCityNotFound
					}
					return []byte(`{}`), nil
				},
			}
			m := metrics.NewBackendMetrics("warmertest")
			w, err := backend.NewWarmer(&backend.WarmerConfig{
				Logger:  testLogger(),
				Weather: fake,
				Metrics: m,
				Cities:  []string{"London", "Atlantis", "Paris"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(w.RunOnce(context.Background())).To(Equal(1))
			Expect(fake.Calls()).To(ConsistOf("London", "Atlantis", "Paris"))
			Expect(testutil.ToFloat64(m.WarmerRuns.WithLabelValues("success"))).To(Equal(2.0))
			Expect(testutil.ToFloat64(m.WarmerRuns.WithLabelValues("error"))).To(Equal(1.0))
		})

		It("should bound each call with the configured timeout", func() {
			fake := &fakeWeather{
				fn: func(ctx context.Context, _ string) ([]byte, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				},
			}
			w, err := backend.NewWarmer(&backend.WarmerConfig{
				Logger:  testLogger(),
				Weather: fake,
				Cities:  []string{"London"},
				Timeout: 50 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(w.RunOnce(context.Background())).To(Equal(1))
		})
	})

	Describe("Start", func() {
		It("should do nothing without cities", func() {
			fake := &fakeWeather{}
			w, err := backend.NewWarmer(&backend.WarmerConfig{Logger: testLogger(), Weather: fake})
			Expect(err).NotTo(HaveOccurred())

			Expect(w.Start()).To(Succeed())
			w.Stop()
			Consistently(fake.Calls, 200*time.Millisecond).Should(BeEmpty())
		})

		It("should warm immediately and keep warming on the interval", func() {
			var runs atomic.Int32
			fake := &fakeWeather{
				fn: func(context.Context, string) ([]byte, error) {
					runs.Add(1)
					return []byte(`{}`), nil
				},
			}
			w, err := backend.NewWarmer(&backend.WarmerConfig{
				Logger:   testLogger(),
				Weather:  fake,
				Cities:   []string{"London"},
				Interval: time.Second,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(w.Start()).To(Succeed())
			DeferCleanup(w.Stop)

			Eventually(runs.Load).Should(BeNumerically(">=", 1))
			Eventually(runs.Load, 3*time.Second).Should(BeNumerically(">=", 2))
		})
	})
})
