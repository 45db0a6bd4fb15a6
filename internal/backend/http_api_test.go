package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/weather-cache/internal/backend"
	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
)

type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

var _ = Describe("HTTP API", func() {
	var (
		fake *fakeWeather
		app  *fiber.App
	)

	BeforeEach(func() {
		fake = &fakeWeather{}
		var err error
		app, err = backend.NewHTTPApp(&backend.HTTPConfig{
			Logger:  testLogger(),
			Weather: fake,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	get := func(target string) (*http.Response, []byte) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, body
	}

	decodeError := func(body []byte) errorBody {
		var e errorBody
		Expect(json.Unmarshal(body, &e)).To(Succeed())
		return e
	}

	Describe("NewHTTPApp", func() {
		It("should reject a nil config", func() {
			_, err := backend.NewHTTPApp(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
		})

		It("should require a logger and a weather getter", func() {
			_, err := backend.NewHTTPApp(&backend.HTTPConfig{Weather: fake})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))

			_, err = backend.NewHTTPApp(&backend.HTTPConfig{Logger: testLogger()})
			Expect(err).To(MatchError(ContainSubstring("weather service cannot be nil")))
		})
	})

	Describe("GET /api/v1/weather", func() {
		It("should return the weather document unchanged", func() {
			fake.fn = func(_ context.Context, _ string) ([]byte, error) {
				return []byte(londonPayload), nil
			}

			resp, body := get("/api/v1/weather?city=London")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(resp.Header.Get("X-Request-ID")).NotTo(BeEmpty())
			Expect(body).To(MatchJSON(londonPayload))
			Expect(fake.Calls()).To(Equal([]string{"London"}))
		})

		It("should pass the city through url decoding", func() {
			resp, _ := get("/api/v1/weather?city=New%20York")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(fake.Calls()).To(Equal([]string{"New York"}))
		})

		It("should reject a missing city without calling the service", func() {
			resp, body := get("/api/v1/weather")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			e := decodeError(body)
			Expect(e.Error).To(BeTrue())
			Expect(e.Message).To(ContainSubstring("city"))
			Expect(fake.Calls()).To(BeEmpty())
		})

		It("should reject an overly long city name", func() {
			resp, _ := get("/api/v1/weather?city=" + strings.Repeat("a", 200))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(fake.Calls()).To(BeEmpty())
		})

		DescribeTable("should map service errors onto status codes",
			func(err error, code int) {
				fake.fn = func(_ context.Context, _ string) ([]byte, error) {
					return nil, err
				}

				resp, body := get("/api/v1/weather?city=Atlantis")
				Expect(resp.StatusCode).To(Equal(code))
				Expect(decodeError(body).Error).To(BeTrue())
			},
			Entry("blank city", weather.ErrInvalidCity, http.StatusBadRequest),
			Entry("unknown city", weather.ErrCityNotFound, http.StatusNotFound),
			Entry("breaker open", weather.ErrUpstreamUnavailable, http.StatusServiceUnavailable),
			Entry("upstream status", &weather.UpstreamError{StatusCode: 500, Err: errors.New("boom")}, http.StatusBadGateway),
			Entry("storage failure", &weather.PersistenceError{Op: "insert reading", Err: errors.New("disk full")}, http.StatusInternalServerError),
		)

		It("should not leak internal error details on server errors", func() {
			fake.fn = func(_ context.Context, _ string) ([]byte, error) {
				return nil, &weather.PersistenceError{Op: "insert reading", Err: errors.New("pq: secret detail")}
			}

			_, body := get("/api/v1/weather?city=London")
			Expect(decodeError(body).Message).NotTo(ContainSubstring("secret"))
		})
	})

	Describe("GET /health", func() {
		It("should report ok without a health check", func() {
			resp, body := get("/health")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{"status":"ok","service":"weather-cache"}`))
		})

		It("should report unavailable when the health check fails", func() {
			app, err := backend.NewHTTPApp(&backend.HTTPConfig{
				Logger:  testLogger(),
				Weather: fake,
				Health: func(context.Context) error {
					return errors.New("database is gone")
				},
			})
			Expect(err).NotTo(HaveOccurred())

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("GET /metrics", func() {
		It("should expose the prometheus registry", func() {
			resp, body := get("/metrics")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("go_goroutines"))
		})
	})

	Describe("request metrics", func() {
		It("should record the final status of each request", func() {
			m := metrics.NewBackendMetrics("httpapitest")
			app, err := backend.NewHTTPApp(&backend.HTTPConfig{
				Logger:  testLogger(),
				Weather: fake,
				Metrics: m,
			})
			Expect(err).NotTo(HaveOccurred())

			for _, target := range []string{"/api/v1/weather?city=Oslo", "/api/v1/weather"} {
				resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
			}

			Expect(testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/weather", "200"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/weather", "400"))).To(Equal(1.0))
		})
	})
})
