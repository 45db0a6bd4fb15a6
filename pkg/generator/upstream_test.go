package generator_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/generator"
)

var _ = Describe("Upstream", func() {
	now := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

	var (
		upstream *generator.Upstream
		server   *httptest.Server
	)

	BeforeEach(func() {
		upstream = generator.NewUpstream(&generator.UpstreamConfig{
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			APIKey:   "secret",
			NotFound: []string{"Atlantis"},
			Now:      func() time.Time { return now },
		})
		server = httptest.NewServer(upstream)
		DeferCleanup(server.Close)
	})

	get := func(path string) (int, []byte) {
		resp, err := http.Get(server.URL + path)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, body
	}

	It("should serve a generated document for any city", func() {
		code, body := get("/weather?q=Springfield&appid=secret&units=metric")
		Expect(code).To(Equal(http.StatusOK))

		var doc generator.Document
		Expect(json.Unmarshal(body, &doc)).To(Succeed())
		Expect(doc.Name).To(Equal("Springfield"))
		Expect(doc.Dt).To(Equal(now.Unix()))
		Expect(upstream.Requests()).To(Equal(int64(1)))
	})

	It("should also answer on the versioned path", func() {
		code, _ := get("/data/2.5/weather?q=Springfield&appid=secret")
		Expect(code).To(Equal(http.StatusOK))
	})

	It("should reject a wrong api key", func() {
		code, body := get("/weather?q=Springfield&appid=wrong")
		Expect(code).To(Equal(http.StatusUnauthorized))
		Expect(string(body)).To(ContainSubstring("Invalid API key"))
	})

	It("should answer 404 for configured unknown cities", func() {
		code, body := get("/weather?q=atlantis&appid=secret")
		Expect(code).To(Equal(http.StatusNotFound))
		Expect(body).To(MatchJSON(`{"cod":"404","message":"city not found"}`))
	})

	It("should answer 400 without a city", func() {
		code, _ := get("/weather?appid=secret")
		Expect(code).To(Equal(http.StatusBadRequest))
	})

	It("should drive the weather client end to end", func() {
		client, err := weather.NewClient(&weather.ClientConfig{
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			BaseURL: server.URL,
			APIKey:  "secret",
			Timeout: 5 * time.Second,
		})
		Expect(err).NotTo(HaveOccurred())

		raw, err := client.Fetch(context.Background(), "Shelbyville")
		Expect(err).NotTo(HaveOccurred())
		d, err := weather.Decompose(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.City.Name).To(Equal("Shelbyville"))

		_, err = client.Fetch(context.Background(), "Atlantis")
		Expect(errors.Is(err, weather.ErrCityNotFound)).To(BeTrue())
	})
})
