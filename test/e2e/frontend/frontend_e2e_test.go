package frontend_test

import (
	"io"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func get(path string) (*http.Response, string) {
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(baseURL + path)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, string(body)
}

var _ = Describe("Frontend E2E Tests", func() {
	Describe("Health Check", func() {
		It("returns OK", func() {
			resp, _ := get("/health")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("Index Page", func() {
		It("renders the search form", func() {
			resp, body := get("/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/html"))
			Expect(body).To(ContainSubstring(`action="/weather"`))
		})
	})

	Describe("Weather Page", func() {
		It("renders generated weather fetched through the backend", func() {
			resp, body := get("/weather?city=" + url.QueryEscape("Lisbon"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("<h1>Lisbon"))
			Expect(body).To(ContainSubstring("°C"))
			Expect(body).To(ContainSubstring("openweathermap.org/img/wn/"))
		})

		It("serves a second request from the cache", func() {
			get("/weather?city=Porto")
			before := upstream.Requests()

			resp, body := get("/weather?city=PORTO")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("<h1>Porto"))
			Expect(upstream.Requests()).To(Equal(before))
		})

		It("shows a not found page for unknown cities", func() {
			resp, body := get("/weather?city=Atlantis")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(body).To(ContainSubstring("City not found"))
		})

		It("redirects a blank search to the index", func() {
			resp, _ := get("/weather?city=+")
			Expect(resp.StatusCode).To(Equal(http.StatusSeeOther))
			Expect(resp.Header.Get("Location")).To(Equal("/"))
		})
	})

	Describe("Error Handling", func() {
		It("returns 404 for unknown routes", func() {
			resp, _ := get("/devices")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("rejects POST on the weather page", func() {
			resp, err := http.Post(baseURL+"/weather", "text/plain", nil)
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})
	})
})
