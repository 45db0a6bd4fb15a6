package generator

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"
)

// UpstreamConfig holds the configuration for a fake OpenWeather server.
type UpstreamConfig struct {
	Logger *slog.Logger
	// APIKey, when set, must match the appid parameter.
	APIKey string
	// NotFound lists city names answered with 404.
	NotFound []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Upstream serves generated documents on the OpenWeather current-weather route.
// Each city keeps its own generator so consecutive answers drift smoothly.
type Upstream struct {
	logger     *slog.Logger
	apiKey     string
	notFound   map[string]struct{}
	now        func() time.Time
	mux        *http.ServeMux
	mu         sync.Mutex
	generators map[string]*WeatherGenerator
	requests   atomic.Int64
}

// NewUpstream creates the fake server handler.
func NewUpstream(cfg *UpstreamConfig) *Upstream {
	if cfg == nil {
		cfg = &UpstreamConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	u := &Upstream{
		logger:     logger.With("component", "fake-upstream"),
		apiKey:     cfg.APIKey,
		notFound:   make(map[string]struct{}, len(cfg.NotFound)),
		now:        now,
		generators: make(map[string]*WeatherGenerator),
	}
	for _, name := range cfg.NotFound {
		u.notFound[foldName(name)] = struct{}{}
	}

	u.mux = http.NewServeMux()
	u.mux.HandleFunc("GET /weather", u.handleWeather)
	u.mux.HandleFunc("GET /data/2.5/weather", u.handleWeather)
	return u
}

// ServeHTTP implements http.Handler.
func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mux.ServeHTTP(w, r)
}

// Requests returns the number of weather requests served so far.
func (u *Upstream) Requests() int64 {
	return u.requests.Load()
}

func (u *Upstream) handleWeather(w http.ResponseWriter, r *http.Request) {
	u.requests.Add(1)
	q := r.URL.Query()

	if u.apiKey != "" && q.Get("appid") != u.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"cod":     http.StatusUnauthorized,
			"message": "Invalid API key. Please see https://openweathermap.org/faq#error401 for more info.",
		})
		return
	}

	city := strings.TrimSpace(q.Get("q"))
	if city == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"cod": "400", "message": "Nothing to geocode"})
		return
	}

	key := foldName(city)
	if _, missing := u.notFound[key]; missing {
		writeJSON(w, http.StatusNotFound, map[string]any{"cod": "404", "message": "city not found"})
		return
	}

	doc := u.generator(key, city).Generate(u.now())
	u.logger.Debug("serving generated weather", "city", doc.Name, "temp", doc.Main.Temp)
	writeJSON(w, http.StatusOK, doc)
}

func (u *Upstream) generator(key, name string) *WeatherGenerator {
	u.mu.Lock()
	defer u.mu.Unlock()

	g, ok := u.generators[key]
	if !ok {
		g = NewWeatherGenerator(NewCity(name))
		u.generators[key] = g
	}
	return g
}

func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
