package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
)

const (
	defaultHTTPReadTimeout  = 10 * time.Second
	defaultHTTPWriteTimeout = 15 * time.Second
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// HTTPConfig holds configuration for the REST API.
type HTTPConfig struct {
	Logger  *slog.Logger
	Weather WeatherGetter
	// Health reports storage reachability for GET /health. Optional.
	Health  func(ctx context.Context) error
	Metrics *metrics.BackendMetrics
	// AccessLog receives one line per request when set.
	AccessLog    io.Writer
	AppName      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type weatherQuery struct {
	City string `validate:"required,max=128"`
}

// NewHTTPApp builds the fiber application serving the weather API.
func NewHTTPApp(cfg *HTTPConfig) (*fiber.App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Weather == nil {
		return nil, errors.New("weather service cannot be nil")
	}

	appName := cfg.AppName
	if appName == "" {
		appName = "weather-cache"
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = defaultHTTPReadTimeout
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = defaultHTTPWriteTimeout
	}

	log := cfg.Logger.With("component", "http")

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		Immutable:             true,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	if cfg.AccessLog != nil {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Output: cfg.AccessLog,
			Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	if cfg.Metrics != nil {
		app.Use(metricsMiddleware(cfg.Metrics))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		if cfg.Health != nil {
			if err := cfg.Health(c.UserContext()); err != nil {
				log.Warn("health check failed", "error", err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unavailable",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": appName,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/api/v1")
	v1.Get("/weather", func(c *fiber.Ctx) error {
		q := weatherQuery{City: c.Query("city")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "city query parameter is required")
		}

		body, err := cfg.Weather.GetWeather(c.UserContext(), q.City)
		if err != nil {
			code := weather.HTTPStatus(err)
			rid, _ := c.Locals("requestid").(string)
			if code >= fiber.StatusInternalServerError {
				log.Error("weather request failed", "city", q.City, "request_id", rid, "error", err)
				return fiber.NewError(code, "failed to get weather for "+strconv.Quote(q.City))
			}
			log.Info("weather request rejected", "city", q.City, "request_id", rid, "status", code, "error", err)
			return fiber.NewError(code, err.Error())
		}

		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(body)
	})

	return app, nil
}

func metricsMiddleware(m *metrics.BackendMetrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Run the error handler now so the recorded status matches the response.
			if hErr := c.App().ErrorHandler(c, err); hErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}

		path := c.Route().Path
		method := c.Method()
		m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Response().StatusCode())).Inc()
		metrics.Since(m.HTTPRequestDuration.WithLabelValues(method, path), start)
		return err
	}
}
