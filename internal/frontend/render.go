package frontend

import (
	"context"
	"net/http"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/weather-cache/pkg/metrics"
)

// render writes component as an HTML page with the given status.
func render(ctx context.Context, w http.ResponseWriter, m *metrics.FrontendMetrics, name string, status int, c templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	//nolint:contextcheck // Context is passed to Templ's Render method
	return trackTemplateRender(m, name, func() error {
		return c.Render(ctx, w)
	})
}

// trackTemplateRender wraps template rendering with metrics tracking.
func trackTemplateRender(m *metrics.FrontendMetrics, templateName string, renderFunc func() error) error {
	// If metrics not enabled, just render
	if m == nil {
		return renderFunc()
	}

	timer := prometheus.NewTimer(m.TemplateRenderTime.WithLabelValues(templateName))
	defer timer.ObserveDuration()

	err := renderFunc()
	if err != nil {
		m.TemplateRenderErrors.WithLabelValues(templateName).Inc()
		return err
	}

	return nil
}
