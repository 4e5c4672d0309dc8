package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := newHTTPMetrics(mp.Meter(httpInstrumentationName), zap.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/history/:company", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"company": c.Param("company")})
	})
	e.POST("/api/v1/suppliers/extract", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "company_name field is required")
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/api/v1/history/Tesco"},
		{http.MethodGet, "/api/v1/history/Sainsbury"},
		{http.MethodPost, "/api/v1/suppliers/extract"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(r.method, r.path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = true

			switch md.Name {
			case "supplierd.http.requests_total":
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)

				byRoute := map[string]int64{}
				statuses := map[int64]bool{}
				var total int64
				for _, dp := range sum.DataPoints {
					total += dp.Value
					route, _ := dp.Attributes.Value(attribute.Key("endpoint"))
					byRoute[route.AsString()] += dp.Value
					status, _ := dp.Attributes.Value(attribute.Key("status"))
					statuses[status.AsInt64()] = true
				}
				assert.Equal(t, int64(4), total)
				assert.Equal(t, int64(2), byRoute["/api/v1/history/:company"])
				assert.True(t, statuses[http.StatusBadRequest], "handler errors should be recorded with their status")
			case "supplierd.http.request_duration_seconds":
				hist, ok := md.Data.(metricdata.Histogram[float64])
				require.True(t, ok)
				var count uint64
				for _, dp := range hist.DataPoints {
					count += dp.Count
				}
				assert.Equal(t, uint64(4), count)
			}
		}
	}

	assert.True(t, found["supplierd.http.requests_total"], "requests counter not found")
	assert.True(t, found["supplierd.http.request_duration_seconds"], "duration histogram not found")
	assert.True(t, found["supplierd.http.response_size_bytes"], "response size histogram not found")
	assert.True(t, found["supplierd.http.active_requests"], "active requests gauge not found")
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unmatched"},
		{"/health", "/health"},
		{"/api/v1/history/:company", "/api/v1/history/:company"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, routeLabel(tt.input))
	}
}
