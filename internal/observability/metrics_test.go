package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	metrics := NewMetrics()
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/orders/7", "/orders/42"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusTeapot, rr.Code)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodGet, "/orders/{id}", "418")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodPost, "/orders", "200")))
	assert.Zero(t, testutil.ToFloat64(metrics.inFlight))

	body := scrape(t, metrics)
	assert.Contains(t, body, `textile_http_request_duration_seconds_bucket{method="GET",route="/orders/{id}"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMiddlewareWithoutRouterContext(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.NotFoundHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))
}

func TestPipelineSharesTheRegistry(t *testing.T) {
	metrics := NewMetrics()
	pipeline := metrics.Pipeline()
	require.NotNil(t, pipeline)

	pipeline.OrderCreated("ORDER")
	pipeline.OrderCreated("QUOTATION")
	pipeline.RunsGenerated(3)
	pipeline.RunsGenerated(0)
	pipeline.RunDecided("APPROVED")
	pipeline.InvoiceTransition("ISSUED")
	pipeline.ClaimConflict()

	body := scrape(t, metrics)
	assert.Contains(t, body, `textile_orders_created_total{kind="ORDER"} 1`)
	assert.Contains(t, body, "textile_production_runs_generated_total 3")
	assert.Contains(t, body, `textile_production_run_decisions_total{status="APPROVED"} 1`)
	assert.Contains(t, body, `textile_invoice_transitions_total{status="ISSUED"} 1`)
	assert.Contains(t, body, "textile_invoice_claim_conflicts_total 1")
}

func TestNilMetricsAndPipelineAreNoops(t *testing.T) {
	var m *Metrics
	assert.Nil(t, m.Pipeline())

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var p *Pipeline
	p.OrderCreated("ORDER")
	p.RunsGenerated(1)
	p.RunDecided("APPROVED")
	p.InvoiceTransition("PAID")
	p.ClaimConflict()
}
