package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutePattern(t *testing.T) {
	assert.Equal(t, "/api/v1/shifts/:id/end", RoutePattern("/api/v1/shifts/12/end"))
	assert.Equal(t, "/api/v1/products/low-stock", RoutePattern("/api/v1/products/low-stock"))
}

func TestLedgerCounters(t *testing.T) {
	m := New()
	m.ObserveLedger("place_order", "ok", time.Now())
	m.ObserveLedger("place_order", "consistency", time.Now())
	m.StockMoved(-3)
	m.StockMoved(5)

	body := scrape(t, m)
	assert.Contains(t, body, `posledger_ledger_operations_total{op="place_order",outcome="ok"} 1`)
	assert.Contains(t, body, `posledger_ledger_stock_units_total{direction="out"} 3`)
	assert.Contains(t, body, `posledger_ledger_stock_units_total{direction="in"} 5`)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveLedger("adjust", "ok", time.Now())
	m.StockMoved(1)
	m.Idempotency("hit")

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandlerExposesHTTPMetrics(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

	assert.Contains(t, scrape(t, m), `posledger_http_requests_total{method="POST",path="/api/v1/orders",status="201"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
