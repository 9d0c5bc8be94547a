package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.Ticks.Inc()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersFailed.Inc()
	prom.Metrics.OrdersCancelled.Inc()
	prom.Metrics.CancelsFailed.Inc()
	prom.Metrics.RiskDenials.Inc()
	prom.Metrics.OracleOverrides.Inc()
	prom.Metrics.EmergencyStops.Inc()

	for name, counter := range map[string]Counter{
		"ticks":            prom.Metrics.Ticks,
		"orders_placed":    prom.Metrics.OrdersPlaced,
		"orders_failed":    prom.Metrics.OrdersFailed,
		"orders_cancelled": prom.Metrics.OrdersCancelled,
		"cancels_failed":   prom.Metrics.CancelsFailed,
		"risk_denials":     prom.Metrics.RiskDenials,
		"oracle_overrides": prom.Metrics.OracleOverrides,
		"emergency_stops":  prom.Metrics.EmergencyStops,
	} {
		assertCounter(t, name, counter.(promCounter).counter, 1)
	}
}

func TestPrometheusGauges(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.QuotedSpread.Set(0.12)
	prom.Metrics.TrackedOrders.Set(6)
	if got := testutil.ToFloat64(prom.Metrics.QuotedSpread.(promGauge).gauge); got != 0.12 {
		t.Fatalf("expected quoted spread 0.12, got %v", got)
	}
	if got := testutil.ToFloat64(prom.Metrics.TrackedOrders.(promGauge).gauge); got != 6 {
		t.Fatalf("expected tracked orders 6, got %v", got)
	}
}

func TestPrometheusHandlerServesNamespace(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.Ticks.Inc()

	recorder := httptest.NewRecorder()
	prom.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	body := recorder.Body.String()
	if !strings.Contains(body, "perp_quoter_ticks_total 1") {
		t.Fatalf("expected perp_quoter_ticks_total in output, got:\n%s", body)
	}
}

func TestNoopMetricsAreSafe(t *testing.T) {
	m := NewNoop()
	m.Ticks.Inc()
	m.QuotedSpread.Set(1)
}

func assertCounter(t *testing.T, name string, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("%s: expected %v, got %v", name, expected, got)
	}
}
