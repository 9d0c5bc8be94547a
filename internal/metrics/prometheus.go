package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "perp_quoter"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
	}

	ticks := counter("ticks_total", "Total number of orchestrator ticks.")
	ordersPlaced := counter("orders_placed_total", "Total number of orders accepted by the venue.")
	ordersFailed := counter("orders_failed_total", "Total number of order submissions rejected or failed.")
	ordersCancelled := counter("orders_cancelled_total", "Total number of orders cancelled.")
	cancelsFailed := counter("cancels_failed_total", "Total number of cancellation failures.")
	riskDenials := counter("risk_denials_total", "Total number of refresh cycles denied by the risk gate.")
	oracleOverrides := counter("oracle_overrides_total", "Total number of cycles quoted around the oracle price.")
	emergencyStops := counter("emergency_stops_total", "Total number of emergency stop escalations.")
	quotedSpread := gauge("quoted_spread", "Innermost bid/ask distance of the last quoted ladder.")
	trackedOrders := gauge("tracked_orders", "Locally tracked open orders.")

	registry.MustRegister(
		ticks, ordersPlaced, ordersFailed, ordersCancelled, cancelsFailed,
		riskDenials, oracleOverrides, emergencyStops, quotedSpread, trackedOrders,
	)

	return &Prometheus{
		Metrics: &Metrics{
			Ticks:           promCounter{ticks},
			OrdersPlaced:    promCounter{ordersPlaced},
			OrdersFailed:    promCounter{ordersFailed},
			OrdersCancelled: promCounter{ordersCancelled},
			CancelsFailed:   promCounter{cancelsFailed},
			RiskDenials:     promCounter{riskDenials},
			OracleOverrides: promCounter{oracleOverrides},
			EmergencyStops:  promCounter{emergencyStops},
			QuotedSpread:    promGauge{quotedSpread},
			TrackedOrders:   promGauge{trackedOrders},
		},
		registry: registry,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
