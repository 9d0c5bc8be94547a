package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(v float64)
}

type Metrics struct {
	Ticks           Counter
	OrdersPlaced    Counter
	OrdersFailed    Counter
	OrdersCancelled Counter
	CancelsFailed   Counter
	RiskDenials     Counter
	OracleOverrides Counter
	EmergencyStops  Counter
	QuotedSpread    Gauge
	TrackedOrders   Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		Ticks:           n,
		OrdersPlaced:    n,
		OrdersFailed:    n,
		OrdersCancelled: n,
		CancelsFailed:   n,
		RiskDenials:     n,
		OracleOverrides: n,
		EmergencyStops:  n,
		QuotedSpread:    g,
		TrackedOrders:   g,
	}
}
