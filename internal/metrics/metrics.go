// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"zonebreak/internal/events"
)

type Metrics struct {
	Registry *prometheus.Registry

	TicksTotal    prometheus.Counter
	DroppedTicks  prometheus.Counter
	MidPrice      prometheus.Gauge
	EventsTotal   *prometheus.CounterVec
	TradesOpen    prometheus.Gauge
	PointsClosed  prometheus.Counter
	ClosedByCause *prometheus.CounterVec
	OpensByLevel  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zonebreak_ticks_total",
			Help: "Price ticks processed by the engine.",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zonebreak_ticks_dropped_total",
			Help: "Stale ticks dropped by the single-slot queue.",
		}),
		MidPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zonebreak_mid_price",
			Help: "Last mid price seen by the engine.",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zonebreak_events_total",
			Help: "Engine events by type.",
		}, []string{"type"}),
		TradesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zonebreak_trades_open",
			Help: "Currently open trades.",
		}),
		PointsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zonebreak_points_closed_total",
			Help: "Absolute points realized across closed trades.",
		}),
		ClosedByCause: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zonebreak_trade_closes_total",
			Help: "Trade closes by exit reason.",
		}, []string{"reason"}),
		OpensByLevel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zonebreak_trade_opens_total",
			Help: "Trade entries by matched zone level.",
		}, []string{"level"}),
	}
	m.Registry.MustRegister(
		m.TicksTotal, m.DroppedTicks, m.MidPrice, m.EventsTotal,
		m.TradesOpen, m.PointsClosed, m.ClosedByCause, m.OpensByLevel,
	)
	return m
}

// Sink adapts the metrics to the event stream.
type Sink struct {
	m *Metrics
}

func (m *Metrics) Sink() *Sink { return &Sink{m: m} }

func (s *Sink) Emit(evt events.Event) {
	s.m.EventsTotal.WithLabelValues(string(evt.Type)).Inc()
	switch evt.Type {
	case events.TradeOpen:
		s.m.TradesOpen.Inc()
		if level, ok := evt.Fields["level"].(float64); ok {
			s.m.OpensByLevel.WithLabelValues(strconv.FormatFloat(level, 'f', -1, 64)).Inc()
		}
	case events.TradeClose:
		s.m.TradesOpen.Dec()
		if points, ok := evt.Fields["points"].(float64); ok {
			if points < 0 {
				points = -points
			}
			s.m.PointsClosed.Add(points)
		}
		if reason, ok := evt.Fields["reason"].(string); ok {
			s.m.ClosedByCause.WithLabelValues(reason).Inc()
		}
	}
}
