package deposit

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	PollsTotal       *prometheus.CounterVec
	SettlementsTotal prometheus.Counter
	ActiveWatchers   prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deposit_status_polls_total",
				Help: "Total deposit status poll attempts.",
			},
			[]string{"result"},
		),
		SettlementsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deposit_settlements_total",
				Help: "Deposits observed settled by a watcher.",
			},
		),
		ActiveWatchers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "deposit_active_watchers",
				Help: "Watchers currently holding a live charge.",
			},
		),
	}

	registry.MustRegister(m.PollsTotal, m.SettlementsTotal, m.ActiveWatchers)
	return m
}
