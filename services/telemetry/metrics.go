// Package telemetry turns agent bus events into Prometheus metrics and a
// JSON status document served over HTTP.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the agent's collectors. Use NewMetrics with a dedicated
// registry so several agents (or tests) do not collide.
type Metrics struct {
	Lux             prometheus.Gauge
	DirectSeconds   prometheus.Gauge
	Samples         *prometheus.CounterVec
	SamplesSkipped  *prometheus.CounterVec
	LinkUp          prometheus.Gauge
	Reconnects      prometheus.Counter
	TimeSyncs       *prometheus.CounterVec
	SessionUp       prometheus.Gauge
	WindowComplete  prometheus.Gauge
	WindowRemaining prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Lux: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxmon_lux",
			Help: "Most recent illuminance reading in lux",
		}),
		DirectSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxmon_direct_seconds",
			Help: "Direct sunlight accumulated in the current window",
		}),
		Samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "luxmon_samples_total",
				Help: "Samples taken, by classification",
			},
			[]string{"class"},
		),
		SamplesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "luxmon_samples_skipped_total",
				Help: "Ticks that produced no sample",
			},
			[]string{"reason"},
		),
		LinkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxmon_link_up",
			Help: "1 when the network link is up",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "luxmon_link_reconnects_total",
			Help: "Successful link reconnects",
		}),
		TimeSyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "luxmon_time_syncs_total",
				Help: "Time synchronization attempts",
			},
			[]string{"result"},
		),
		SessionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxmon_session_connected",
			Help: "1 while a remote session is attached",
		}),
		WindowComplete: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxmon_window_complete",
			Help: "1 once the measurement window has completed",
		}),
		WindowRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxmon_window_remaining_seconds",
			Help: "Time left in the measurement window",
		}),
	}
	reg.MustRegister(
		m.Lux,
		m.DirectSeconds,
		m.Samples,
		m.SamplesSkipped,
		m.LinkUp,
		m.Reconnects,
		m.TimeSyncs,
		m.SessionUp,
		m.WindowComplete,
		m.WindowRemaining,
	)
	return m
}

func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}
