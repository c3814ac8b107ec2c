// Package observe is the out-of-core-scope observer collaborator: it
// drives the engine's tick loop on a wall-clock cadence when animation is
// enabled, and exposes HTTP, WebSocket, and Prometheus views over the
// engine's read-only snapshots. None of this is part of the simulation
// core; it exists so the engine has a realistic consumer, built the way
// the teacher's truck-fleet server builds its own.
package observe

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/realmfikri/ridehail-sim/internal/vehicle"
)

// PrometheusRecorder implements engine.Recorder by registering the same
// shape of histograms/counters the teacher's simulation/metrics.go does,
// renamed to this domain.
type PrometheusRecorder struct {
	tickLatency           prometheus.Histogram
	vehiclesByPhase        *prometheus.GaugeVec
	tripsCompletedTotal    prometheus.Counter
	forwardDispatchTotal   prometheus.Counter
	equilibrationAdjustments prometheus.Counter
}

// NewPrometheusRecorder constructs and registers the engine's Prometheus
// metrics against reg. Pass prometheus.DefaultRegisterer for the global
// registry, or a fresh *prometheus.Registry in tests.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		tickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ridehail_tick_latency_seconds",
			Help:    "Wall-clock time spent computing a single simulation block.",
			Buckets: prometheus.DefBuckets,
		}),
		vehiclesByPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ridehail_vehicles_by_phase",
			Help: "Number of vehicles currently in each driver phase.",
		}, []string{"phase"}),
		tripsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridehail_trips_completed_total",
			Help: "Total trips that reached COMPLETED.",
		}),
		forwardDispatchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridehail_forward_dispatch_total",
			Help: "Total dispatches where the vehicle was already moving toward the trip origin.",
		}),
		equilibrationAdjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridehail_equilibration_adjustments_total",
			Help: "Total equilibration intervals that ran.",
		}),
	}
	reg.MustRegister(
		r.tickLatency,
		r.vehiclesByPhase,
		r.tripsCompletedTotal,
		r.forwardDispatchTotal,
		r.equilibrationAdjustments,
	)
	return r
}

// ObserveTick implements engine.Recorder.
func (r *PrometheusRecorder) ObserveTick(block int, byPhase map[vehicle.Phase]int, tripsCompleted, forwardDispatch int) {
	r.vehiclesByPhase.WithLabelValues("P1").Set(float64(byPhase[vehicle.P1]))
	r.vehiclesByPhase.WithLabelValues("P2").Set(float64(byPhase[vehicle.P2]))
	r.vehiclesByPhase.WithLabelValues("P3").Set(float64(byPhase[vehicle.P3]))
	if tripsCompleted > 0 {
		r.tripsCompletedTotal.Add(float64(tripsCompleted))
	}
	if forwardDispatch > 0 {
		r.forwardDispatchTotal.Add(float64(forwardDispatch))
	}
}

// ObserveEquilibration implements engine.Recorder.
func (r *PrometheusRecorder) ObserveEquilibration(vehicleDelta int, requestRate float64) {
	r.equilibrationAdjustments.Inc()
}

// ObserveTickLatency records the wall-clock duration of one NextBlock call,
// called by the runner around its call site rather than from inside the
// engine, which performs no timing of its own.
func (r *PrometheusRecorder) ObserveTickLatency(seconds float64) {
	r.tickLatency.Observe(seconds)
}
