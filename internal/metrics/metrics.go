// Package metrics exposes prometheus instrumentation for the
// optimization loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrialsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contender_trials_submitted_total",
		Help: "Trials handed to the worker pool.",
	})
	TrialsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contender_trials_finished_total",
		Help: "Completed trials by terminal status.",
	}, []string{"status"})
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contender_trials_in_flight",
		Help: "Trials currently executing.",
	})
	IncumbentCost = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contender_incumbent_cost",
		Help: "Scalarized cost of the current incumbent.",
	})
	ModelTrainings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contender_model_trainings_total",
		Help: "Surrogate model training rounds.",
	})
)
