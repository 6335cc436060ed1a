// Package metrics provides Prometheus instrumentation for the ranking
// pipeline: replicate training outcomes, batch prediction throughput, and
// score distributions, exposed via the optional metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Ensemble training
	ReplicatesTrained prometheus.Counter   // Replicates trained successfully
	ReplicatesFailed  prometheus.Counter   // Replicates whose training failed
	TrainingDuration  prometheus.Histogram // Per-replicate training duration

	// Batch prediction
	CompoundsScored     prometheus.Counter   // Compound×replicate scores produced
	PredictionFailures  prometheus.Counter   // Per-compound scoring failures
	UnscorableCompounds prometheus.Gauge     // Compounds with no valid score in the last run
	EnsembleScores      prometheus.Histogram // Distribution of ensemble compound scores

	// Runs
	RunsTotal   prometheus.Counter // Pipeline runs started
	RunFailures prometheus.Counter // Pipeline runs that aborted with a fatal error
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for
// testing, where isolated registries avoid duplicate registration).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		ReplicatesTrained: factory.NewCounter(prometheus.CounterOpts{
			Name: "replicates_trained_total",
			Help: "Total number of ensemble replicates trained successfully",
		}),
		ReplicatesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "replicates_failed_total",
			Help: "Total number of ensemble replicates whose training failed",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "replicate_training_duration_seconds",
			Help:    "Per-replicate training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		CompoundsScored: factory.NewCounter(prometheus.CounterOpts{
			Name: "compounds_scored_total",
			Help: "Total number of compound-replicate scores produced",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of per-compound scoring failures",
		}),
		UnscorableCompounds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "unscorable_compounds",
			Help: "Compounds excluded from the last run because no replicate could score them",
		}),
		EnsembleScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ensemble_scores",
			Help:    "Distribution of ensemble-averaged compound scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "runs_total",
			Help: "Total number of pipeline runs started",
		}),
		RunFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "run_failures_total",
			Help: "Total number of pipeline runs aborted by a fatal error",
		}),
	}
}
