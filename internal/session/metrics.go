package session

import "github.com/prometheus/client_golang/prometheus"

var (
	modelLoadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "irisd",
			Subsystem: "engine",
			Name:      "model_loads_total",
			Help:      "Total number of successful model loads",
		},
	)

	modelUnloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "irisd",
			Subsystem: "engine",
			Name:      "model_unloads_total",
			Help:      "Total number of model unloads",
		},
	)

	modelsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "irisd",
			Subsystem: "engine",
			Name:      "models_loaded",
			Help:      "Models currently resident in memory",
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "irisd",
			Subsystem: "engine",
			Name:      "sessions_active",
			Help:      "Generation sessions currently registered",
		},
	)

	sessionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "irisd",
			Subsystem: "engine",
			Name:      "sessions_started_total",
			Help:      "Total number of generation sessions started",
		},
	)

	tokensGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "irisd",
			Subsystem: "engine",
			Name:      "tokens_generated_total",
			Help:      "Total number of tokens emitted across all sessions",
		},
	)

	decodeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "irisd",
			Subsystem: "engine",
			Name:      "decode_failures_total",
			Help:      "Total decode or sampling failures ending a stream early",
		},
	)
)

func init() {
	prometheus.MustRegister(
		modelLoadsTotal,
		modelUnloadsTotal,
		modelsLoaded,
		sessionsActive,
		sessionsStartedTotal,
		tokensGeneratedTotal,
		decodeFailuresTotal,
	)
}
