package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mercato_sessions_started_total",
			Help: "Total number of negotiation sessions started",
		},
	)

	SessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercato_sessions_finished_total",
			Help: "Total number of negotiation sessions finished",
		},
		[]string{"outcome"}, // outcome: agreed|rejected|exhausted|expired|cancelled
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mercato_active_sessions",
			Help: "Number of negotiation sessions currently running",
		},
	)

	RoundsPerSession = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mercato_rounds_per_session",
			Help:    "Number of rounds a session took to terminate",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8},
		},
	)

	SessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mercato_session_duration_seconds",
			Help:    "Wall-clock duration of a negotiation session",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300, 1800},
		},
	)

	// Event metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercato_events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mercato_events_dropped_total",
			Help: "Total number of events dropped for slow subscribers",
		},
	)

	// Contract metrics
	ContractsAssembled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercato_contracts_assembled_total",
			Help: "Total number of contract assemblies attempted",
		},
		[]string{"status"}, // status: success|error
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStarted,
		SessionsFinished,
		ActiveSessions,
		RoundsPerSession,
		SessionDuration,
		EventsPublished,
		EventsDropped,
		ContractsAssembled,
	)
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer builds an HTTP server exposing /metrics on addr
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
