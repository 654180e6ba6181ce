package workers

import (
	"context"
	"time"

	"mercato/internal/events"
	"mercato/internal/services/negotiation"
)

// StatsReporter periodically logs engine activity so long-running
// deployments leave a heartbeat in the logs even when idle
type StatsReporter struct {
	*BaseWorker
	orchestrator *negotiation.Orchestrator
	bus          *events.Broadcaster
}

// NewStatsReporter creates the engine stats reporter worker
func NewStatsReporter(orchestrator *negotiation.Orchestrator, bus *events.Broadcaster, interval time.Duration, enabled bool) *StatsReporter {
	return &StatsReporter{
		BaseWorker:   NewBaseWorker("stats_reporter", interval, enabled),
		orchestrator: orchestrator,
		bus:          bus,
	}
}

// Run logs the current engine activity snapshot
func (w *StatsReporter) Run(ctx context.Context) error {
	w.Log().Infow("engine stats",
		"active_sessions", w.orchestrator.ActiveSessions(),
		"event_subscribers", w.bus.SubscriberCount(),
	)
	return nil
}
