package workers

import (
	"context"
	"log/slog"
	"time"

	"lanmeet/contract"
	"lanmeet/session"
)

// Watchdog periodically evicts participants whose liveness signal has gone
// quiet. Eviction goes through the control service, so departures announced
// by the watchdog look exactly like any other departure.
type Watchdog struct {
	log       *slog.Logger
	registry  *session.Registry
	evictor   contract.Evictor
	sweep     time.Duration
	threshold time.Duration
}

func NewWatchdog(log *slog.Logger, registry *session.Registry, evictor contract.Evictor,
	sweep, threshold time.Duration) *Watchdog {
	return &Watchdog{
		log:       log,
		registry:  registry,
		evictor:   evictor,
		sweep:     sweep,
		threshold: threshold,
	}
}

func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep evicts every participant past the liveness threshold. A participant
// who disconnected between the scan and the eviction is skipped by the
// evictor, not double-announced.
func (w *Watchdog) Sweep() {
	for _, username := range w.registry.Stale(w.threshold) {
		if w.evictor.Evict(username, "stalled connection") {
			w.log.Warn("Evicted stalled participant", "username", username,
				"threshold", w.threshold.String())
		}
	}
}
