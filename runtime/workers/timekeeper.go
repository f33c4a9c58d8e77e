package workers

import (
	"context"
	"log/slog"
	"time"

	"lanmeet/contract"
	"lanmeet/domain"
	"lanmeet/protocol"
	"lanmeet/session"
)

// Timekeeper watches the optional meeting countdown. On expiry it announces
// the end of the meeting and evicts every remaining participant through the
// shared eviction path.
type Timekeeper struct {
	log         *slog.Logger
	registry    *session.Registry
	timer       *session.MeetingTimer
	broadcaster contract.Broadcaster
	evictor     contract.Evictor
}

func NewTimekeeper(log *slog.Logger, registry *session.Registry, timer *session.MeetingTimer,
	broadcaster contract.Broadcaster, evictor contract.Evictor) *Timekeeper {
	return &Timekeeper{
		log:         log,
		registry:    registry,
		timer:       timer,
		broadcaster: broadcaster,
		evictor:     evictor,
	}
}

func (t *Timekeeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if t.timer.Expired() {
				t.Expire()
			}
		}
	}
}

// Expire broadcasts the expiry before tearing anyone down, then ends the
// meeting. The timer is cleared first so a concurrent tick cannot expire it
// twice.
func (t *Timekeeper) Expire() {
	t.timer.Clear()
	t.broadcaster.BroadcastToAll(protocol.ActionTimeLimitUpdate, domain.TimeLimitStatus{Expired: true})
	t.log.Info("Meeting time limit reached, ending meeting")
	for _, username := range t.registry.ListUsernames() {
		t.evictor.Evict(username, "meeting time limit reached")
	}
}
