package workers

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"lanmeet/mocks"
	"lanmeet/session"
)

func TestWatchdog_EvictsSilentParticipant(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := session.NewRegistry()
	req.NoError(registry.Register("alice", "10.0.0.5", 40000))
	req.NoError(registry.Register("bob", "10.0.0.6", 40001))

	evictor := mocks.NewMockEvictor(ctrl)

	// Given alice has been silent past the threshold while bob kept talking
	threshold := 20 * time.Millisecond
	time.Sleep(threshold + 10*time.Millisecond)
	registry.TouchLiveness("bob")

	// Then exactly one eviction happens, for alice
	evictor.EXPECT().Evict("alice", "stalled connection").Return(true).Times(1)

	watchdog := NewWatchdog(slog.Default(), registry, evictor, time.Second, threshold)
	watchdog.Sweep()
}

func TestWatchdog_LeavesFreshParticipantsAlone(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := session.NewRegistry()
	req.NoError(registry.Register("alice", "10.0.0.5", 40000))

	// Then no eviction is expected (no EXPECT registered)
	evictor := mocks.NewMockEvictor(ctrl)

	watchdog := NewWatchdog(slog.Default(), registry, evictor, time.Second, time.Hour)
	watchdog.Sweep()
}
