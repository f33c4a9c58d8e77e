package workers

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"lanmeet/domain"
	"lanmeet/mocks"
	"lanmeet/protocol"
	"lanmeet/session"
)

func TestTimekeeper_ExpireEndsMeetingForEveryone(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := session.NewRegistry()
	req.NoError(registry.Register("alice", "10.0.0.5", 40000))
	req.NoError(registry.Register("bob", "10.0.0.6", 40001))

	timer := session.NewMeetingTimer()
	timer.Set(0) // expires immediately

	broadcaster := mocks.NewMockBroadcaster(ctrl)
	evictor := mocks.NewMockEvictor(ctrl)

	// Then the expiry is announced before anyone is torn down
	expiry := broadcaster.EXPECT().
		BroadcastToAll(protocol.ActionTimeLimitUpdate, domain.TimeLimitStatus{Expired: true}).
		Times(1)
	evictor.EXPECT().Evict("alice", "meeting time limit reached").Return(true).After(expiry)
	evictor.EXPECT().Evict("bob", "meeting time limit reached").Return(true).After(expiry)

	timekeeper := NewTimekeeper(slog.Default(), registry, timer, broadcaster, evictor)
	req.True(timer.Expired())
	timekeeper.Expire()

	// And the cleared timer cannot expire a second time
	req.False(timer.Expired())
}
