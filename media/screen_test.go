package media

import (
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"lanmeet/mocks"
	"lanmeet/observability"
	"lanmeet/protocol"
	"lanmeet/session"
)

func writeBlock(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	_, err := conn.Write(prefix[:])
	require.NoError(t, err)
	if len(payload) > 0 {
		_, err = conn.Write(payload)
		require.NoError(t, err)
	}
}

func writeScreenHello(t *testing.T, conn net.Conn, username string) {
	t.Helper()
	hello, err := json.Marshal(protocol.ScreenHelloPayload{Username: username, Width: 1280, Height: 720})
	require.NoError(t, err)
	writeBlock(t, conn, hello)
}

func TestScreenServer_RelaysPresenterFrames(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	arbiter := session.NewPresenterArbiter()
	req.NoError(arbiter.Request("alice"))

	broadcaster := mocks.NewMockBroadcaster(ctrl)
	stats := observability.NewRelayStats()
	server := NewScreenServer(slog.Default(), arbiter, broadcaster, stats, time.Second)

	// Then viewers see start, two frames and stop; the stop marker also
	// releases the presenter slot.
	broadcaster.EXPECT().
		BroadcastToAllExcept("alice", protocol.ActionScreenControl, gomock.Any()).
		Times(2)
	broadcaster.EXPECT().
		BroadcastToAllExcept("alice", protocol.ActionScreenFrame, gomock.Any()).
		Times(2)
	broadcaster.EXPECT().
		BroadcastToAll(protocol.ActionPresenterRevoked, protocol.PresenterPayload{Username: "alice"}).
		Times(1)

	client, serverSide := net.Pipe()
	go func() {
		writeScreenHello(t, client, "alice")
		writeBlock(t, client, []byte("frame-1"))
		writeBlock(t, client, []byte("frame-2"))
		writeBlock(t, client, nil) // stop marker
	}()

	server.handleStream(serverSide)

	req.Equal(uint64(2), stats.Snapshot().ScreenFramesSent)
	req.Empty(arbiter.Holder())
}

func TestScreenServer_RejectsNonHolderStream(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	arbiter := session.NewPresenterArbiter()
	req.NoError(arbiter.Request("alice"))

	// Then nothing is broadcast on bob's behalf (no EXPECT registered).
	broadcaster := mocks.NewMockBroadcaster(ctrl)
	stats := observability.NewRelayStats()
	server := NewScreenServer(slog.Default(), arbiter, broadcaster, stats, time.Second)

	client, serverSide := net.Pipe()
	go writeScreenHello(t, client, "bob")

	server.handleStream(serverSide)

	req.Equal(uint64(1), stats.Snapshot().StaleFrames)
	req.Equal("alice", arbiter.Holder())
}

func TestScreenServer_RejectsMalformedHandshake(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	arbiter := session.NewPresenterArbiter()
	broadcaster := mocks.NewMockBroadcaster(ctrl)
	server := NewScreenServer(slog.Default(), arbiter, broadcaster, observability.NewRelayStats(), time.Second)

	client, serverSide := net.Pipe()
	go writeBlock(t, client, []byte(`{"username":""}`))

	server.handleStream(serverSide)

	req.Empty(arbiter.Holder())
}
