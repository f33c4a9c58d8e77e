package media

import (
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"lanmeet/observability"
	"lanmeet/session"
)

func newVideoFixture(t *testing.T, usernames ...string) (*VideoServer, *session.Registry, *observability.RelayStats) {
	t.Helper()
	registry := session.NewRegistry()
	stats := observability.NewRelayStats()
	server := NewVideoServer(slog.Default(), registry, stats)

	for i, username := range usernames {
		require.NoError(t, registry.Register(username, "10.0.0.5", 40000+i))
		server.bindEndpoint(username, &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 51000 + i})
	}
	return server, registry, stats
}

func TestVideoServer_RelayTargetsExcludeSender(t *testing.T) {
	req := require.New(t)
	server, _, _ := newVideoFixture(t, "alice", "bob", "carol")

	targets := server.relayTargets("alice")

	req.Len(targets, 2)
	for _, target := range targets {
		req.NotEqual(51000, target.Port) // alice's own endpoint
	}
}

func TestVideoServer_StaleSenderIsNeverForwarded(t *testing.T) {
	req := require.New(t)
	server, registry, stats := newVideoFixture(t, "alice", "bob")

	// Given alice was evicted while a frame was in flight
	registry.Unregister("alice")

	// When her frame asks for relay targets
	targets := server.relayTargets("alice")

	// Then the frame is dropped and her bindings are cleaned up
	req.Nil(targets)
	req.Equal(uint64(1), stats.Snapshot().StaleFrames)
	req.Len(server.relayTargets("bob"), 0)
}

func TestVideoServer_UnregisteredTargetIsSkipped(t *testing.T) {
	req := require.New(t)
	server, registry, _ := newVideoFixture(t, "alice", "bob", "carol")

	// Given carol left but her endpoint binding has not been removed yet
	registry.Unregister("carol")

	targets := server.relayTargets("alice")

	req.Len(targets, 1)
	req.Equal(51001, targets[0].Port) // only bob
}
