package session

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"lanmeet/domain"
	apperrors "lanmeet/errors"
)

func TestRegistry_RegisterRejectsDuplicate(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given a registered participant
	req.NoError(registry.Register("alice", "10.0.0.5", 40000))

	// When the same username registers again
	err := registry.Register("alice", "10.0.0.9", 40001)

	// Then the second registration is rejected and the first entry survives
	req.ErrorIs(err, apperrors.ErrDuplicateName)
	req.Equal(1, registry.Count())
	entry, ok := registry.Entry("alice", "")
	req.True(ok)
	req.Equal("alice", entry.Username)
}

func TestRegistry_RegisterRejectsBanned(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given a banned username
	registry.Ban("mallory")

	// When it tries to register
	err := registry.Register("mallory", "10.0.0.7", 40002)

	// Then registration fails with the ban error
	req.ErrorIs(err, apperrors.ErrBanned)
	req.True(registry.IsBanned("mallory"))
	req.Equal(0, registry.Count())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.NoError(registry.Register("alice", "10.0.0.5", 40000))

	// When two removal paths race for the same username
	first := registry.Unregister("alice")
	second := registry.Unregister("alice")

	// Then exactly one of them wins
	req.True(first)
	req.False(second)
	req.Equal(0, registry.Count())
}

func TestRegistry_SnapshotKeepsInsertionOrder(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.NoError(registry.Register("alice", "10.0.0.5", 40000))
	req.NoError(registry.Register("bob", "10.0.0.6", 40001))
	req.NoError(registry.Register("carol", "10.0.0.7", 40002))
	registry.Unregister("bob")
	req.NoError(registry.Register("bob", "10.0.0.6", 40003))

	// When snapshotting with bob holding the presenter slot
	snapshot := registry.Snapshot("bob")

	// Then order reflects registration order, not map iteration
	usernames := lo.Map(snapshot, func(e domain.PresenceEntry, _ int) string { return e.Username })
	req.Equal([]string{"alice", "carol", "bob"}, usernames)
	req.False(snapshot[0].IsPresenter)
	req.True(snapshot[2].IsPresenter)
}

func TestRegistry_RevisionGrowsOnEveryMutation(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	before := registry.Revision()
	req.NoError(registry.Register("alice", "10.0.0.5", 40000))
	afterRegister := registry.Revision()
	req.Greater(afterRegister, before)

	// When presence changes
	enabled := true
	req.True(registry.UpdatePresence("alice", domain.PresencePatch{AudioEnabled: &enabled}))
	afterPatch := registry.Revision()
	req.Greater(afterPatch, afterRegister)

	// Then even a liveness touch is an observable mutation
	registry.TouchLiveness("alice")
	req.Greater(registry.Revision(), afterPatch)
}

func TestRegistry_UpdatePresenceAppliesOnlyPatchedFields(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.NoError(registry.Register("alice", "10.0.0.5", 40000))

	audioOn := true
	handUp := true
	req.True(registry.UpdatePresence("alice", domain.PresencePatch{AudioEnabled: &audioOn}))
	req.True(registry.UpdatePresence("alice", domain.PresencePatch{HandRaised: &handUp}))

	entry, ok := registry.Entry("alice", "")
	req.True(ok)
	req.True(entry.AudioEnabled)
	req.True(entry.HandRaised)
	req.False(entry.VideoEnabled)

	// Unknown usernames are reported, not invented
	req.False(registry.UpdatePresence("ghost", domain.PresencePatch{AudioEnabled: &audioOn}))
}

func TestRegistry_StaleFindsOnlySilentParticipants(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given a clock we control
	current := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return current }

	req.NoError(registry.Register("alice", "10.0.0.5", 40000))
	req.NoError(registry.Register("bob", "10.0.0.6", 40001))

	// When 20s pass and only bob signals liveness
	current = current.Add(20 * time.Second)
	registry.TouchLiveness("bob")

	// Then only alice is past the 15s threshold
	req.Equal([]string{"alice"}, registry.Stale(15*time.Second))

	// And nobody is stale right after a global touch
	registry.TouchLiveness("alice")
	req.Empty(registry.Stale(15 * time.Second))
}

func TestRegistry_AddBytesAccumulates(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.NoError(registry.Register("alice", "10.0.0.5", 40000))

	registry.AddBytes("alice", 100, 40)
	registry.AddBytes("alice", 20, 2)
	registry.AddBytes("ghost", 999, 999) // silently ignored

	entry, ok := registry.Entry("alice", "")
	req.True(ok)
	req.Equal(uint64(120), entry.BytesSent)
	req.Equal(uint64(42), entry.BytesReceived)
}
