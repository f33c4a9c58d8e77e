package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "lanmeet/errors"
)

func TestPresenterArbiter_SingleHolder(t *testing.T) {
	req := require.New(t)
	arbiter := NewPresenterArbiter()

	// Given alice holds the slot
	req.NoError(arbiter.Request("alice"))

	// When bob requests it
	err := arbiter.Request("bob")

	// Then bob is denied and told who holds it
	var denied apperrors.ArbitrationDenied
	req.ErrorAs(err, &denied)
	req.Equal("alice", denied.HeldBy)
	req.Equal("alice", arbiter.Holder())

	// When alice releases, bob's retry succeeds
	req.True(arbiter.Release("alice"))
	req.NoError(arbiter.Request("bob"))
	req.Equal("bob", arbiter.Holder())
}

func TestPresenterArbiter_ReRequestByHolderSucceeds(t *testing.T) {
	req := require.New(t)
	arbiter := NewPresenterArbiter()

	req.NoError(arbiter.Request("alice"))
	req.NoError(arbiter.Request("alice"))
	req.True(arbiter.IsHolder("alice"))
}

func TestPresenterArbiter_NonHolderReleaseIsNoOp(t *testing.T) {
	req := require.New(t)
	arbiter := NewPresenterArbiter()
	req.NoError(arbiter.Request("alice"))

	// When bob releases a slot he does not hold
	req.False(arbiter.Release("bob"))

	// Then alice still holds it
	req.Equal("alice", arbiter.Holder())

	// And an empty username never matches an empty slot
	req.True(arbiter.Release("alice"))
	req.False(arbiter.Release(""))
	req.False(arbiter.IsHolder(""))
}

func TestPresenterArbiter_ForceRelease(t *testing.T) {
	req := require.New(t)
	arbiter := NewPresenterArbiter()
	req.NoError(arbiter.Request("alice"))

	req.Equal("alice", arbiter.ForceRelease())
	req.Empty(arbiter.Holder())
	req.Empty(arbiter.ForceRelease())
}
