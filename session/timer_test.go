package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMeetingTimer_Lifecycle(t *testing.T) {
	req := require.New(t)
	timer := NewMeetingTimer()

	current := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	timer.now = func() time.Time { return current }

	// Given no countdown is armed
	req.False(timer.Expired())
	req.False(timer.Status().Active)

	// When a 60s countdown is armed
	status := timer.Set(60)
	req.True(status.Active)
	req.Equal(60, status.DurationSeconds)
	req.InDelta(60, status.RemainingSeconds, 0.001)

	// Then it expires only once time has run out
	current = current.Add(59 * time.Second)
	req.False(timer.Expired())
	current = current.Add(2 * time.Second)
	req.True(timer.Expired())
	req.Zero(timer.Status().RemainingSeconds)

	// And clearing disarms it entirely
	timer.Clear()
	req.False(timer.Expired())
	req.False(timer.Status().Active)
}

func TestMeetingTimer_SetReplacesPreviousCountdown(t *testing.T) {
	req := require.New(t)
	timer := NewMeetingTimer()

	current := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	timer.now = func() time.Time { return current }

	timer.Set(10)
	current = current.Add(9 * time.Second)

	// When the countdown is re-armed just before expiry
	timer.Set(120)

	// Then the new duration applies
	req.False(timer.Expired())
	req.InDelta(120, timer.Status().RemainingSeconds, 0.001)
}
