package session

import (
	"sync"
	"time"

	"lanmeet/domain"
)

// MeetingTimer is the optional meeting-wide countdown. When it expires the
// timekeeper worker broadcasts the expiry and clears the whole registry.
type MeetingTimer struct {
	mu       sync.Mutex
	duration time.Duration
	endsAt   time.Time
	active   bool

	now func() time.Time
}

func NewMeetingTimer() *MeetingTimer {
	return &MeetingTimer{now: time.Now}
}

// Set arms the countdown for the given number of seconds, replacing any
// previous value.
func (t *MeetingTimer) Set(seconds int) domain.TimeLimitStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = time.Duration(seconds) * time.Second
	t.endsAt = t.now().Add(t.duration)
	t.active = true
	return t.statusLocked()
}

// Clear disarms the countdown.
func (t *MeetingTimer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	t.duration = 0
	t.endsAt = time.Time{}
}

// Expired reports whether an armed countdown has run out.
func (t *MeetingTimer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active && !t.now().Before(t.endsAt)
}

func (t *MeetingTimer) Status() domain.TimeLimitStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *MeetingTimer) statusLocked() domain.TimeLimitStatus {
	if !t.active {
		return domain.TimeLimitStatus{}
	}
	remaining := t.endsAt.Sub(t.now())
	if remaining < 0 {
		remaining = 0
	}
	return domain.TimeLimitStatus{
		Active:           true,
		DurationSeconds:  int(t.duration / time.Second),
		RemainingSeconds: remaining.Seconds(),
		EndsAtMs:         t.endsAt.UnixMilli(),
	}
}
