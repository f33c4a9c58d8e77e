package session

import (
	"sync"

	apperrors "lanmeet/errors"
)

// PresenterArbiter guards the single screen-share slot. At most one username
// holds it at any instant; the screen relay consults it for every frame.
type PresenterArbiter struct {
	mu     sync.Mutex
	holder string
}

func NewPresenterArbiter() *PresenterArbiter {
	return &PresenterArbiter{}
}

// Request grants the slot to username, or returns ArbitrationDenied naming
// the current holder. Re-requesting a slot you already hold succeeds.
func (a *PresenterArbiter) Request(username string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == "" || a.holder == username {
		a.holder = username
		return nil
	}
	return apperrors.ArbitrationDenied{HeldBy: a.holder}
}

// Release frees the slot if username holds it. Releasing a slot you do not
// hold is a no-op, not an error.
func (a *PresenterArbiter) Release(username string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder != username || username == "" {
		return false
	}
	a.holder = ""
	return true
}

// ForceRelease empties the slot regardless of holder and returns the
// previous holder, if any.
func (a *PresenterArbiter) ForceRelease() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	previous := a.holder
	a.holder = ""
	return previous
}

func (a *PresenterArbiter) Holder() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}

func (a *PresenterArbiter) IsHolder(username string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return username != "" && a.holder == username
}
