// Package session holds the authoritative meeting state: the participant
// registry, the presenter slot and the meeting countdown. It does no network
// I/O; the control and media services mutate it through the operations here.
package session

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/samber/lo"

	"lanmeet/domain"
	apperrors "lanmeet/errors"
)

// Registry is the single source of truth for who is in the meeting.
// Concurrent mutation from independent connections is serialized by an
// internal lock; snapshots are copies and stay internally consistent.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*domain.Participant
	order        []string // insertion order, for deterministic snapshots
	banned       map[string]struct{}
	revision     uint64

	now func() time.Time // injectable for tests
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[string]*domain.Participant),
		banned:       make(map[string]struct{}),
		now:          time.Now,
	}
}

// Register creates the entry for a username. It fails with ErrDuplicateName
// when the username is already present (the caller decides whether to evict
// the stale entry first) and with ErrBanned for barred usernames.
func (r *Registry) Register(username, peerIP string, peerPort int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.banned[username]; ok {
		return fmt.Errorf("register %s: %w", username, apperrors.ErrBanned)
	}
	if _, ok := r.participants[username]; ok {
		return fmt.Errorf("register %s: %w", username, apperrors.ErrDuplicateName)
	}

	now := r.now()
	r.participants[username] = &domain.Participant{
		Username:    username,
		ConnectedAt: now,
		LastSeen:    now,
		PeerIP:      peerIP,
		PeerPort:    peerPort,
	}
	r.order = append(r.order, username)
	r.revision++
	return nil
}

// Unregister removes the entry and reports whether it was present. A second
// removal of the same username is a no-op, which makes the eviction paths
// (voluntary leave, watchdog, kick) idempotent against each other.
func (r *Registry) Unregister(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[username]; !ok {
		return false
	}
	delete(r.participants, username)
	r.order = lo.Without(r.order, username)
	r.revision++
	return true
}

// UpdatePresence applies the non-nil fields of the patch. It returns false
// for unknown usernames.
func (r *Registry) UpdatePresence(username string, patch domain.PresencePatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[username]
	if !ok {
		return false
	}
	if patch.AudioEnabled != nil {
		p.AudioEnabled = *patch.AudioEnabled
	}
	if patch.VideoEnabled != nil {
		p.VideoEnabled = *patch.VideoEnabled
	}
	if patch.HandRaised != nil {
		p.HandRaised = *patch.HandRaised
	}
	if patch.IsTyping != nil {
		p.IsTyping = *patch.IsTyping
	}
	if patch.LatencyMs != nil {
		p.LatencyMs = patch.LatencyMs
	}
	if patch.JitterMs != nil {
		p.JitterMs = patch.JitterMs
	}
	p.LastSeen = r.now()
	r.revision++
	return true
}

// TouchLiveness refreshes the liveness timestamp. Called for heartbeats and
// for every control message received from the participant.
func (r *Registry) TouchLiveness(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[username]; ok {
		p.LastSeen = r.now()
		r.revision++
	}
}

// AddBytes accumulates per-participant traffic counters for reporting.
func (r *Registry) AddBytes(username string, sent, received uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[username]; ok {
		p.BytesSent += sent
		p.BytesReceived += received
	}
}

// SetAudioAddr records the UDP source address for mixed-audio delivery.
func (r *Registry) SetAudioAddr(username string, addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[username]; ok {
		p.AudioAddr = addr
	}
}

// SetVideoAddr records the UDP source address for video relay delivery.
func (r *Registry) SetVideoAddr(username string, addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[username]; ok {
		p.VideoAddr = addr
	}
}

func (r *Registry) Has(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.participants[username]
	return ok
}

// AudioEnabled reports whether the participant exists and has audio on.
func (r *Registry) AudioEnabled(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[username]
	return ok && p.AudioEnabled
}

// ListUsernames returns usernames in insertion order.
func (r *Registry) ListUsernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Snapshot returns the presence entries in insertion order. The presenter
// flag is derived from the arbiter-held name passed in, never stored.
func (r *Registry) Snapshot(presenter string) []domain.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(username string, _ int) domain.PresenceEntry {
		return r.entryLocked(r.participants[username], presenter)
	})
}

// Entry returns the wire entry for a single participant.
func (r *Registry) Entry(username, presenter string) (domain.PresenceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[username]
	if !ok {
		return domain.PresenceEntry{}, false
	}
	return r.entryLocked(p, presenter), true
}

// Revision returns the monotonic mutation counter used by delta broadcasts.
func (r *Registry) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// Stale returns usernames whose liveness signal is older than the threshold.
func (r *Registry) Stale(threshold time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	var stale []string
	for _, username := range r.order {
		if now.Sub(r.participants[username].LastSeen) > threshold {
			stale = append(stale, username)
		}
	}
	return stale
}

// Ban bars a username from registering until the process exits.
func (r *Registry) Ban(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned[username] = struct{}{}
}

func (r *Registry) IsBanned(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.banned[username]
	return ok
}

func (r *Registry) entryLocked(p *domain.Participant, presenter string) domain.PresenceEntry {
	return domain.PresenceEntry{
		Username:      p.Username,
		AudioEnabled:  p.AudioEnabled,
		VideoEnabled:  p.VideoEnabled,
		HandRaised:    p.HandRaised,
		IsTyping:      p.IsTyping,
		LatencyMs:     p.LatencyMs,
		JitterMs:      p.JitterMs,
		IsPresenter:   presenter != "" && p.Username == presenter,
		ConnectedAt:   p.ConnectedAt.Unix(),
		LastSeenSec:   r.now().Sub(p.LastSeen).Seconds(),
		BytesSent:     p.BytesSent,
		BytesReceived: p.BytesReceived,
	}
}
