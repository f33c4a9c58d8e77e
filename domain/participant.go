package domain

import (
	"net"
	"time"
)

// Participant is the authoritative record for one registered username.
// All mutation goes through the session registry so that every observable
// change bumps the registry revision counter.
type Participant struct {
	Username    string
	ConnectedAt time.Time
	LastSeen    time.Time // refreshed by heartbeats and by any control message

	AudioEnabled bool
	VideoEnabled bool
	HandRaised   bool
	IsTyping     bool
	LatencyMs    *float64
	JitterMs     *float64

	// UDP source addresses learned lazily from the first datagram a client
	// sends on each media service, never at handshake time.
	AudioAddr *net.UDPAddr
	VideoAddr *net.UDPAddr

	PeerIP   string
	PeerPort int

	BytesSent     uint64
	BytesReceived uint64
}

// PresencePatch carries the optional presence fields a control handler may
// change in one mutation. Nil fields are left untouched.
type PresencePatch struct {
	AudioEnabled *bool
	VideoEnabled *bool
	HandRaised   *bool
	IsTyping     *bool
	LatencyMs    *float64
	JitterMs     *float64
}

// PresenceEntry is the wire-facing projection of a Participant used in
// presence_sync and presence_update payloads and in read-only reporting.
type PresenceEntry struct {
	Username      string   `json:"username"`
	AudioEnabled  bool     `json:"audio_enabled"`
	VideoEnabled  bool     `json:"video_enabled"`
	HandRaised    bool     `json:"hand_raised"`
	IsTyping      bool     `json:"is_typing"`
	LatencyMs     *float64 `json:"latency_ms,omitempty"`
	JitterMs      *float64 `json:"jitter_ms,omitempty"`
	IsPresenter   bool     `json:"is_presenter"`
	ConnectedAt   int64    `json:"connected_at"`
	LastSeenSec   float64  `json:"last_seen_seconds"`
	BytesSent     uint64   `json:"bytes_sent"`
	BytesReceived uint64   `json:"bytes_received"`
}

// TimeLimitStatus describes the meeting countdown as broadcast in
// time_limit_update and returned inside WELCOME.
type TimeLimitStatus struct {
	Active           bool    `json:"active"`
	DurationSeconds  int     `json:"duration_seconds,omitempty"`
	RemainingSeconds float64 `json:"remaining_seconds,omitempty"`
	EndsAtMs         int64   `json:"ends_at_ms,omitempty"`
	Expired          bool    `json:"expired,omitempty"`
}
