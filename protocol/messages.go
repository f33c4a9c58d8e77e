package protocol

import "lanmeet/domain"

// Default service ports. Clients receive the actual map in WELCOME.
const (
	DefaultControlPort = 55000
	DefaultScreenPort  = 55010
	DefaultFilePort    = 55020
	DefaultVideoPort   = 56000
	DefaultAudioPort   = 56010
	DefaultLatencyPort = 56020
)

// HelloPayload opens the control handshake. Force requests eviction of a
// stale registration holding the same username; without it a duplicate name
// is rejected.
type HelloPayload struct {
	Username      string `json:"username" validate:"required,min=1,max=32,excludesall= "`
	ClientVersion string `json:"client_version,omitempty"`
	PreSharedKey  string `json:"pre_shared_key,omitempty"`
	Force         bool   `json:"force,omitempty"`
}

// WelcomePayload is the full snapshot sent once after a successful handshake.
type WelcomePayload struct {
	Username    string                 `json:"username"`
	Peers       []string               `json:"peers"`
	Presence    []domain.PresenceEntry `json:"presence"`
	Revision    uint64                 `json:"revision"`
	Presenter   string                 `json:"presenter,omitempty"`
	ChatHistory []domain.ChatMessage   `json:"chat_history"`
	Files       []domain.FileOffer     `json:"files"`
	Media       MediaPorts             `json:"media"`
	TimeLimit   domain.TimeLimitStatus `json:"time_limit"`
}

// MediaPorts tells a client where the auxiliary services listen.
type MediaPorts struct {
	VideoPort   int `json:"video_port"`
	AudioPort   int `json:"audio_port"`
	ScreenPort  int `json:"screen_port"`
	LatencyPort int `json:"latency_port"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

// Error codes carried by ErrorPayload.
const (
	CodeAuthFailed    = "auth_failed"
	CodeDuplicateName = "duplicate_name"
	CodeHandshake     = "handshake_error"
)

type ChatPayload struct {
	Message     string   `json:"message" validate:"required,max=4096"`
	Recipients  []string `json:"recipients,omitempty" validate:"omitempty,dive,required"`
	TimestampMs int64    `json:"timestamp_ms,omitempty"`
}

type ChatBroadcast struct {
	ID          string   `json:"id"`
	Sender      string   `json:"sender"`
	Message     string   `json:"message"`
	Recipients  []string `json:"recipients,omitempty"`
	TimestampMs int64    `json:"timestamp_ms"`
}

type AudioStatusPayload struct {
	AudioEnabled bool `json:"audio_enabled"`
}

type VideoStatusPayload struct {
	VideoEnabled bool `json:"video_enabled"`
}

type TypingStatusPayload struct {
	IsTyping bool `json:"is_typing"`
}

type HandStatusPayload struct {
	HandRaised bool `json:"hand_raised"`
}

type ReactionPayload struct {
	Reaction    string `json:"reaction" validate:"required,max=32"`
	TimestampMs int64  `json:"timestamp_ms,omitempty"`
}

type ReactionBroadcast struct {
	Username    string `json:"username"`
	Reaction    string `json:"reaction"`
	TimestampMs int64  `json:"timestamp_ms"`
}

type LatencyPayload struct {
	LatencyMs float64  `json:"latency_ms" validate:"gte=0"`
	JitterMs  *float64 `json:"jitter_ms,omitempty"`
}

type FileRequestPayload struct {
	Request string `json:"request" validate:"required,oneof=list"`
}

type FileOfferPayload struct {
	Files []domain.FileOffer `json:"files"`
}

// UserEventPayload is shared by user_joined and user_left. Reason
// distinguishes a voluntary leave from an eviction or a kick.
type UserEventPayload struct {
	Username     string   `json:"username"`
	Participants []string `json:"participants"`
	Reason       string   `json:"reason,omitempty"`
}

type KickedPayload struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor,omitempty"`
}

type PresenterPayload struct {
	Username string `json:"username"`
}

type PresenterDeniedPayload struct {
	HeldBy string `json:"held_by"`
}

// PresenceSyncPayload is the full presence broadcast; PresenceUpdatePayload
// the per-user delta. Both carry the registry revision so clients can drop
// anything older than what they already applied.
type PresenceSyncPayload struct {
	Participants []domain.PresenceEntry `json:"participants"`
	Revision     uint64                 `json:"revision"`
}

type PresenceUpdatePayload struct {
	Participant domain.PresenceEntry `json:"participant"`
	Revision    uint64               `json:"revision"`
}

// Screen-share state transitions for screen_control.
const (
	ScreenStateStart = "start"
	ScreenStateStop  = "stop"
)

type ScreenControlPayload struct {
	State    string `json:"state"`
	Username string `json:"username"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// ScreenFramePayload carries one encoded frame. Frame is base64 on the wire
// (encoding/json encodes []byte that way).
type ScreenFramePayload struct {
	Username    string `json:"username"`
	TimestampMs int64  `json:"timestamp_ms"`
	Frame       []byte `json:"frame"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// ScreenHelloPayload is the length-prefixed JSON handshake a presenter sends
// when opening the screen stream.
type ScreenHelloPayload struct {
	Username string `json:"username" validate:"required,min=1,max=32"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FPS      int    `json:"fps,omitempty"`
}
