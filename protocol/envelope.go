// Package protocol defines the wire formats shared by server and clients:
// length-prefixed JSON envelopes on the reliable control/screen streams and
// a fixed 16-byte binary header on UDP media datagrams.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	apperrors "lanmeet/errors"
)

// Control-plane actions.
const (
	ActionHello            = "hello"
	ActionWelcome          = "welcome"
	ActionError            = "error"
	ActionHeartbeat        = "heartbeat"
	ActionLeave            = "leave"
	ActionUserJoined       = "user_joined"
	ActionUserLeft         = "user_left"
	ActionKicked           = "kicked"
	ActionChatMessage      = "chat_message"
	ActionPresenceSync     = "presence_sync"
	ActionPresenceUpdate   = "presence_update"
	ActionAudioStatus      = "audio_status"
	ActionVideoStatus      = "video_status"
	ActionTypingStatus     = "typing_status"
	ActionHandStatus       = "hand_status"
	ActionReaction         = "reaction"
	ActionLatencyUpdate    = "latency_update"
	ActionPresenterRequest = "presenter_request"
	ActionPresenterRelease = "presenter_release"
	ActionPresenterGranted = "presenter_granted"
	ActionPresenterDenied  = "presenter_denied"
	ActionPresenterRevoked = "presenter_revoked"
	ActionScreenControl    = "screen_control"
	ActionScreenFrame      = "screen_frame"
	ActionFileRequest      = "file_request"
	ActionFileOffer        = "file_offer"
	ActionTimeLimitUpdate  = "time_limit_update"
)

// MaxEnvelopeSize caps a single control frame. Screen frames are the largest
// legitimate payload (base64 JPEG of a full desktop).
const MaxEnvelopeSize = 8 << 20

const lengthPrefixSize = 4

// Envelope is the generic control message: a discriminant plus an opaque
// payload decoded by the matching handler.
type Envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Encode serializes one control message as 4-byte big-endian length plus
// compact JSON.
func Encode(action string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", action, err)
	}
	body, err := json.Marshal(Envelope{Action: action, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", action, err)
	}
	frame := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[lengthPrefixSize:], body)
	return frame, nil
}

// MustEncode is Encode for server-built payloads, whose marshalling cannot
// fail at runtime.
func MustEncode(action string, data any) []byte {
	frame, err := Encode(action, data)
	if err != nil {
		panic(err)
	}
	return frame
}

// ReadEnvelope reads exactly one length-prefixed envelope from the stream.
// io.EOF is returned as-is on a clean close between frames; any other decode
// problem wraps ErrMalformedPacket.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 || length > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: frame length %d", apperrors.ErrMalformedPacket, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPacket, err)
	}
	if env.Action == "" {
		return nil, fmt.Errorf("%w: missing action", apperrors.ErrMalformedPacket)
	}
	return &env, nil
}

// DecodePayload unmarshals an envelope payload into a typed struct.
func DecodePayload(env *Envelope, out any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s without payload", apperrors.ErrMalformedPacket, env.Action)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s payload: %v", apperrors.ErrMalformedPacket, env.Action, err)
	}
	return nil
}
