package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "lanmeet/errors"
)

// PayloadType tags the content of a UDP media datagram.
type PayloadType uint32

const (
	PayloadVideo  PayloadType = 1
	PayloadAudio  PayloadType = 2
	PayloadScreen PayloadType = 3
)

// MediaHeaderSize is the fixed byte length of MediaHeader on the wire:
// streamID u32, sequence u32, timestampMs f32, payloadType u32, big endian.
const MediaHeaderSize = 16

// MediaHeader precedes every UDP media payload.
type MediaHeader struct {
	StreamID    uint32
	Sequence    uint32
	TimestampMs float32
	PayloadType PayloadType
}

// Pack serializes the header into its 16-byte wire form.
func (h MediaHeader) Pack() []byte {
	buf := make([]byte, MediaHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.StreamID)
	binary.BigEndian.PutUint32(buf[4:8], h.Sequence)
	binary.BigEndian.PutUint32(buf[8:12], math.Float32bits(h.TimestampMs))
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.PayloadType))
	return buf
}

// UnpackMediaHeader parses the fixed header from the start of a datagram.
func UnpackMediaHeader(data []byte) (MediaHeader, error) {
	if len(data) < MediaHeaderSize {
		return MediaHeader{}, fmt.Errorf("%w: datagram shorter than media header", apperrors.ErrMalformedPacket)
	}
	return MediaHeader{
		StreamID:    binary.BigEndian.Uint32(data[0:4]),
		Sequence:    binary.BigEndian.Uint32(data[4:8]),
		TimestampMs: math.Float32frombits(binary.BigEndian.Uint32(data[8:12])),
		PayloadType: PayloadType(binary.BigEndian.Uint32(data[12:16])),
	}, nil
}

// RegisterDatagram is the lightweight per-socket handshake a client sends on
// a media port before any frames, so the server can bind its UDP source
// address to a username.
type RegisterDatagram struct {
	Action       string `json:"action" validate:"required,eq=register"`
	Username     string `json:"username" validate:"required,min=1,max=32"`
	SampleRate   int    `json:"sample_rate,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	FrameSamples int    `json:"frame_samples,omitempty"`
}

// PCM samples travel as little-endian float32, matching what capture clients
// produce; the header stays big endian like the rest of the protocol.

// DecodeSamples converts a raw audio payload to float32 samples. Trailing
// partial samples are dropped.
func DecodeSamples(payload []byte) []float32 {
	n := len(payload) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return samples
}

// EncodeSamples converts float32 samples back to the wire representation.
func EncodeSamples(samples []float32) []byte {
	payload := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(s))
	}
	return payload
}
