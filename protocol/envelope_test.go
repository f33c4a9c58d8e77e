package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "lanmeet/errors"
)

func TestEnvelope_EncodeThenRead(t *testing.T) {
	req := require.New(t)

	// Given an encoded hello frame
	frame, err := Encode(ActionHello, HelloPayload{Username: "alice", ClientVersion: "1.2.0"})
	req.NoError(err)

	// When it is read back from a stream
	env, err := ReadEnvelope(bytes.NewReader(frame))
	req.NoError(err)
	req.Equal(ActionHello, env.Action)

	var hello HelloPayload
	req.NoError(DecodePayload(env, &hello))
	req.Equal("alice", hello.Username)
	req.Equal("1.2.0", hello.ClientVersion)
}

func TestReadEnvelope_TruncatedBody(t *testing.T) {
	req := require.New(t)

	frame, err := Encode(ActionHeartbeat, struct{}{})
	req.NoError(err)

	// When the stream dies mid-frame
	_, err = ReadEnvelope(bytes.NewReader(frame[:len(frame)-3]))

	// Then the reader reports a broken stream, not a phantom envelope
	req.Error(err)
}

func TestReadEnvelope_RejectsOversizedFrame(t *testing.T) {
	req := require.New(t)

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxEnvelopeSize+1)

	_, err := ReadEnvelope(bytes.NewReader(prefix[:]))
	req.ErrorIs(err, apperrors.ErrMalformedPacket)
}

func TestReadEnvelope_RejectsZeroLengthAndGarbage(t *testing.T) {
	req := require.New(t)

	// Zero length frame
	_, err := ReadEnvelope(bytes.NewReader([]byte{0, 0, 0, 0}))
	req.ErrorIs(err, apperrors.ErrMalformedPacket)

	// Valid length, invalid JSON
	body := []byte("this is not json")
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	_, err = ReadEnvelope(bytes.NewReader(frame))
	req.ErrorIs(err, apperrors.ErrMalformedPacket)

	// Valid JSON but no action discriminant
	body = []byte(`{"data":{}}`)
	frame = make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	_, err = ReadEnvelope(bytes.NewReader(frame))
	req.ErrorIs(err, apperrors.ErrMalformedPacket)
}

func TestMediaHeader_PackThenUnpack(t *testing.T) {
	req := require.New(t)

	header := MediaHeader{
		StreamID:    7,
		Sequence:    1042,
		TimestampMs: 12345.5,
		PayloadType: PayloadAudio,
	}
	packed := header.Pack()
	req.Len(packed, MediaHeaderSize)

	parsed, err := UnpackMediaHeader(packed)
	req.NoError(err)
	req.Equal(header, parsed)
}

func TestUnpackMediaHeader_ShortDatagram(t *testing.T) {
	req := require.New(t)

	_, err := UnpackMediaHeader(make([]byte, MediaHeaderSize-1))
	req.ErrorIs(err, apperrors.ErrMalformedPacket)
}

func TestSamples_RoundTripAndTrailingBytes(t *testing.T) {
	req := require.New(t)

	samples := []float32{0, 0.25, -0.25, 1, -1}
	payload := EncodeSamples(samples)
	req.Len(payload, len(samples)*4)
	req.Equal(samples, DecodeSamples(payload))

	// A trailing partial sample is dropped, not misread
	req.Equal(samples, DecodeSamples(append(payload, 0xFF, 0x01)))
}
