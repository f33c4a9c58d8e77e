package media

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"lanmeet/contract"
	"lanmeet/observability"
	"lanmeet/protocol"
	"lanmeet/session"
)

// ScreenServer accepts the presenter's reliable length-framed stream and
// republishes every frame as a screen_frame broadcast on the control plane.
// Only the current presenter slot holder may stream; frames from anyone else
// are dropped without erroring. An idle stream auto-releases the slot.
type ScreenServer struct {
	log         *slog.Logger
	arbiter     *session.PresenterArbiter
	broadcaster contract.Broadcaster
	stats       *observability.RelayStats
	validate    *validator.Validate
	idleTimeout time.Duration

	listener net.Listener
}

func NewScreenServer(log *slog.Logger, arbiter *session.PresenterArbiter,
	broadcaster contract.Broadcaster, stats *observability.RelayStats,
	idleTimeout time.Duration) *ScreenServer {
	return &ScreenServer{
		log:         log,
		arbiter:     arbiter,
		broadcaster: broadcaster,
		stats:       stats,
		validate:    validator.New(),
		idleTimeout: idleTimeout,
	}
}

func (s *ScreenServer) Listen(host string, port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("screen listen %s:%d: %w", host, port, err)
	}
	s.listener = listener
	s.log.Info("Screen server listening", "addr", listener.Addr().String())
	return nil
}

func (s *ScreenServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("screen accept: %w", err)
		}
		go s.handleStream(conn)
	}
}

func (s *ScreenServer) handleStream(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	hello, err := s.readHandshake(reader, conn)
	if err != nil {
		s.log.Warn("Screen handshake rejected", "peer", conn.RemoteAddr().String(), "err", err)
		return
	}
	username := hello.Username

	if !s.arbiter.IsHolder(username) {
		// Not an error: a stream racing a revoked slot is dropped silently.
		s.stats.StaleFrames.Add(1)
		s.log.Warn("Screen stream from non-presenter dropped", "username", username)
		return
	}

	s.log.Info("Screen stream started", "username", username,
		"width", hello.Width, "height", hello.Height, "fps", hello.FPS)
	s.broadcaster.BroadcastToAllExcept(username, protocol.ActionScreenControl, protocol.ScreenControlPayload{
		State:    protocol.ScreenStateStart,
		Username: username,
		Width:    hello.Width,
		Height:   hello.Height,
	})

	defer func() {
		if s.arbiter.Release(username) {
			s.broadcaster.BroadcastToAll(protocol.ActionPresenterRevoked, protocol.PresenterPayload{
				Username: username,
			})
		}
		s.broadcaster.BroadcastToAllExcept(username, protocol.ActionScreenControl, protocol.ScreenControlPayload{
			State:    protocol.ScreenStateStop,
			Username: username,
		})
		s.log.Info("Screen stream ended", "username", username)
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		frame, err := readBlock(reader)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				s.log.Info("Screen stream idle, releasing presenter slot", "username", username)
			} else if !errors.Is(err, io.EOF) {
				s.log.Warn("Screen stream read failed", "username", username, "err", err)
			}
			return
		}
		if len(frame) == 0 {
			// Zero-length frame is the explicit stop marker.
			return
		}
		if !s.arbiter.IsHolder(username) {
			// Slot was revoked mid-stream; late frames must not crash the
			// pipeline, they are simply not relayed.
			s.stats.StaleFrames.Add(1)
			continue
		}
		s.broadcaster.BroadcastToAllExcept(username, protocol.ActionScreenFrame, protocol.ScreenFramePayload{
			Username:    username,
			TimestampMs: time.Now().UnixMilli(),
			Frame:       frame,
			Width:       hello.Width,
			Height:      hello.Height,
		})
		s.stats.ScreenFramesSent.Add(1)
	}
}

func (s *ScreenServer) readHandshake(reader *bufio.Reader, conn net.Conn) (*protocol.ScreenHelloPayload, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	block, err := readBlock(reader)
	if err != nil {
		return nil, err
	}
	var hello protocol.ScreenHelloPayload
	if err := json.Unmarshal(block, &hello); err != nil {
		return nil, fmt.Errorf("decode screen handshake: %w", err)
	}
	if err := s.validate.Struct(hello); err != nil {
		return nil, fmt.Errorf("invalid screen handshake: %w", err)
	}
	return &hello, nil
}

// readBlock reads one 4-byte big-endian length-prefixed block. A zero length
// returns an empty slice, the stream's explicit stop marker.
func readBlock(reader *bufio.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(reader, prefix[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return []byte{}, nil
	}
	if length > protocol.MaxEnvelopeSize {
		return nil, fmt.Errorf("screen frame of %d bytes exceeds limit", length)
	}
	block := make([]byte, length)
	if _, err := io.ReadFull(reader, block); err != nil {
		return nil, err
	}
	return block, nil
}
