// Package media hosts the three media-plane services: the UDP audio mixing
// engine, the UDP video relay and the TCP screen relay, plus the UDP latency
// echo responder. They read the session registry to know who is reachable
// but never own participant lifecycle.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"lanmeet/observability"
	"lanmeet/protocol"
	"lanmeet/session"
)

const defaultFrameSamples = 320 // 20ms at 16kHz mono

// jitterBuffer is a short bounded queue of decoded PCM frames in arrival
// order. Overflow drops the oldest frame.
type jitterBuffer struct {
	frames [][]float32
}

func (b *jitterBuffer) push(frame []float32, depth int) (dropped bool) {
	if len(b.frames) >= depth {
		b.frames = b.frames[1:]
		dropped = true
	}
	b.frames = append(b.frames, frame)
	return dropped
}

func (b *jitterBuffer) pop() ([]float32, bool) {
	if len(b.frames) == 0 {
		return nil, false
	}
	frame := b.frames[0]
	b.frames = b.frames[1:]
	return frame, true
}

// AudioServer ingests timestamped PCM frames over UDP and, on a fixed tick,
// produces one mixed-minus-self stream per enabled participant. Ticks are
// strictly periodic: a tick that finds no data sends explicit silence so
// client playout buffers never stall on gaps.
type AudioServer struct {
	log      *slog.Logger
	registry *session.Registry
	stats    *observability.RelayStats
	validate *validator.Validate

	mixInterval time.Duration
	depth       int

	mu           sync.Mutex
	conn         *net.UDPConn
	byAddr       map[string]string       // source address -> username
	endpoints    map[string]*net.UDPAddr // username -> last seen source
	buffers      map[string]*jitterBuffer
	frameSamples int
	sequence     uint32
}

func NewAudioServer(log *slog.Logger, registry *session.Registry, stats *observability.RelayStats,
	mixInterval time.Duration, jitterDepth int) *AudioServer {
	return &AudioServer{
		log:          log,
		registry:     registry,
		stats:        stats,
		validate:     validator.New(),
		mixInterval:  mixInterval,
		depth:        jitterDepth,
		byAddr:       make(map[string]string),
		endpoints:    make(map[string]*net.UDPAddr),
		buffers:      make(map[string]*jitterBuffer),
		frameSamples: defaultFrameSamples,
	}
}

// Listen binds the UDP socket. Called once before the worker runs so that a
// supervised restart keeps the same binding.
func (s *AudioServer) Listen(host string, port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		return fmt.Errorf("audio listen %s:%d: %w", host, port, err)
	}
	s.conn = conn
	s.log.Info("Audio server listening", "addr", conn.LocalAddr().String())
	return nil
}

// Run drives the read loop and the mix ticker until the context is canceled.
func (s *AudioServer) Run(ctx context.Context) error {
	go s.readLoop(ctx)

	ticker := time.NewTicker(s.mixInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
			return nil
		case <-ticker.C:
			s.mixTick()
		}
	}
}

func (s *AudioServer) readLoop(ctx context.Context) {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error("Audio read loop stopped", "err", err)
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.handleDatagram(data, addr)
	}
}

func (s *AudioServer) handleDatagram(data []byte, addr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username, known := s.byAddr[addr.String()]
	if !known {
		s.handleRegisterLocked(data, addr)
		return
	}

	header, err := protocol.UnpackMediaHeader(data)
	if err != nil || header.PayloadType != protocol.PayloadAudio {
		s.stats.MalformedPackets.Add(1)
		return
	}
	if !s.registry.Has(username) {
		// Sender evicted but binding not cleaned up yet; drop silently.
		s.stats.StaleFrames.Add(1)
		delete(s.byAddr, addr.String())
		delete(s.endpoints, username)
		delete(s.buffers, username)
		return
	}

	samples := protocol.DecodeSamples(data[protocol.MediaHeaderSize:])
	if len(samples) == 0 {
		s.stats.MalformedPackets.Add(1)
		return
	}
	s.pushFrameLocked(username, samples)
	s.endpoints[username] = addr
	s.registry.SetAudioAddr(username, addr)
}

func (s *AudioServer) handleRegisterLocked(data []byte, addr *net.UDPAddr) {
	var reg protocol.RegisterDatagram
	if err := json.Unmarshal(data, &reg); err != nil {
		s.stats.MalformedPackets.Add(1)
		return
	}
	if err := s.validate.Struct(reg); err != nil {
		s.stats.MalformedPackets.Add(1)
		return
	}
	if !s.registry.Has(reg.Username) {
		s.stats.StaleFrames.Add(1)
		return
	}
	s.byAddr[addr.String()] = reg.Username
	s.endpoints[reg.Username] = addr
	if reg.FrameSamples > 0 {
		s.frameSamples = reg.FrameSamples
	}
	s.registry.SetAudioAddr(reg.Username, addr)
	s.log.Info("Registered audio client", "username", reg.Username, "addr", addr.String())
}

func (s *AudioServer) pushFrameLocked(username string, samples []float32) {
	buffer, ok := s.buffers[username]
	if !ok {
		buffer = &jitterBuffer{}
		s.buffers[username] = buffer
	}
	if buffer.push(samples, s.depth) {
		s.stats.DroppedAudioFrames.Add(1)
	}
}

// RemoveUser drops the jitter buffer and endpoint binding. Safe to call for
// a user that never sent a frame.
func (s *AudioServer) RemoveUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, user := range s.byAddr {
		if user == username {
			delete(s.byAddr, key)
		}
	}
	delete(s.endpoints, username)
	delete(s.buffers, username)
}

type mixOutput struct {
	username string
	addr     *net.UDPAddr
	samples  []float32
}

func (s *AudioServer) mixTick() {
	s.stats.MixTicks.Add(1)
	outputs := s.collectMixes()
	if s.conn == nil {
		return
	}
	for _, out := range outputs {
		header := protocol.MediaHeader{
			StreamID:    1,
			Sequence:    s.nextSequence(),
			TimestampMs: float32(time.Now().UnixMilli() % (1 << 22)),
			PayloadType: protocol.PayloadAudio,
		}
		datagram := append(header.Pack(), protocol.EncodeSamples(out.samples)...)
		if _, err := s.conn.WriteToUDP(datagram, out.addr); err != nil {
			s.log.Warn("Failed to send mixed audio", "username", out.username, "err", err)
		}
	}
}

// collectMixes pops at most one frame per sender for this tick and builds a
// personalized minus-self mix for every enabled participant with a known
// endpoint. Participants with no other active speakers get a zeroed frame.
func (s *AudioServer) collectMixes() []mixOutput {
	s.mu.Lock()
	defer s.mu.Unlock()

	contributions := make(map[string][]float32)
	for username, buffer := range s.buffers {
		frame, ok := buffer.pop()
		if !ok {
			continue
		}
		// Muted participants keep their buffers draining but contribute
		// nothing to anyone's mix.
		if s.registry.AudioEnabled(username) {
			contributions[username] = frame
			s.stats.AudioFramesMixed.Add(1)
		}
	}

	frameLen := s.frameSamples
	for _, frame := range contributions {
		if len(frame) > frameLen {
			frameLen = len(frame)
		}
	}

	var outputs []mixOutput
	for username, addr := range s.endpoints {
		if !s.registry.AudioEnabled(username) {
			continue
		}
		outputs = append(outputs, mixOutput{
			username: username,
			addr:     addr,
			samples:  mixExcluding(contributions, username, frameLen),
		})
	}
	return outputs
}

// mixExcluding sums every contributor's frame except the excluded sender,
// clipping to the valid [-1, 1] sample range instead of letting the sum
// overflow. An empty contributor set yields explicit silence.
func mixExcluding(contributions map[string][]float32, exclude string, frameLen int) []float32 {
	mix := make([]float32, frameLen)
	for username, frame := range contributions {
		if username == exclude {
			continue
		}
		for i, sample := range frame {
			if i >= frameLen {
				break
			}
			mix[i] += sample
		}
	}
	for i, sample := range mix {
		if sample > 1 {
			mix[i] = 1
		} else if sample < -1 {
			mix[i] = -1
		}
	}
	return mix
}

func (s *AudioServer) nextSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence
}

// bindEndpoint pre-registers a media binding, bypassing the datagram
// handshake. Used by tests.
func (s *AudioServer) bindEndpoint(username string, addr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAddr[addr.String()] = username
	s.endpoints[username] = addr
}
