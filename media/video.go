package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/go-playground/validator/v10"

	"lanmeet/observability"
	"lanmeet/protocol"
	"lanmeet/session"
)

// VideoServer is a blind UDP relay: every inbound frame is forwarded
// unmodified to every other registered participant's known video endpoint.
// No mixing, no buffering beyond the in-flight datagram.
type VideoServer struct {
	log      *slog.Logger
	registry *session.Registry
	stats    *observability.RelayStats
	validate *validator.Validate

	mu        sync.Mutex
	conn      *net.UDPConn
	byAddr    map[string]string
	endpoints map[string]*net.UDPAddr
}

func NewVideoServer(log *slog.Logger, registry *session.Registry, stats *observability.RelayStats) *VideoServer {
	return &VideoServer{
		log:       log,
		registry:  registry,
		stats:     stats,
		validate:  validator.New(),
		byAddr:    make(map[string]string),
		endpoints: make(map[string]*net.UDPAddr),
	}
}

func (s *VideoServer) Listen(host string, port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		return fmt.Errorf("video listen %s:%d: %w", host, port, err)
	}
	s.conn = conn
	s.log.Info("Video server listening", "addr", conn.LocalAddr().String())
	return nil
}

func (s *VideoServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("video read: %w", err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.handleDatagram(data, addr)
	}
}

func (s *VideoServer) handleDatagram(data []byte, addr *net.UDPAddr) {
	s.mu.Lock()
	username, known := s.byAddr[addr.String()]
	s.mu.Unlock()

	if !known {
		s.handleRegister(data, addr)
		return
	}

	header, err := protocol.UnpackMediaHeader(data)
	if err != nil || header.PayloadType != protocol.PayloadVideo {
		s.stats.MalformedPackets.Add(1)
		return
	}

	targets := s.relayTargets(username)
	if targets == nil {
		return
	}
	for _, target := range targets {
		if _, err := s.conn.WriteToUDP(data, target); err != nil {
			s.log.Warn("Failed to forward video frame", "target", target.String(), "err", err)
		}
	}
	s.stats.VideoFramesRelayed.Add(1)
}

// relayTargets returns every other registered participant's endpoint, or nil
// when the sender itself is no longer registered (stale frames are dropped
// silently, never forwarded).
func (s *VideoServer) relayTargets(sender string) []*net.UDPAddr {
	if !s.registry.Has(sender) {
		s.stats.StaleFrames.Add(1)
		s.RemoveUser(sender)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var targets []*net.UDPAddr
	for username, addr := range s.endpoints {
		if username == sender || !s.registry.Has(username) {
			continue
		}
		targets = append(targets, addr)
	}
	return targets
}

func (s *VideoServer) handleRegister(data []byte, addr *net.UDPAddr) {
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
	s.mu.Lock()
	s.byAddr[addr.String()] = reg.Username
	s.endpoints[reg.Username] = addr
	s.mu.Unlock()
	s.registry.SetVideoAddr(reg.Username, addr)
	s.log.Info("Registered video client", "username", reg.Username, "addr", addr.String())
}

// RemoveUser drops the routing state for a participant. Safe to call for a
// user that never sent a frame.
func (s *VideoServer) RemoveUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, user := range s.byAddr {
		if user == username {
			delete(s.byAddr, key)
		}
	}
	delete(s.endpoints, username)
}

// bindEndpoint pre-registers a media binding, bypassing the datagram
// handshake. Used by tests.
func (s *VideoServer) bindEndpoint(username string, addr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAddr[addr.String()] = username
	s.endpoints[username] = addr
}
