// Package control implements the reliable control plane: the join handshake,
// the per-connection message dispatch state machine and the broadcast hub.
// It is the only component that mutates the registry on behalf of client
// intent; the watchdog and timekeeper reuse its eviction path.
package control

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"lanmeet/contract"
	"lanmeet/domain"
	apperrors "lanmeet/errors"
	"lanmeet/observability"
	"lanmeet/protocol"
	"lanmeet/session"
)

// Config tunes the control service.
type Config struct {
	HandshakeTimeout time.Duration
	SendBufferSize   int
	ChatReplayLimit  int
	PreSharedKey     string
	MediaPorts       protocol.MediaPorts
}

// Service owns the control listener and all registered connections.
type Service struct {
	log      *slog.Logger
	cfg      Config
	registry *session.Registry
	arbiter  *session.PresenterArbiter
	timer    *session.MeetingTimer
	hub      *Hub
	chat     contract.ChatLog
	files    contract.FileCatalog
	stats    *observability.RelayStats
	media    []contract.MediaService
	validate *validator.Validate

	listener net.Listener
}

func NewService(log *slog.Logger, cfg Config, registry *session.Registry,
	arbiter *session.PresenterArbiter, timer *session.MeetingTimer, hub *Hub,
	chat contract.ChatLog, files contract.FileCatalog,
	stats *observability.RelayStats, media ...contract.MediaService) *Service {
	return &Service{
		log:      log,
		cfg:      cfg,
		registry: registry,
		arbiter:  arbiter,
		timer:    timer,
		hub:      hub,
		chat:     chat,
		files:    files,
		stats:    stats,
		media:    media,
		validate: validator.New(),
	}
}

func (s *Service) Listen(host string, port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("control listen %s:%d: %w", host, port, err)
	}
	s.listener = listener
	s.log.Info("Control server listening", "addr", listener.Addr().String())
	return nil
}

// Run accepts control connections until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
		s.hub.Shutdown()
	}()

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("control accept: %w", err)
		}
		go s.handleConn(netConn)
	}
}

// errClientLeft signals an orderly leave message; it terminates the read
// loop without being treated as a failure.
var errClientLeft = errors.New("client sent leave")

func (s *Service) handleConn(netConn net.Conn) {
	c := newConn(netConn, s.cfg.SendBufferSize, s.log)
	go c.writePump()
	defer c.close()

	reader := bufio.NewReader(countingReader{inner: netConn, count: &c.bytesIn})
	peer := netConn.RemoteAddr().String()
	s.log.Info("Incoming control connection", "peer", peer, "conn", c.id)

	username, err := s.handshake(c, reader, netConn)
	if err != nil {
		s.log.Warn("Handshake failed", "peer", peer, "err", err)
		return
	}

	reason := "connection closed"
	defer func() {
		// A connection superseded by a force takeover must not tear down the
		// username's new registration; only the attached connection owns it.
		if s.hub.owns(username, c) {
			s.remove(username, reason)
		}
	}()

	lastBytes := c.bytesIn.Load()
	for {
		env, err := protocol.ReadEnvelope(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn("Control stream broken", "username", username, "err", err)
			}
			return
		}
		total := c.bytesIn.Load()
		s.registry.AddBytes(username, 0, total-lastBytes)
		lastBytes = total

		if err := s.dispatch(username, env); err != nil {
			if errors.Is(err, errClientLeft) {
				reason = "left the meeting"
				return
			}
			// Handler failures are logged, never fatal to the connection.
			s.log.Warn("Control message rejected", "username", username,
				"action", env.Action, "err", err)
		}
	}
}

// handshake runs the AwaitingHandshake state: exactly one valid HELLO within
// the timeout, or the connection fails without registering.
func (s *Service) handshake(c *conn, reader *bufio.Reader, netConn net.Conn) (string, error) {
	_ = netConn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	defer func() { _ = netConn.SetReadDeadline(time.Time{}) }()

	env, err := protocol.ReadEnvelope(reader)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrHandshake, err)
	}
	if env.Action != protocol.ActionHello {
		s.rejectHandshake(c, protocol.CodeHandshake, "expected hello as first message")
		return "", fmt.Errorf("%w: got %s before hello", apperrors.ErrHandshake, env.Action)
	}

	var hello protocol.HelloPayload
	if err := protocol.DecodePayload(env, &hello); err != nil {
		s.rejectHandshake(c, protocol.CodeHandshake, "malformed hello payload")
		return "", fmt.Errorf("%w: %v", apperrors.ErrHandshake, err)
	}
	if err := s.validate.Struct(hello); err != nil {
		s.rejectHandshake(c, protocol.CodeHandshake, "invalid username")
		return "", fmt.Errorf("%w: %v", apperrors.ErrHandshake, err)
	}

	if s.cfg.PreSharedKey != "" &&
		subtle.ConstantTimeCompare([]byte(hello.PreSharedKey), []byte(s.cfg.PreSharedKey)) != 1 {
		s.rejectHandshake(c, protocol.CodeAuthFailed, "authentication failed")
		return "", fmt.Errorf("%w: invalid pre-shared key for %s", apperrors.ErrHandshake, hello.Username)
	}

	peerIP, peerPort := splitPeer(netConn.RemoteAddr())
	err = s.registry.Register(hello.Username, peerIP, peerPort)
	if errors.Is(err, apperrors.ErrDuplicateName) && hello.Force {
		// Explicit takeover: evict the stale registration through the normal
		// eviction path, then register the new connection. Never a silent
		// overwrite.
		s.Evict(hello.Username, "superseded by a new connection")
		err = s.registry.Register(hello.Username, peerIP, peerPort)
	}
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrBanned):
			frame := protocol.MustEncode(protocol.ActionKicked, protocol.KickedPayload{
				Reason: "An administrator removed you from this meeting.",
			})
			c.enqueue(frame)
		case errors.Is(err, apperrors.ErrDuplicateName):
			s.rejectHandshake(c, protocol.CodeDuplicateName,
				fmt.Sprintf("username %q already connected", hello.Username))
		default:
			s.rejectHandshake(c, protocol.CodeHandshake, "registration failed")
		}
		return "", err
	}

	username := hello.Username

	// The welcome snapshot must be the first frame on this connection, so it
	// is enqueued before the hub can route broadcasts here.
	welcome, err := protocol.Encode(protocol.ActionWelcome, s.buildWelcome(username))
	if err != nil {
		s.registry.Unregister(username)
		return "", fmt.Errorf("%w: encode welcome: %v", apperrors.ErrHandshake, err)
	}
	c.enqueue(welcome)
	s.hub.attach(username, c)

	s.hub.BroadcastToAllExcept(username, protocol.ActionUserJoined, protocol.UserEventPayload{
		Username:     username,
		Participants: s.registry.ListUsernames(),
	})
	s.broadcastPresenceSync()
	s.log.Info("Participant registered", "username", username, "peer", peerIP)
	return username, nil
}

// rejectHandshake queues an error frame; the writer flushes it before the
// deferred close tears the socket down.
func (s *Service) rejectHandshake(c *conn, code, reason string) {
	frame := protocol.MustEncode(protocol.ActionError, protocol.ErrorPayload{Reason: reason, Code: code})
	c.enqueue(frame)
}

func (s *Service) buildWelcome(username string) protocol.WelcomePayload {
	history, err := s.chat.Recent(s.cfg.ChatReplayLimit)
	if err != nil {
		s.log.Error("Failed to load chat history for welcome", "err", err)
	}
	visible := make([]domain.ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.VisibleTo(username) {
			visible = append(visible, msg)
		}
	}

	presenter := s.arbiter.Holder()
	return protocol.WelcomePayload{
		Username:    username,
		Peers:       s.registry.ListUsernames(),
		Presence:    s.registry.Snapshot(presenter),
		Revision:    s.registry.Revision(),
		Presenter:   presenter,
		ChatHistory: visible,
		Files:       s.files.List(),
		Media:       s.cfg.MediaPorts,
		TimeLimit:   s.timer.Status(),
	}
}

// remove is the single teardown path shared by voluntary leave, broken
// connections, watchdog eviction, kick and timer expiry. The registry
// removal decides the race: whoever removes the entry runs the cleanup,
// everyone else no-ops.
func (s *Service) remove(username, reason string) bool {
	if !s.registry.Unregister(username) {
		return false
	}
	if s.arbiter.Release(username) {
		s.hub.BroadcastToAll(protocol.ActionPresenterRevoked, protocol.PresenterPayload{Username: username})
	}
	for _, m := range s.media {
		m.RemoveUser(username)
	}
	if c := s.hub.detach(username); c != nil {
		c.close()
	}
	s.hub.BroadcastToAll(protocol.ActionUserLeft, protocol.UserEventPayload{
		Username:     username,
		Participants: s.registry.ListUsernames(),
		Reason:       reason,
	})
	s.broadcastPresenceSync()
	s.log.Info("Participant removed", "username", username, "reason", reason)
	return true
}

// Evict implements contract.Evictor for the watchdog and the timekeeper.
// Eviction of an already-removed participant is a no-op, not an error.
func (s *Service) Evict(username, reason string) bool {
	removed := s.remove(username, reason)
	if removed {
		s.stats.Evictions.Add(1)
	}
	return removed
}

// Kick forcefully disconnects a participant on behalf of an administrator.
// The victim receives a kicked frame; everyone else sees a user_left. With
// ban set the username is also barred from re-registering.
func (s *Service) Kick(username, actor string, ban bool) bool {
	s.hub.SendTo(username, protocol.ActionKicked, protocol.KickedPayload{
		Reason: "An administrator removed you from this meeting.",
		Actor:  actor,
	})
	if ban {
		s.registry.Ban(username)
	}
	return s.remove(username, "removed by administrator")
}

// AnnounceFile records an offer from the file transfer collaborator and
// broadcasts the updated catalog.
func (s *Service) AnnounceFile(offer domain.FileOffer) {
	s.files.Offer(offer)
	s.hub.BroadcastToAll(protocol.ActionFileOffer, protocol.FileOfferPayload{Files: s.files.List()})
}

// SetTimeLimit arms the meeting countdown and announces it.
func (s *Service) SetTimeLimit(seconds int) {
	status := s.timer.Set(seconds)
	s.hub.BroadcastToAll(protocol.ActionTimeLimitUpdate, status)
}

// ClearTimeLimit disarms the countdown and announces it.
func (s *Service) ClearTimeLimit() {
	s.timer.Clear()
	s.hub.BroadcastToAll(protocol.ActionTimeLimitUpdate, s.timer.Status())
}

// Snapshot exposes the registry state for read-only reporting.
func (s *Service) Snapshot() []domain.PresenceEntry {
	return s.registry.Snapshot(s.arbiter.Holder())
}

func (s *Service) broadcastPresenceSync() {
	s.hub.BroadcastToAll(protocol.ActionPresenceSync, protocol.PresenceSyncPayload{
		Participants: s.registry.Snapshot(s.arbiter.Holder()),
		Revision:     s.registry.Revision(),
	})
}

func (s *Service) broadcastPresenceDelta(username string) {
	entry, ok := s.registry.Entry(username, s.arbiter.Holder())
	if !ok {
		return
	}
	s.hub.BroadcastToAll(protocol.ActionPresenceUpdate, protocol.PresenceUpdatePayload{
		Participant: entry,
		Revision:    s.registry.Revision(),
	})
}

func splitPeer(addr net.Addr) (string, int) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}
