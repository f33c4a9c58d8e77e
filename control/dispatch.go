package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lanmeet/domain"
	apperrors "lanmeet/errors"
	"lanmeet/protocol"
)

// dispatch routes one post-handshake envelope to its handler. Every message
// refreshes liveness first, so a chatty client never needs explicit
// heartbeats.
func (s *Service) dispatch(username string, env *protocol.Envelope) error {
	s.registry.TouchLiveness(username)

	switch env.Action {
	case protocol.ActionHeartbeat:
		return nil
	case protocol.ActionLeave:
		return errClientLeft
	case protocol.ActionChatMessage:
		return s.handleChat(username, env)
	case protocol.ActionAudioStatus:
		return s.handleAudioStatus(username, env)
	case protocol.ActionVideoStatus:
		return s.handleVideoStatus(username, env)
	case protocol.ActionTypingStatus:
		return s.handleTypingStatus(username, env)
	case protocol.ActionHandStatus:
		return s.handleHandStatus(username, env)
	case protocol.ActionReaction:
		return s.handleReaction(username, env)
	case protocol.ActionLatencyUpdate:
		return s.handleLatencyUpdate(username, env)
	case protocol.ActionPresenterRequest:
		return s.handlePresenterRequest(username)
	case protocol.ActionPresenterRelease:
		return s.handlePresenterRelease(username)
	case protocol.ActionFileRequest:
		return s.handleFileRequest(username, env)
	case protocol.ActionHello:
		return fmt.Errorf("%w: repeated hello", apperrors.ErrHandshake)
	default:
		s.log.Debug("Ignoring unknown control action", "username", username, "action", env.Action)
		return nil
	}
}

func (s *Service) handleChat(username string, env *protocol.Envelope) error {
	var payload protocol.ChatPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return err
	}
	if err := s.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedPacket, err)
	}

	msg := domain.ChatMessage{
		ID:          uuid.New(),
		Sender:      username,
		Message:     payload.Message,
		Recipients:  payload.Recipients,
		TimestampMs: time.Now().UnixMilli(),
	}
	if err := s.chat.Append(msg); err != nil {
		// Delivery still happens; only the replay history is degraded.
		s.log.Error("Failed to persist chat message", "sender", username, "err", err)
	}

	broadcast := protocol.ChatBroadcast{
		ID:          msg.ID.String(),
		Sender:      msg.Sender,
		Message:     msg.Message,
		Recipients:  msg.Recipients,
		TimestampMs: msg.TimestampMs,
	}
	if len(msg.Recipients) == 0 {
		s.hub.BroadcastToAll(protocol.ActionChatMessage, broadcast)
		return nil
	}
	// Targeted message: recipients plus an echo to the sender.
	for _, recipient := range msg.Recipients {
		s.hub.SendTo(recipient, protocol.ActionChatMessage, broadcast)
	}
	s.hub.SendTo(username, protocol.ActionChatMessage, broadcast)
	return nil
}

func (s *Service) handleAudioStatus(username string, env *protocol.Envelope) error {
	var payload protocol.AudioStatusPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return err
	}
	s.registry.UpdatePresence(username, domain.PresencePatch{AudioEnabled: &payload.AudioEnabled})
	s.broadcastPresenceDelta(username)
	return nil
}

func (s *Service) handleVideoStatus(username string, env *protocol.Envelope) error {
	var payload protocol.VideoStatusPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return err
	}
	s.registry.UpdatePresence(username, domain.PresencePatch{VideoEnabled: &payload.VideoEnabled})
	s.broadcastPresenceDelta(username)
	return nil
}

func (s *Service) handleTypingStatus(username string, env *protocol.Envelope) error {
	var payload protocol.TypingStatusPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return err
	}
	s.registry.UpdatePresence(username, domain.PresencePatch{IsTyping: &payload.IsTyping})
	s.broadcastPresenceDelta(username)
	return nil
}

func (s *Service) handleHandStatus(username string, env *protocol.Envelope) error {
	var payload protocol.HandStatusPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return err
	}
	s.registry.UpdatePresence(username, domain.PresencePatch{HandRaised: &payload.HandRaised})
	s.broadcastPresenceDelta(username)
	return nil
}

// handleReaction fans the reaction out without touching presence; reactions
// are ephemeral and never appear in snapshots.
func (s *Service) handleReaction(username string, env *protocol.Envelope) error {
	var payload protocol.ReactionPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return err
	}
	if err := s.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedPacket, err)
	}
	ts := payload.TimestampMs
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	s.hub.BroadcastToAll(protocol.ActionReaction, protocol.ReactionBroadcast{
		Username:    username,
		Reaction:    payload.Reaction,
		TimestampMs: ts,
	})
	return nil
}

func (s *Service) handleLatencyUpdate(username string, env *protocol.Envelope) error {
	var payload protocol.LatencyPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return err
	}
	if err := s.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedPacket, err)
	}
	s.registry.UpdatePresence(username, domain.PresencePatch{
		LatencyMs: &payload.LatencyMs,
		JitterMs:  payload.JitterMs,
	})
	s.broadcastPresenceDelta(username)
	return nil
}

func (s *Service) handlePresenterRequest(username string) error {
	if err := s.arbiter.Request(username); err != nil {
		var denied apperrors.ArbitrationDenied
		if errors.As(err, &denied) {
			s.hub.SendTo(username, protocol.ActionPresenterDenied,
				protocol.PresenterDeniedPayload{HeldBy: denied.HeldBy})
			return nil
		}
		return err
	}
	s.hub.BroadcastToAll(protocol.ActionPresenterGranted, protocol.PresenterPayload{Username: username})
	s.broadcastPresenceDelta(username)
	return nil
}

func (s *Service) handlePresenterRelease(username string) error {
	if !s.arbiter.Release(username) {
		// Releasing a slot you do not hold is a no-op, not a fault.
		return nil
	}
	s.hub.BroadcastToAll(protocol.ActionPresenterRevoked, protocol.PresenterPayload{Username: username})
	s.broadcastPresenceDelta(username)
	return nil
}

func (s *Service) handleFileRequest(username string, env *protocol.Envelope) error {
	var payload protocol.FileRequestPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return err
	}
	if err := s.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedPacket, err)
	}
	s.hub.SendTo(username, protocol.ActionFileOffer, protocol.FileOfferPayload{Files: s.files.List()})
	return nil
}
