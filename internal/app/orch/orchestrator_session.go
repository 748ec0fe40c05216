package orch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

// Join runs the full join sequence: capability load, transport
// creation, directory seeding and catch-up consumption. On any failure
// everything already created is closed again and the session returns to
// idle.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.state != domain.StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	if s.self == "" {
		s.self = domain.ParticipantID(uuid.NewString())
	}
	local, err := domain.NewParticipant(s.self, s.cfg.ParticipantName, nil)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("participant name: %w", err)
	}
	s.state = domain.StateJoining
	s.conferenceID = domain.ConferenceID(s.cfg.Conference)
	s.name = local.Name
	self := s.self
	conference := s.conferenceID
	s.mu.Unlock()

	// Handlers go on before the first call resolves so no push racing
	// the join response is lost.
	s.attachHandlers()

	if err := s.joinSequence(ctx, conference, self); err != nil {
		s.rollbackJoin(err)
		return err
	}

	s.setState(domain.StateActive)
	log.Info().Str("module", "orch").Str("conference", string(conference)).Str("participant", string(self)).Msg("joined")
	s.bus.Publish(core.Joined{ConferenceID: conference, ParticipantID: self})
	return nil
}

func (s *Session) joinSequence(ctx context.Context, conference domain.ConferenceID, self domain.ParticipantID) error {
	var join core.JoinResponse
	req := core.JoinRequest{
		ConferenceID:    conference,
		ParticipantID:   self,
		ParticipantName: s.name,
	}
	if err := s.sig.Call(ctx, core.MethodJoinConference, req, &join); err != nil {
		return fmt.Errorf("join conference: %w", err)
	}
	if err := s.dev.Load(join.Capabilities); err != nil {
		return fmt.Errorf("load capabilities: %w", err)
	}
	if err := s.transports.CreateBoth(ctx); err != nil {
		return err
	}

	var parts core.GetParticipantsResponse
	if err := s.sig.Call(ctx, core.MethodGetParticipants, nil, &parts); err != nil {
		return fmt.Errorf("fetch participants: %w", err)
	}
	for _, p := range parts.Participants {
		if p.ID == self {
			continue
		}
		s.participants.Upsert(p.ID, p.Name, p.Info)
	}

	return s.consumers.CatchUp(ctx, self)
}

func (s *Session) rollbackJoin(cause error) {
	log.Error().Err(cause).Str("module", "orch").Msg("join failed, rolling back")
	s.detachHandlers()
	s.transports.CloseAll()
	s.consumers.Reset()
	s.participants.Clear()
	s.setState(domain.StateIdle)
	s.bus.Publish(core.Error{Message: cause.Error()})
}

// Leave tears the session down: producers, consumers and transports are
// closed, the server is notified best-effort, and all per-session state
// is cleared. Repeated or concurrent calls after the first are no-ops.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case domain.StateActive:
	case domain.StateLeaving, domain.StateLeft:
		s.mu.Unlock()
		return nil
	default:
		s.mu.Unlock()
		return ErrNotActive
	}
	s.state = domain.StateLeaving
	s.mu.Unlock()

	s.teardown()
	if err := s.sig.Call(ctx, core.MethodLeaveConference, nil, nil); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("leave notification failed")
	}

	s.setState(domain.StateLeft)
	log.Info().Str("module", "orch").Msg("left conference")
	s.bus.Publish(core.Left{})
	return nil
}

func (s *Session) teardown() {
	s.detachHandlers()
	s.producers.CloseAll()
	s.consumers.CloseAll()
	s.transports.CloseAll()
	s.participants.Clear()
}

// shutdownOnDisconnect handles a server-side disconnect: same cleanup
// as Leave, minus the farewell call that can no longer be delivered.
func (s *Session) shutdownOnDisconnect() {
	s.mu.Lock()
	if s.state != domain.StateActive && s.state != domain.StateJoining {
		s.mu.Unlock()
		return
	}
	s.state = domain.StateLeaving
	s.mu.Unlock()

	log.Warn().Str("module", "orch").Msg("signaling disconnected, shutting session down")
	s.bus.Publish(core.Error{Message: "signaling disconnected"})
	s.teardown()
	s.setState(domain.StateLeft)
	s.bus.Publish(core.Left{})
}
