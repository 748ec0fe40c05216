package orch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

// Produce registers local tracks with the server through the send
// transport and records them in the producer registry.
func (s *Session) Produce(ctx context.Context, tracks []core.LocalTrack, role domain.StreamRole) ([]domain.SourceID, error) {
	if s.State() != domain.StateActive {
		return nil, ErrNotActive
	}
	send := s.transports.Send()
	if send == nil {
		return nil, ErrNotActive
	}

	ids := make([]domain.SourceID, 0, len(tracks))
	for _, track := range tracks {
		id, err := send.Produce(ctx, track)
		if err != nil {
			s.bus.Publish(core.Error{Message: fmt.Sprintf("produce %s: %v", track.Kind(), err)})
			return ids, err
		}
		s.producers.Add(id, role, track)
		ids = append(ids, id)
	}

	s.bus.Publish(core.LocalStreamReady{Role: role, Tracks: tracks})
	return ids, nil
}

func (s *Session) PauseProducer(ctx context.Context, id domain.SourceID) error {
	if s.State() != domain.StateActive {
		return ErrNotActive
	}
	return s.producers.Pause(ctx, id)
}

func (s *Session) ResumeProducer(ctx context.Context, id domain.SourceID) error {
	if s.State() != domain.StateActive {
		return ErrNotActive
	}
	return s.producers.Resume(ctx, id)
}

func (s *Session) StopProducer(ctx context.Context, id domain.SourceID) error {
	if s.State() != domain.StateActive {
		return ErrNotActive
	}
	return s.producers.Stop(ctx, id)
}

// SetAudioMuted soft-pauses (or resumes) every audio producer and
// reports the toggle outward.
func (s *Session) SetAudioMuted(ctx context.Context, muted bool) error {
	if s.State() != domain.StateActive {
		return ErrNotActive
	}
	_, err := s.producers.SetKindPaused(ctx, domain.MediaAudio, muted)
	s.bus.Publish(core.LocalAudioToggled{Enabled: !muted})
	return err
}

func (s *Session) SetVideoMuted(ctx context.Context, muted bool) error {
	if s.State() != domain.StateActive {
		return ErrNotActive
	}
	_, err := s.producers.SetKindPaused(ctx, domain.MediaVideo, muted)
	s.bus.Publish(core.LocalVideoToggled{Enabled: !muted})
	return err
}

// ConsumeParticipant bulk-consumes one participant's current sources.
func (s *Session) ConsumeParticipant(ctx context.Context, id domain.ParticipantID) error {
	if s.State() != domain.StateActive {
		return ErrNotActive
	}
	return s.consumers.ConsumeParticipant(ctx, id)
}

func (s *Session) attachHandlers() {
	s.sig.On(core.EventParticipantJoined, s.onParticipantJoined)
	s.sig.On(core.EventParticipantLeft, s.onParticipantLeft)
	s.sig.On(core.EventNewMediaSource, s.onNewMediaSource)
	s.sig.On(core.EventMediaSourceClosed, s.onMediaSourceClosed)
	s.sig.On(core.EventAudioMuted, s.onMutePush(domain.MediaAudio, true))
	s.sig.On(core.EventAudioUnmuted, s.onMutePush(domain.MediaAudio, false))
	s.sig.On(core.EventVideoMuted, s.onMutePush(domain.MediaVideo, true))
	s.sig.On(core.EventVideoUnmuted, s.onMutePush(domain.MediaVideo, false))
	s.sig.On(core.EventDisconnect, s.onDisconnect)
}

func (s *Session) detachHandlers() {
	s.sig.Off(core.EventParticipantJoined)
	s.sig.Off(core.EventParticipantLeft)
	s.sig.Off(core.EventNewMediaSource)
	s.sig.Off(core.EventMediaSourceClosed)
	s.sig.Off(core.EventAudioMuted)
	s.sig.Off(core.EventAudioUnmuted)
	s.sig.Off(core.EventVideoMuted)
	s.sig.Off(core.EventVideoUnmuted)
	s.sig.Off(core.EventDisconnect)
}

func (s *Session) onParticipantJoined(data json.RawMessage) {
	var p core.ParticipantJoinedPush
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("bad participantJoined payload")
		return
	}
	if p.ParticipantID == s.LocalParticipantID() {
		return
	}
	_, announce := s.participants.Upsert(p.ParticipantID, p.ParticipantName, p.Info)
	if announce {
		s.bus.Publish(core.ParticipantJoined{
			ParticipantID:   p.ParticipantID,
			ParticipantName: p.ParticipantName,
		})
	}
}

func (s *Session) onParticipantLeft(data json.RawMessage) {
	var p core.ParticipantLeftPush
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("bad participantLeft payload")
		return
	}
	s.consumers.CloseParticipant(p.ParticipantID)
	if s.participants.Remove(p.ParticipantID) {
		s.bus.Publish(core.ParticipantLeft{ParticipantID: p.ParticipantID})
	}
}

func (s *Session) onNewMediaSource(data json.RawMessage) {
	var src core.MediaSourceInfo
	if err := json.Unmarshal(data, &src); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("bad newMediaSource payload")
		return
	}
	if src.ParticipantID == s.LocalParticipantID() {
		return
	}
	if !src.Kind.Valid() {
		log.Warn().Str("module", "orch").Str("kind", string(src.Kind)).Str("source", string(src.SourceID)).Msg("ignoring source of unknown kind")
		return
	}
	if st := s.State(); st != domain.StateJoining && st != domain.StateActive {
		return
	}
	// Consuming does a server round trip whose response arrives on the
	// same read loop that delivered this push; it must not run inline.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConsumeTimeout)
		defer cancel()
		if err := s.consumers.ConsumeSource(ctx, src); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("source", string(src.SourceID)).Msg("reactive consume failed")
		}
	}()
}

func (s *Session) onMediaSourceClosed(data json.RawMessage) {
	var p core.MediaSourceClosedPush
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("bad mediaSourceClosed payload")
		return
	}
	// Unknown source ids are fine here: the close may arrive twice, or
	// refer to a source we never consumed.
	s.consumers.CloseSource(p.SourceID)
}

func (s *Session) onMutePush(kind domain.MediaKind, muted bool) func(json.RawMessage) {
	return func(data json.RawMessage) {
		var p core.MutePush
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "orch").Msg("bad mute payload")
			return
		}
		var known bool
		if kind == domain.MediaAudio {
			known = s.participants.SetAudioMuted(p.ParticipantID, muted)
		} else {
			known = s.participants.SetVideoMuted(p.ParticipantID, muted)
		}
		if !known {
			return
		}
		if kind == domain.MediaAudio {
			s.bus.Publish(core.RemoteAudioToggled{ParticipantID: p.ParticipantID, Enabled: !muted})
		} else {
			s.bus.Publish(core.RemoteVideoToggled{ParticipantID: p.ParticipantID, Enabled: !muted})
		}
	}
}

func (s *Session) onDisconnect(json.RawMessage) {
	go s.shutdownOnDisconnect()
}
