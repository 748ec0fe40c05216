package orch

import (
	"errors"
	"sync"

	"github.com/dkeye/confclient/internal/app"
	"github.com/dkeye/confclient/internal/config"
	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

var (
	// ErrNotIdle is returned by Join on a session that already ran.
	ErrNotIdle = errors.New("session is not idle")
	// ErrNotActive is returned by operations that require a joined session.
	ErrNotActive = errors.New("session is not active")
)

// Session is the one conference membership of this client. It owns the
// lifecycle state and is the only component allowed to change it; all
// other state lives in the single-owner registries below and is reached
// through their accessors.
type Session struct {
	cfg *config.Config
	sig core.Signaler
	dev core.Device

	bus          *app.Bus
	transports   *app.TransportManager
	producers    *app.ProducerRegistry
	consumers    *app.ConsumerOrchestrator
	participants *app.Directory

	mu    sync.Mutex
	state domain.SessionState

	conferenceID domain.ConferenceID
	self         domain.ParticipantID
	name         string
}

func NewSession(cfg *config.Config, sig core.Signaler, dev core.Device) *Session {
	bus := app.NewBus(cfg.EventBuffer)
	dir := app.NewDirectory()
	tm := app.NewTransportManager(sig, dev, cfg.CallTimeout)
	return &Session{
		cfg:          cfg,
		sig:          sig,
		dev:          dev,
		bus:          bus,
		transports:   tm,
		producers:    app.NewProducerRegistry(sig, bus, cfg.CallTimeout),
		consumers:    app.NewConsumerOrchestrator(sig, dev, tm.Recv, dir, bus),
		participants: dir,
		state:        domain.StateIdle,
	}
}

// Events subscribes to the outward event stream. The returned cancel
// must be called when the subscriber is done.
func (s *Session) Events() (<-chan core.Event, func()) {
	return s.bus.Subscribe()
}

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st domain.SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) ConferenceID() domain.ConferenceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conferenceID
}

func (s *Session) LocalParticipantID() domain.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func (s *Session) Participants() []domain.Participant {
	return s.participants.Snapshot()
}

func (s *Session) Participant(id domain.ParticipantID) (domain.Participant, bool) {
	return s.participants.Get(id)
}

func (s *Session) Producers() []app.ProducerInfo {
	return s.producers.Snapshot()
}

func (s *Session) Streams() []core.RemoteStreamHandle {
	return s.consumers.Streams()
}

func (s *Session) StreamOf(id domain.ParticipantID) (core.RemoteStreamHandle, bool) {
	return s.consumers.StreamOf(id)
}
