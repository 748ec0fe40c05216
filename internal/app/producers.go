package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

var ErrUnknownProducer = errors.New("unknown producer")

type producerEntry struct {
	id     domain.SourceID
	kind   domain.MediaKind
	role   domain.StreamRole
	paused bool
	track  core.LocalTrack
}

// ProducerInfo is a read-only view of a local media source.
type ProducerInfo struct {
	ID     domain.SourceID   `json:"id"`
	Kind   domain.MediaKind  `json:"kind"`
	Role   domain.StreamRole `json:"role"`
	Paused bool              `json:"paused"`
}

// ProducerRegistry owns every locally produced media source. Pause is
// soft: the track keeps capturing, only delivery stops. Stop is hard:
// the capture resource is released and the entry removed. The two never
// mix.
type ProducerRegistry struct {
	sig     core.Signaler
	bus     *Bus
	timeout time.Duration

	mu   sync.RWMutex
	byID map[domain.SourceID]*producerEntry
}

func NewProducerRegistry(sig core.Signaler, bus *Bus, timeout time.Duration) *ProducerRegistry {
	return &ProducerRegistry{
		sig:     sig,
		bus:     bus,
		timeout: timeout,
		byID:    make(map[domain.SourceID]*producerEntry),
	}
}

// Add registers a produced source under its server-assigned id and arms
// the implicit-stop path for environment-ended tracks.
func (r *ProducerRegistry) Add(id domain.SourceID, role domain.StreamRole, track core.LocalTrack) {
	e := &producerEntry{id: id, kind: track.Kind(), role: role, track: track}
	r.mu.Lock()
	r.byID[id] = e
	r.mu.Unlock()
	track.OnEnded(func() {
		go r.handleTrackEnded(id)
	})
	log.Info().Str("module", "app.producers").Str("source", string(id)).Str("kind", string(e.kind)).Str("role", string(role)).Msg("producer added")
}

// Pause soft-pauses one producer and notifies the server. The capture
// keeps running so Resume is instant.
func (r *ProducerRegistry) Pause(ctx context.Context, id domain.SourceID) error {
	e, ok := r.setPaused(id, true)
	if !ok {
		return ErrUnknownProducer
	}
	return r.sig.Call(ctx, muteMethod(e.kind, true), nil, nil)
}

func (r *ProducerRegistry) Resume(ctx context.Context, id domain.SourceID) error {
	e, ok := r.setPaused(id, false)
	if !ok {
		return ErrUnknownProducer
	}
	return r.sig.Call(ctx, muteMethod(e.kind, false), nil, nil)
}

// SetKindPaused soft-pauses every producer of the given kind and sends
// a single mute/unmute notification for the kind. Returns the number of
// producers toggled.
func (r *ProducerRegistry) SetKindPaused(ctx context.Context, kind domain.MediaKind, paused bool) (int, error) {
	r.mu.Lock()
	n := 0
	for _, e := range r.byID {
		if e.kind != kind {
			continue
		}
		e.paused = paused
		e.track.SetEnabled(!paused)
		n++
	}
	r.mu.Unlock()
	return n, r.sig.Call(ctx, muteMethod(kind, paused), nil, nil)
}

// Stop closes the producer for good: server is told, the entry is
// dropped and the underlying capture is released. Stopping an unknown
// id is a no-op.
func (r *ProducerRegistry) Stop(ctx context.Context, id domain.SourceID) error {
	e := r.pop(id)
	if e == nil {
		return nil
	}
	err := r.sig.Call(ctx, core.MethodCloseProducer, core.CloseProducerRequest{SourceID: id}, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "app.producers").Str("source", string(id)).Msg("close producer call failed")
	}
	e.track.Stop()
	r.bus.Publish(core.LocalStreamRemoved{SourceID: id, Kind: e.kind})
	log.Info().Str("module", "app.producers").Str("source", string(id)).Msg("producer stopped")
	return err
}

// handleTrackEnded runs when the environment ends a track (permission
// revoked, capture stopped at the OS level). Same cleanup as Stop.
func (r *ProducerRegistry) handleTrackEnded(id domain.SourceID) {
	e := r.pop(id)
	if e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sig.Call(ctx, core.MethodCloseProducer, core.CloseProducerRequest{SourceID: id}, nil); err != nil {
		log.Error().Err(err).Str("module", "app.producers").Str("source", string(id)).Msg("close producer call failed after track end")
	}
	e.track.Stop()
	r.bus.Publish(core.LocalStreamRemoved{SourceID: id, Kind: e.kind})
	log.Info().Str("module", "app.producers").Str("source", string(id)).Msg("producer stopped, track ended by environment")
}

// CloseAll releases every producer without per-producer server calls;
// used on leave, where leaveConference covers the notification.
func (r *ProducerRegistry) CloseAll() {
	r.mu.Lock()
	entries := make([]*producerEntry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.byID = make(map[domain.SourceID]*producerEntry)
	r.mu.Unlock()
	for _, e := range entries {
		e.track.Stop()
	}
}

func (r *ProducerRegistry) Snapshot() []ProducerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProducerInfo, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, ProducerInfo{ID: e.id, Kind: e.kind, Role: e.role, Paused: e.paused})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *ProducerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *ProducerRegistry) setPaused(id domain.SourceID, paused bool) (*producerEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	e.paused = paused
	e.track.SetEnabled(!paused)
	return e, true
}

func (r *ProducerRegistry) pop(id domain.SourceID) *producerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	return e
}

func muteMethod(kind domain.MediaKind, muted bool) string {
	switch {
	case kind == domain.MediaAudio && muted:
		return core.MethodMuteAudio
	case kind == domain.MediaAudio:
		return core.MethodUnmuteAudio
	case muted:
		return core.MethodMuteVideo
	default:
		return core.MethodUnmuteVideo
	}
}
