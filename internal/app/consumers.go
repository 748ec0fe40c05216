package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

// RemoteStream is the per-participant aggregate of inbound tracks. It
// grows and shrinks as the participant's sources come and go.
type RemoteStream struct {
	pid domain.ParticipantID

	mu     sync.RWMutex
	tracks map[domain.SourceID]core.RemoteTrack
}

func newRemoteStream(pid domain.ParticipantID) *RemoteStream {
	return &RemoteStream{pid: pid, tracks: make(map[domain.SourceID]core.RemoteTrack)}
}

func (s *RemoteStream) ParticipantID() domain.ParticipantID { return s.pid }

func (s *RemoteStream) Tracks() []core.RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.RemoteTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *RemoteStream) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks) == 0
}

func (s *RemoteStream) add(id domain.SourceID, t core.RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[id] = t
}

func (s *RemoteStream) remove(id domain.SourceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, id)
}

type consumerEntry struct {
	consumerID    domain.ConsumerID
	sourceID      domain.SourceID
	participantID domain.ParticipantID
	kind          domain.MediaKind
	// inflight marks a source claimed before its round trip resolved.
	inflight bool
}

// ConsumerOrchestrator turns remote source announcements into inbound
// tracks, exactly once per source id. Both the post-join catch-up pass
// and reactive newMediaSource pushes funnel into ConsumeSource; the
// consumed map is the dedup ledger that makes their races harmless.
type ConsumerOrchestrator struct {
	sig  core.Signaler
	dev  core.Device
	recv func() core.MediaTransport
	dir  *Directory
	bus  *Bus

	mu       sync.Mutex
	closed   bool
	consumed map[domain.SourceID]*consumerEntry
	streams  map[domain.ParticipantID]*RemoteStream
}

func NewConsumerOrchestrator(sig core.Signaler, dev core.Device, recv func() core.MediaTransport, dir *Directory, bus *Bus) *ConsumerOrchestrator {
	return &ConsumerOrchestrator{
		sig:      sig,
		dev:      dev,
		recv:     recv,
		dir:      dir,
		bus:      bus,
		consumed: make(map[domain.SourceID]*consumerEntry),
		streams:  make(map[domain.ParticipantID]*RemoteStream),
	}
}

// CatchUp consumes every source that predates our join. Sources owned
// by self are skipped. Individual failures are reported through the bus
// and do not abort the rest of the batch.
func (c *ConsumerOrchestrator) CatchUp(ctx context.Context, self domain.ParticipantID) error {
	var resp core.GetExistingSourcesResponse
	if err := c.sig.Call(ctx, core.MethodGetExistingSources, nil, &resp); err != nil {
		return fmt.Errorf("fetch existing sources: %w", err)
	}
	var wg sync.WaitGroup
	for _, src := range resp.Sources {
		if src.ParticipantID == self {
			continue
		}
		wg.Add(1)
		go func(src core.MediaSourceInfo) {
			defer wg.Done()
			if err := c.ConsumeSource(ctx, src); err != nil {
				log.Error().Err(err).Str("module", "app.consumers").Str("source", string(src.SourceID)).Msg("catch-up consume failed")
			}
		}(src)
	}
	wg.Wait()
	return nil
}

// ConsumeSource materializes one remote source. The source id is
// claimed in the ledger before any round trip, so a duplicate
// announcement racing this call returns immediately; the claim is
// released on failure so a later announcement can retry. The claim
// entry travels with the round trip: a close followed by a
// re-announcement can hand the id to a new claimant mid-flight, and
// only the entry's current owner may commit.
func (c *ConsumerOrchestrator) ConsumeSource(ctx context.Context, src core.MediaSourceInfo) error {
	e := c.claim(src.SourceID)
	if e == nil {
		return nil
	}
	var desc core.ConsumerDescriptor
	req := core.ConsumeMediaRequest{SourceID: src.SourceID, Capabilities: c.dev.RTPCapabilities()}
	if err := c.sig.Call(ctx, core.MethodConsumeMedia, req, &desc); err != nil {
		c.release(src.SourceID, e)
		c.bus.Publish(core.Error{Message: fmt.Sprintf("consume %s: %v", src.SourceID, err)})
		return err
	}
	if desc.ParticipantName == "" {
		desc.ParticipantName = src.ParticipantName
	}
	return c.materialize(ctx, desc, e)
}

// ConsumeParticipant bulk-consumes everything a single participant is
// currently producing.
func (c *ConsumerOrchestrator) ConsumeParticipant(ctx context.Context, pid domain.ParticipantID) error {
	var resp core.ConsumeParticipantResponse
	req := core.ConsumeParticipantRequest{ParticipantID: pid, Capabilities: c.dev.RTPCapabilities()}
	if err := c.sig.Call(ctx, core.MethodConsumeParticipant, req, &resp); err != nil {
		return fmt.Errorf("consume participant %s: %w", pid, err)
	}
	for _, desc := range resp.Consumers {
		e := c.claim(desc.SourceID)
		if e == nil {
			continue
		}
		if err := c.materialize(ctx, desc, e); err != nil {
			log.Error().Err(err).Str("module", "app.consumers").Str("source", string(desc.SourceID)).Msg("participant consume failed")
		}
	}
	return nil
}

// materialize drives the recv transport and finishes bookkeeping for a
// source claimed by e. Commits only while e still owns the ledger
// entry; a close (or close plus re-announcement) during the round trip
// revokes the claim and the result is dropped.
func (c *ConsumerOrchestrator) materialize(ctx context.Context, desc core.ConsumerDescriptor, e *consumerEntry) error {
	recv := c.recv()
	if recv == nil {
		c.release(desc.SourceID, e)
		err := fmt.Errorf("consume %s: no recv transport", desc.SourceID)
		c.bus.Publish(core.Error{Message: err.Error()})
		return err
	}
	track, err := recv.Consume(ctx, desc)
	if err != nil {
		c.release(desc.SourceID, e)
		c.bus.Publish(core.Error{Message: fmt.Sprintf("consume %s: %v", desc.SourceID, err)})
		return err
	}
	// Servers create consumers paused; without this unpause no media
	// ever flows even though everything looks wired.
	unpause := core.UnpauseConsumerRequest{ConsumerID: desc.ConsumerID}
	if err := c.sig.Call(ctx, core.MethodUnpauseConsumer, unpause, nil); err != nil {
		c.release(desc.SourceID, e)
		c.bus.Publish(core.Error{Message: fmt.Sprintf("unpause %s: %v", desc.ConsumerID, err)})
		return err
	}

	c.mu.Lock()
	cur, ok := c.consumed[desc.SourceID]
	if c.closed || !ok || cur != e {
		// Closed, torn down, or the id was closed and re-claimed while
		// the round trip was in flight. Not ours to commit.
		if ok && cur == e {
			delete(c.consumed, desc.SourceID)
		}
		c.mu.Unlock()
		return nil
	}
	e.consumerID = desc.ConsumerID
	e.sourceID = desc.SourceID
	e.participantID = desc.ParticipantID
	e.kind = desc.Kind
	e.inflight = false
	stream, found := c.streams[desc.ParticipantID]
	if !found {
		stream = newRemoteStream(desc.ParticipantID)
		c.streams[desc.ParticipantID] = stream
	}
	c.mu.Unlock()

	stream.add(desc.SourceID, track)
	c.dir.Discover(desc.ParticipantID, desc.ParticipantName)

	log.Info().Str("module", "app.consumers").
		Str("source", string(desc.SourceID)).
		Str("consumer", string(desc.ConsumerID)).
		Str("participant", string(desc.ParticipantID)).
		Str("kind", string(desc.Kind)).
		Msg("remote source consumed")

	c.bus.Publish(core.RemoteStreamAdded{
		ParticipantID:   desc.ParticipantID,
		ParticipantName: desc.ParticipantName,
		SourceID:        desc.SourceID,
		Kind:            desc.Kind,
		Stream:          stream,
	})
	return nil
}

// CloseSource tears down the consumer mirroring sourceID. Unknown ids
// are a designed no-op: close notifications may arrive twice, or for
// sources we never managed to consume.
func (c *ConsumerOrchestrator) CloseSource(sourceID domain.SourceID) bool {
	c.mu.Lock()
	e, ok := c.consumed[sourceID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.consumed, sourceID)
	if e.inflight {
		// The id may now be claimed afresh by a re-announcement; the
		// in-flight path checks entry identity and drops its result.
		c.mu.Unlock()
		return false
	}
	stream := c.streams[e.participantID]
	if stream != nil {
		stream.remove(sourceID)
		if stream.Empty() {
			delete(c.streams, e.participantID)
		}
	}
	c.mu.Unlock()

	log.Info().Str("module", "app.consumers").Str("source", string(sourceID)).Msg("remote source closed")
	c.bus.Publish(core.RemoteStreamRemoved{
		ParticipantID: e.participantID,
		SourceID:      sourceID,
		Kind:          e.kind,
	})
	return true
}

// CloseParticipant closes every consumer owned by pid. Returns how many
// were closed.
func (c *ConsumerOrchestrator) CloseParticipant(pid domain.ParticipantID) int {
	c.mu.Lock()
	sources := make([]domain.SourceID, 0, 2)
	for id, e := range c.consumed {
		if e.participantID == pid && !e.inflight {
			sources = append(sources, id)
		}
	}
	c.mu.Unlock()
	n := 0
	for _, id := range sources {
		if c.CloseSource(id) {
			n++
		}
	}
	return n
}

// CloseAll drops all consumption state and rejects any round trip still
// in flight. Terminal; used on leave.
func (c *ConsumerOrchestrator) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.consumed = make(map[domain.SourceID]*consumerEntry)
	c.streams = make(map[domain.ParticipantID]*RemoteStream)
}

// Reset drops all consumption state but keeps the orchestrator usable;
// used when a failed join rolls back to idle. In-flight round trips
// notice their missing ledger entry and drop their result.
func (c *ConsumerOrchestrator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumed = make(map[domain.SourceID]*consumerEntry)
	c.streams = make(map[domain.ParticipantID]*RemoteStream)
}

func (c *ConsumerOrchestrator) StreamOf(pid domain.ParticipantID) (core.RemoteStreamHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[pid]
	if !ok {
		return nil, false
	}
	return s, true
}

func (c *ConsumerOrchestrator) Streams() []core.RemoteStreamHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.RemoteStreamHandle, 0, len(c.streams))
	for _, s := range c.streams {
		out = append(out, s)
	}
	return out
}

// Len reports how many sources are currently consumed or being consumed.
func (c *ConsumerOrchestrator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.consumed)
}

// claim reserves sourceID in the ledger and returns the entry the
// caller now owns. Nil means someone already holds the id, consumed or
// in flight, or the orchestrator is closed.
func (c *ConsumerOrchestrator) claim(sourceID domain.SourceID) *consumerEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if _, ok := c.consumed[sourceID]; ok {
		return nil
	}
	e := &consumerEntry{sourceID: sourceID, inflight: true}
	c.consumed[sourceID] = e
	return e
}

// release drops e's claim so the source can be retried on its next
// announcement. A no-op when the id was already closed out or handed
// to a newer claimant.
func (c *ConsumerOrchestrator) release(sourceID domain.SourceID, e *consumerEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.consumed[sourceID]; ok && cur == e {
		delete(c.consumed, sourceID)
	}
}
