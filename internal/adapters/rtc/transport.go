package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

// trackUnwrapper is what local tracks must provide to ride this transport.
type trackUnwrapper interface {
	Unwrap() webrtc.TrackLocal
}

type connectResult struct {
	ack *core.SecurityAck
	err error
}

type produceResult struct {
	id  domain.SourceID
	err error
}

// Transport is one negotiated media pipe over a pion peer connection.
// The connect handshake runs once, on first Produce or Consume, and is
// relayed outward through the OnConnect handler; each Produce relays
// through OnProduce with its own completion callback.
type Transport struct {
	pc  *webrtc.PeerConnection
	id  domain.TransportID
	dir core.TransportDirection

	mu         sync.Mutex
	closed     bool
	connectCh  chan struct{}
	connectErr error
	onConnect  core.ConnectHandler
	onProduce  core.ProduceHandler
	waiters    map[string]chan *webrtc.TrackRemote
	unclaimed  map[string]*webrtc.TrackRemote
}

func newTransport(pc *webrtc.PeerConnection, id domain.TransportID, dir core.TransportDirection) (*Transport, error) {
	t := &Transport{
		pc:        pc,
		id:        id,
		dir:       dir,
		waiters:   make(map[string]chan *webrtc.TrackRemote),
		unclaimed: make(map[string]*webrtc.TrackRemote),
	}

	if dir == core.DirectionRecv {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
		pc.OnTrack(t.handleTrack)
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("transport", string(id)).Str("dir", string(dir)).Str("state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			_ = t.Close()
		}
	})

	return t, nil
}

func (t *Transport) ID() domain.TransportID             { return t.id }
func (t *Transport) Direction() core.TransportDirection { return t.dir }

func (t *Transport) OnConnect(h core.ConnectHandler) {
	t.mu.Lock()
	t.onConnect = h
	t.mu.Unlock()
}

func (t *Transport) OnProduce(h core.ProduceHandler) {
	t.mu.Lock()
	t.onProduce = h
	t.mu.Unlock()
}

// Produce attaches a local track and registers it with the server via
// the OnProduce bridge. Blocks until the server assigns a source id.
func (t *Transport) Produce(ctx context.Context, track core.LocalTrack) (domain.SourceID, error) {
	if t.dir != core.DirectionSend {
		return "", core.ErrNotSendTransport
	}
	uw, ok := track.(trackUnwrapper)
	if !ok {
		return "", fmt.Errorf("produce: track %s is not transport-attachable", track.ID())
	}

	sender, err := t.pc.AddTrack(uw.Unwrap())
	if err != nil {
		return "", fmt.Errorf("add track: %w", err)
	}
	if err := t.ensureConnected(ctx); err != nil {
		_ = t.pc.RemoveTrack(sender)
		return "", err
	}

	t.mu.Lock()
	produce := t.onProduce
	t.mu.Unlock()
	if produce == nil {
		_ = t.pc.RemoveTrack(sender)
		return "", errors.New("produce: no handler bound")
	}

	params := core.MediaParameters{MID: t.midOf(sender)}
	ch := make(chan produceResult, 1)
	produce(track.Kind(), params, func(id domain.SourceID, err error) {
		ch <- produceResult{id: id, err: err}
	})

	select {
	case <-ctx.Done():
		_ = t.pc.RemoveTrack(sender)
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			_ = t.pc.RemoveTrack(sender)
			return "", res.err
		}
		return res.id, nil
	}
}

// Consume waits for the inbound track the server maps to this consumer.
// The server stamps the consumer id as the track's stream id, which is
// how arrivals pair with waiting calls in either order.
func (t *Transport) Consume(ctx context.Context, desc core.ConsumerDescriptor) (core.RemoteTrack, error) {
	if t.dir != core.DirectionRecv {
		return nil, core.ErrNotRecvTransport
	}
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}

	key := string(desc.ConsumerID)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, core.ErrTransportClosed
	}
	if tr, ok := t.unclaimed[key]; ok {
		delete(t.unclaimed, key)
		t.mu.Unlock()
		return &remoteTrack{track: tr}, nil
	}
	ch := make(chan *webrtc.TrackRemote, 1)
	t.waiters[key] = ch
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.waiters, key)
		t.mu.Unlock()
		return nil, fmt.Errorf("consume %s: %w", desc.ConsumerID, ctx.Err())
	case tr, ok := <-ch:
		if !ok {
			return nil, core.ErrTransportClosed
		}
		return &remoteTrack{track: tr}, nil
	}
}

func (t *Transport) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	key := track.StreamID()
	log.Info().Str("module", "rtc").Str("transport", string(t.id)).
		Str("kind", track.Kind().String()).Str("stream_id", key).Msg("track received")

	t.mu.Lock()
	if ch, ok := t.waiters[key]; ok {
		delete(t.waiters, key)
		t.mu.Unlock()
		ch <- track
		return
	}
	t.unclaimed[key] = track
	t.mu.Unlock()
}

// ensureConnected runs the offer/answer handshake exactly once. Callers
// arriving during the handshake wait for the same outcome.
func (t *Transport) ensureConnected(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return core.ErrTransportClosed
	}
	if t.connectCh == nil {
		t.connectCh = make(chan struct{})
		go t.handshake()
	}
	ch := t.connectCh
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectErr
}

func (t *Transport) handshake() {
	err := t.runHandshake()
	t.mu.Lock()
	t.connectErr = err
	close(t.connectCh)
	t.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("transport", string(t.id)).Msg("handshake failed")
	}
}

func (t *Transport) runHandshake() error {
	t.mu.Lock()
	connect := t.onConnect
	t.mu.Unlock()
	if connect == nil {
		return errors.New("connect: no handler bound")
	}

	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	local := t.pc.LocalDescription()
	ch := make(chan connectResult, 1)
	connect(core.SecurityParameters{SDP: local.SDP}, func(ack *core.SecurityAck, err error) {
		ch <- connectResult{ack: ack, err: err}
	})
	res := <-ch
	if res.err != nil {
		return res.err
	}
	if res.ack == nil || res.ack.SDP == "" {
		return errors.New("connect: empty answer")
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: res.ack.SDP}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for key, ch := range t.waiters {
		delete(t.waiters, key)
		close(ch)
	}
	t.unclaimed = make(map[string]*webrtc.TrackRemote)
	t.mu.Unlock()

	log.Info().Str("module", "rtc").Str("transport", string(t.id)).Str("dir", string(t.dir)).Msg("closed")
	return t.pc.Close()
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) midOf(sender *webrtc.RTPSender) string {
	for _, tr := range t.pc.GetTransceivers() {
		if tr.Sender() == sender {
			return tr.Mid()
		}
	}
	return ""
}
