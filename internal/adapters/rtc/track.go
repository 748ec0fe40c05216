package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/confclient/internal/domain"
)

// LocalTrack wraps a pion local track together with the capture it
// feeds from. SetEnabled only gates the media while capture keeps
// running; Stop releases the capture for good.
type LocalTrack struct {
	track webrtc.TrackLocal
	kind  domain.MediaKind
	stop  func()

	mu      sync.Mutex
	enabled bool
	ended   bool
	onEnded []func()
}

func NewLocalTrack(track webrtc.TrackLocal, kind domain.MediaKind, stop func()) *LocalTrack {
	return &LocalTrack{track: track, kind: kind, stop: stop, enabled: true}
}

func (t *LocalTrack) ID() string             { return t.track.ID() }
func (t *LocalTrack) Kind() domain.MediaKind { return t.kind }

// Unwrap exposes the underlying pion track for transport attachment.
func (t *LocalTrack) Unwrap() webrtc.TrackLocal { return t.track }

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled && !t.ended
}

func (t *LocalTrack) Stop() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fns := t.onEnded
	t.onEnded = nil
	stop := t.stop
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, fn := range fns {
		fn()
	}
}

func (t *LocalTrack) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

func (t *LocalTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// HandleEnded marks the track ended from outside, for captures the
// environment can revoke without a local Stop.
func (t *LocalTrack) HandleEnded() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fns := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (t *remoteTrack) ID() string { return t.track.ID() }

func (t *remoteTrack) Kind() domain.MediaKind {
	if t.track.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.MediaAudio
	}
	return domain.MediaVideo
}

// Unwrap exposes the underlying pion track for media readout.
func (t *remoteTrack) Unwrap() *webrtc.TrackRemote { return t.track }
