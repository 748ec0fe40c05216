package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

// fakeSignaler scripts RPC responses per method and records every call.
type fakeSignaler struct {
	mu       sync.Mutex
	stubs    map[string]func(in json.RawMessage) (any, error)
	calls    []string
	handlers map[string]func(data json.RawMessage)
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{
		stubs:    make(map[string]func(in json.RawMessage) (any, error)),
		handlers: make(map[string]func(data json.RawMessage)),
	}
}

func (f *fakeSignaler) stub(method string, fn func(in json.RawMessage) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs[method] = fn
}

func (f *fakeSignaler) stubOK(method string, out any) {
	f.stub(method, func(json.RawMessage) (any, error) { return out, nil })
}

func (f *fakeSignaler) Call(_ context.Context, method string, in, out any) error {
	var payload json.RawMessage
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = b
	}
	f.mu.Lock()
	f.calls = append(f.calls, method)
	fn := f.stubs[method]
	f.mu.Unlock()
	if fn == nil {
		return fmt.Errorf("no stub for %s", method)
	}
	res, err := fn(payload)
	if err != nil {
		return err
	}
	if out == nil || res == nil {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *fakeSignaler) On(event string, h func(data json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

func (f *fakeSignaler) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

func (f *fakeSignaler) Close() error { return nil }

func (f *fakeSignaler) callsFor(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.calls {
		if m == method {
			n++
		}
	}
	return n
}

// fakeTrack implements core.LocalTrack without any capture behind it.
type fakeTrack struct {
	id   string
	kind domain.MediaKind

	mu      sync.Mutex
	enabled bool
	ended   bool
	onEnded []func()
}

func newFakeTrack(id string, kind domain.MediaKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.MediaKind { return t.kind }

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled && !t.ended
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	t.mu.Unlock()
}

func (t *fakeTrack) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

func (t *fakeTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// endByEnvironment simulates the capture being revoked from outside.
func (t *fakeTrack) endByEnvironment() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fns := t.onEnded
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeRemoteTrack struct {
	id   string
	kind domain.MediaKind
}

func (t *fakeRemoteTrack) ID() string             { return t.id }
func (t *fakeRemoteTrack) Kind() domain.MediaKind { return t.kind }

// fakeTransport scripts Produce and Consume and records bound handlers.
type fakeTransport struct {
	id  domain.TransportID
	dir core.TransportDirection

	mu        sync.Mutex
	closed    bool
	onConnect core.ConnectHandler
	onProduce core.ProduceHandler
	produceFn func(track core.LocalTrack) (domain.SourceID, error)
	consumeFn func(desc core.ConsumerDescriptor) (core.RemoteTrack, error)
}

func newFakeTransport(id domain.TransportID, dir core.TransportDirection) *fakeTransport {
	return &fakeTransport{id: id, dir: dir}
}

func (t *fakeTransport) ID() domain.TransportID             { return t.id }
func (t *fakeTransport) Direction() core.TransportDirection { return t.dir }

func (t *fakeTransport) OnConnect(h core.ConnectHandler) {
	t.mu.Lock()
	t.onConnect = h
	t.mu.Unlock()
}

func (t *fakeTransport) OnProduce(h core.ProduceHandler) {
	t.mu.Lock()
	t.onProduce = h
	t.mu.Unlock()
}

func (t *fakeTransport) Produce(_ context.Context, track core.LocalTrack) (domain.SourceID, error) {
	if t.dir != core.DirectionSend {
		return "", core.ErrNotSendTransport
	}
	t.mu.Lock()
	fn := t.produceFn
	t.mu.Unlock()
	if fn == nil {
		return domain.SourceID("src-" + track.ID()), nil
	}
	return fn(track)
}

func (t *fakeTransport) Consume(_ context.Context, desc core.ConsumerDescriptor) (core.RemoteTrack, error) {
	if t.dir != core.DirectionRecv {
		return nil, core.ErrNotRecvTransport
	}
	t.mu.Lock()
	fn := t.consumeFn
	t.mu.Unlock()
	if fn == nil {
		return &fakeRemoteTrack{id: string(desc.ConsumerID), kind: desc.Kind}, nil
	}
	return fn(desc)
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// fakeDevice hands out pre-built fake transports.
type fakeDevice struct {
	mu     sync.Mutex
	loaded bool
	caps   core.CapabilitiesDescriptor
	send   *fakeTransport
	recv   *fakeTransport

	failSend bool
	failRecv bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		send: newFakeTransport("t-send", core.DirectionSend),
		recv: newFakeTransport("t-recv", core.DirectionRecv),
	}
}

func (d *fakeDevice) Load(desc core.CapabilitiesDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = desc
	d.loaded = true
	return nil
}

func (d *fakeDevice) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *fakeDevice) RTPCapabilities() core.CapabilitiesDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

func (d *fakeDevice) CreateSendTransport(core.TransportParameters) (core.MediaTransport, error) {
	if d.failSend {
		return nil, fmt.Errorf("send transport refused")
	}
	return d.send, nil
}

func (d *fakeDevice) CreateRecvTransport(core.TransportParameters) (core.MediaTransport, error) {
	if d.failRecv {
		return nil, fmt.Errorf("recv transport refused")
	}
	return d.recv, nil
}
