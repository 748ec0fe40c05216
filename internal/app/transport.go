package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

// TransportManager owns the session's two media transports and bridges
// their callbacks to the signaling peer. The transport library fires
// connect/produce and expects a value back; every bridged call resolves
// through the done closure of its own invocation, so two produces in
// flight can never complete each other's request.
type TransportManager struct {
	sig     core.Signaler
	dev     core.Device
	timeout time.Duration

	mu   sync.RWMutex
	send core.MediaTransport
	recv core.MediaTransport
}

func NewTransportManager(sig core.Signaler, dev core.Device, timeout time.Duration) *TransportManager {
	return &TransportManager{sig: sig, dev: dev, timeout: timeout}
}

// CreateBoth asks the server for send and recv transport parameters and
// materializes both transports. On any failure whatever was already
// created is closed again.
func (m *TransportManager) CreateBoth(ctx context.Context) error {
	send, err := m.create(ctx, core.DirectionSend)
	if err != nil {
		return err
	}
	recv, err := m.create(ctx, core.DirectionRecv)
	if err != nil {
		_ = send.Close()
		return err
	}
	m.mu.Lock()
	m.send = send
	m.recv = recv
	m.mu.Unlock()
	return nil
}

func (m *TransportManager) create(ctx context.Context, dir core.TransportDirection) (core.MediaTransport, error) {
	var params core.TransportParameters
	req := core.CreateTransportRequest{Direction: dir}
	if err := m.sig.Call(ctx, core.MethodCreateTransport, req, &params); err != nil {
		return nil, fmt.Errorf("create %s transport: %w", dir, err)
	}

	var (
		t   core.MediaTransport
		err error
	)
	switch dir {
	case core.DirectionSend:
		t, err = m.dev.CreateSendTransport(params)
	default:
		t, err = m.dev.CreateRecvTransport(params)
	}
	if err != nil {
		return nil, fmt.Errorf("materialize %s transport: %w", dir, err)
	}

	m.bind(t)
	log.Info().Str("module", "app.transport").Str("direction", string(dir)).Str("transport", string(t.ID())).Msg("transport created")
	return t, nil
}

// bind wires the transport's callbacks to signaling calls. Callbacks
// carry no caller context, so the bridged round trips run under the
// manager's own timeout.
func (m *TransportManager) bind(t core.MediaTransport) {
	t.OnConnect(func(sec core.SecurityParameters, done func(ack *core.SecurityAck, err error)) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()
			var ack core.SecurityAck
			req := core.ConnectTransportRequest{TransportID: t.ID(), Direction: t.Direction(), Security: sec}
			if err := m.sig.Call(ctx, core.MethodConnectTransport, req, &ack); err != nil {
				log.Error().Err(err).Str("module", "app.transport").Str("transport", string(t.ID())).Msg("connect handshake failed")
				done(nil, err)
				return
			}
			done(&ack, nil)
		}()
	})

	if t.Direction() != core.DirectionSend {
		return
	}
	t.OnProduce(func(kind domain.MediaKind, params core.MediaParameters, done func(id domain.SourceID, err error)) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()
			var resp core.ProduceResponse
			req := core.ProduceRequest{TransportID: t.ID(), Kind: kind, Media: params}
			if err := m.sig.Call(ctx, core.MethodProduce, req, &resp); err != nil {
				log.Error().Err(err).Str("module", "app.transport").Str("transport", string(t.ID())).Str("kind", string(kind)).Msg("produce registration failed")
				done("", err)
				return
			}
			done(resp.SourceID, nil)
		}()
	})
}

func (m *TransportManager) Send() core.MediaTransport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.send
}

func (m *TransportManager) Recv() core.MediaTransport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recv
}

// CloseAll closes both transports. Safe to call repeatedly and with
// transports never created.
func (m *TransportManager) CloseAll() {
	m.mu.Lock()
	send, recv := m.send, m.recv
	m.send, m.recv = nil, nil
	m.mu.Unlock()
	if send != nil {
		if err := send.Close(); err != nil {
			log.Error().Err(err).Str("module", "app.transport").Msg("send transport close")
		}
	}
	if recv != nil {
		if err := recv.Close(); err != nil {
			log.Error().Err(err).Str("module", "app.transport").Msg("recv transport close")
		}
	}
}
