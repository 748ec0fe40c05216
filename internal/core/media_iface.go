package core

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/confclient/internal/domain"
)

var (
	ErrNotSendTransport = errors.New("transport is not a send transport")
	ErrNotRecvTransport = errors.New("transport is not a recv transport")
	ErrTransportClosed  = errors.New("transport closed")
	ErrNotLoaded        = errors.New("capabilities not loaded")
)

type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

// CodecCapability is one codec entry of a capabilities descriptor.
type CodecCapability struct {
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
	PayloadType uint8  `json:"payloadType"`
}

// CapabilitiesDescriptor is the server-provided media capability set,
// also used as the local capability payload of consume requests.
type CapabilitiesDescriptor struct {
	Codecs []CodecCapability `json:"codecs"`
}

// TransportParameters is what createTransport returns.
type TransportParameters struct {
	ID         domain.TransportID `json:"id"`
	ICEServers []string           `json:"iceServers,omitempty"`
}

// SecurityParameters carries the local connectivity material the
// transport needs relayed to the server, opaque to everything between.
type SecurityParameters struct {
	SDP          string   `json:"sdp"`
	Fingerprints []string `json:"fingerprints,omitempty"`
}

// SecurityAck is the server's side of the connect handshake.
type SecurityAck struct {
	SDP string `json:"sdp,omitempty"`
}

// MediaParameters describes a local track being registered with the server.
type MediaParameters struct {
	MID string          `json:"mid,omitempty"`
	RTP json.RawMessage `json:"rtp,omitempty"`
}

// LocalTrack is a locally captured media track. The capture resource is
// owned jointly with the environment: Stop releases it for good, while
// SetEnabled(false) only silences the track and keeps capture running.
type LocalTrack interface {
	ID() string
	Kind() domain.MediaKind
	SetEnabled(enabled bool)
	Enabled() bool
	// Stop ends the track and releases the underlying capture. Idempotent.
	Stop()
	Ended() bool
	// OnEnded registers a callback fired when the track ends, whether by
	// Stop or by the environment revoking the capture.
	OnEnded(fn func())
}

// RemoteTrack is an inbound track materialized by a recv transport.
type RemoteTrack interface {
	ID() string
	Kind() domain.MediaKind
}

// ConnectHandler relays connectivity material to the server. It fires at
// most once per transport, on first use. done must be called exactly once.
type ConnectHandler func(sec SecurityParameters, done func(ack *SecurityAck, err error))

// ProduceHandler registers a local track with the server and resolves
// with the server-assigned source id. done must be called exactly once;
// each invocation carries its own done, so resolutions cannot cross.
type ProduceHandler func(kind domain.MediaKind, params MediaParameters, done func(id domain.SourceID, err error))

// MediaTransport is one negotiated media pipe (send or recv). Produce and
// Consume block until the bridged server round trip resolves.
type MediaTransport interface {
	ID() domain.TransportID
	Direction() TransportDirection
	OnConnect(h ConnectHandler)
	OnProduce(h ProduceHandler)
	Produce(ctx context.Context, track LocalTrack) (domain.SourceID, error)
	Consume(ctx context.Context, desc ConsumerDescriptor) (RemoteTrack, error)
	Close() error
	Closed() bool
}

// Device turns the server capability descriptor into transports.
// CreateSendTransport and CreateRecvTransport require a prior Load.
type Device interface {
	Load(desc CapabilitiesDescriptor) error
	Loaded() bool
	RTPCapabilities() CapabilitiesDescriptor
	CreateSendTransport(params TransportParameters) (MediaTransport, error)
	CreateRecvTransport(params TransportParameters) (MediaTransport, error)
}

// RemoteStreamHandle is the per-participant aggregate of inbound tracks.
type RemoteStreamHandle interface {
	ParticipantID() domain.ParticipantID
	Tracks() []RemoteTrack
	Empty() bool
}
