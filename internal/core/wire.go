package core

import (
	"encoding/json"

	"github.com/dkeye/confclient/internal/domain"
)

// RPC methods accepted by the signaling peer.
const (
	MethodJoinConference     = "joinConference"
	MethodCreateTransport    = "createTransport"
	MethodConnectTransport   = "connectTransport"
	MethodProduce            = "produce"
	MethodConsumeMedia       = "consumeMedia"
	MethodConsumeParticipant = "consumeParticipantMedia"
	MethodGetParticipants    = "getParticipants"
	MethodGetExistingSources = "getExistingMediaSources"
	MethodMuteAudio          = "muteAudio"
	MethodUnmuteAudio        = "unmuteAudio"
	MethodMuteVideo          = "muteVideo"
	MethodUnmuteVideo        = "unmuteVideo"
	MethodCloseProducer      = "closeProducer"
	MethodUnpauseConsumer    = "unpauseConsumer"
	MethodLeaveConference    = "leaveConference"
)

// Push events emitted by the signaling peer.
const (
	EventParticipantJoined = "participantJoined"
	EventParticipantLeft   = "participantLeft"
	EventNewMediaSource    = "newMediaSource"
	EventMediaSourceClosed = "mediaSourceClosed"
	EventAudioMuted        = "audioMuted"
	EventAudioUnmuted      = "audioUnmuted"
	EventVideoMuted        = "videoMuted"
	EventVideoUnmuted      = "videoUnmuted"
	EventDisconnect        = "disconnect"
)

type JoinRequest struct {
	ConferenceID    domain.ConferenceID  `json:"conferenceId"`
	ParticipantID   domain.ParticipantID `json:"participantId"`
	ParticipantName string               `json:"participantName"`
	Info            json.RawMessage      `json:"info,omitempty"`
}

type JoinResponse struct {
	Capabilities CapabilitiesDescriptor `json:"capabilities"`
}

type CreateTransportRequest struct {
	Direction TransportDirection `json:"direction"`
}

type ConnectTransportRequest struct {
	TransportID domain.TransportID `json:"transportId"`
	Direction   TransportDirection `json:"direction"`
	Security    SecurityParameters `json:"security"`
}

type ProduceRequest struct {
	TransportID domain.TransportID `json:"transportId"`
	Kind        domain.MediaKind   `json:"kind"`
	Media       MediaParameters    `json:"media"`
}

type ProduceResponse struct {
	SourceID domain.SourceID `json:"sourceId"`
}

type ConsumeMediaRequest struct {
	SourceID     domain.SourceID        `json:"sourceId"`
	Capabilities CapabilitiesDescriptor `json:"capabilities"`
}

// ConsumerDescriptor is what the server answers a consume request with.
type ConsumerDescriptor struct {
	ConsumerID      domain.ConsumerID    `json:"consumerId"`
	SourceID        domain.SourceID      `json:"sourceId"`
	ParticipantID   domain.ParticipantID `json:"participantId"`
	ParticipantName string               `json:"participantName"`
	Kind            domain.MediaKind     `json:"kind"`
	RTP             json.RawMessage      `json:"rtp,omitempty"`
}

type ConsumeParticipantRequest struct {
	ParticipantID domain.ParticipantID   `json:"participantId"`
	Capabilities  CapabilitiesDescriptor `json:"capabilities"`
}

type ConsumeParticipantResponse struct {
	Consumers []ConsumerDescriptor `json:"consumers"`
}

type ParticipantInfo struct {
	ID   domain.ParticipantID `json:"participantId"`
	Name string               `json:"participantName"`
	Info json.RawMessage      `json:"info,omitempty"`
}

type GetParticipantsResponse struct {
	Participants []ParticipantInfo `json:"participants"`
}

// MediaSourceInfo announces a remote source, both in catch-up responses
// and in newMediaSource pushes.
type MediaSourceInfo struct {
	SourceID        domain.SourceID      `json:"sourceId"`
	ParticipantID   domain.ParticipantID `json:"participantId"`
	ParticipantName string               `json:"participantName"`
	Kind            domain.MediaKind     `json:"kind"`
}

type GetExistingSourcesResponse struct {
	Sources []MediaSourceInfo `json:"sources"`
}

type CloseProducerRequest struct {
	SourceID domain.SourceID `json:"sourceId"`
}

type UnpauseConsumerRequest struct {
	ConsumerID domain.ConsumerID `json:"consumerId"`
}

type ParticipantJoinedPush struct {
	ParticipantID   domain.ParticipantID `json:"participantId"`
	ParticipantName string               `json:"participantName"`
	Info            json.RawMessage      `json:"info,omitempty"`
}

type ParticipantLeftPush struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
}

type MediaSourceClosedPush struct {
	SourceID      domain.SourceID      `json:"sourceId"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Kind          domain.MediaKind     `json:"kind"`
}

type MutePush struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
}
