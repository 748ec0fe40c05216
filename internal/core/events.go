package core

import "github.com/dkeye/confclient/internal/domain"

// Event is the closed set of outward notifications. Application code
// switches over the concrete types; no stringly-typed names leak out.
type Event interface {
	isEvent()
}

type Joined struct {
	ConferenceID  domain.ConferenceID
	ParticipantID domain.ParticipantID
}

type Left struct{}

type Error struct {
	Message string
}

type ParticipantJoined struct {
	ParticipantID   domain.ParticipantID
	ParticipantName string
}

type ParticipantLeft struct {
	ParticipantID domain.ParticipantID
}

type RemoteStreamAdded struct {
	ParticipantID   domain.ParticipantID
	ParticipantName string
	SourceID        domain.SourceID
	Kind            domain.MediaKind
	Stream          RemoteStreamHandle
}

type RemoteStreamRemoved struct {
	ParticipantID domain.ParticipantID
	SourceID      domain.SourceID
	Kind          domain.MediaKind
}

type LocalStreamReady struct {
	Role   domain.StreamRole
	Tracks []LocalTrack
}

type LocalStreamRemoved struct {
	SourceID domain.SourceID
	Kind     domain.MediaKind
}

type LocalAudioToggled struct {
	Enabled bool
}

type LocalVideoToggled struct {
	Enabled bool
}

type RemoteAudioToggled struct {
	ParticipantID domain.ParticipantID
	Enabled       bool
}

type RemoteVideoToggled struct {
	ParticipantID domain.ParticipantID
	Enabled       bool
}

func (Joined) isEvent()              {}
func (Left) isEvent()                {}
func (Error) isEvent()               {}
func (ParticipantJoined) isEvent()   {}
func (ParticipantLeft) isEvent()     {}
func (RemoteStreamAdded) isEvent()   {}
func (RemoteStreamRemoved) isEvent() {}
func (LocalStreamReady) isEvent()    {}
func (LocalStreamRemoved) isEvent()  {}
func (LocalAudioToggled) isEvent()   {}
func (LocalVideoToggled) isEvent()   {}
func (RemoteAudioToggled) isEvent()  {}
func (RemoteVideoToggled) isEvent()  {}
