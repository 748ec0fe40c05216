package domain

// SourceID is the server-assigned id of a produced media source.
// Consumers mirror remote sources and are matched by SourceID on close.
type SourceID string

// ConsumerID is the server-assigned id of an inbound consumer.
type ConsumerID string

// TransportID is the server-assigned id of a media transport.
type TransportID string

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

// StreamRole describes what a locally produced source captures.
type StreamRole string

const (
	RoleMicrophone  StreamRole = "microphone"
	RoleCamera      StreamRole = "camera"
	RoleScreenshare StreamRole = "screenshare"
)
