package rtc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/confclient/internal/core"
)

// Device builds transports against the capability set the server
// announced at join. Load must succeed before any transport can be
// created; loading with no usable codec fails so a capability mismatch
// surfaces at join, not as a silent media blackout later.
type Device struct {
	iceServers []string

	mu     sync.Mutex
	loaded bool
	caps   core.CapabilitiesDescriptor
	api    *webrtc.API
}

func NewDevice(iceServers []string) *Device {
	return &Device{iceServers: iceServers}
}

func (d *Device) Load(desc core.CapabilitiesDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}
	if len(desc.Codecs) == 0 {
		return fmt.Errorf("load capabilities: no codecs offered")
	}

	engine := &webrtc.MediaEngine{}
	registered := 0
	for _, c := range desc.Codecs {
		params := webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    c.MimeType,
				ClockRate:   c.ClockRate,
				Channels:    c.Channels,
				SDPFmtpLine: c.SDPFmtpLine,
			},
			PayloadType: webrtc.PayloadType(c.PayloadType),
		}
		var typ webrtc.RTPCodecType
		switch {
		case strings.HasPrefix(strings.ToLower(c.MimeType), "audio/"):
			typ = webrtc.RTPCodecTypeAudio
		case strings.HasPrefix(strings.ToLower(c.MimeType), "video/"):
			typ = webrtc.RTPCodecTypeVideo
		default:
			log.Warn().Str("module", "rtc").Str("mime", c.MimeType).Msg("skipping unknown codec type")
			continue
		}
		if err := engine.RegisterCodec(params, typ); err != nil {
			return fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("load capabilities: no compatible codecs")
	}

	d.api = webrtc.NewAPI(webrtc.WithMediaEngine(engine))
	d.caps = desc
	d.loaded = true
	log.Info().Str("module", "rtc").Int("codecs", registered).Msg("device loaded")
	return nil
}

func (d *Device) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *Device) RTPCapabilities() core.CapabilitiesDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

func (d *Device) CreateSendTransport(params core.TransportParameters) (core.MediaTransport, error) {
	return d.createTransport(params, core.DirectionSend)
}

func (d *Device) CreateRecvTransport(params core.TransportParameters) (core.MediaTransport, error) {
	return d.createTransport(params, core.DirectionRecv)
}

func (d *Device) createTransport(params core.TransportParameters, dir core.TransportDirection) (core.MediaTransport, error) {
	d.mu.Lock()
	if !d.loaded {
		d.mu.Unlock()
		return nil, core.ErrNotLoaded
	}
	api := d.api
	d.mu.Unlock()

	urls := params.ICEServers
	if len(urls) == 0 {
		urls = d.iceServers
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return newTransport(pc, params.ID, dir)
}
