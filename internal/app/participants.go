package app

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/dkeye/confclient/internal/domain"
	"github.com/rs/zerolog/log"
)

type dirEntry struct {
	p domain.Participant
	// discovered marks a record synthesized from a media-source
	// notification that arrived before the proper join notification.
	discovered bool
}

// Directory is the local cache of known remote participants. It is a
// pure reconciliation cache: no network calls, and all reads go through
// copying accessors so callers never hold a live reference.
type Directory struct {
	mu   sync.RWMutex
	byID map[domain.ParticipantID]*dirEntry
}

func NewDirectory() *Directory {
	return &Directory{byID: make(map[domain.ParticipantID]*dirEntry)}
}

// Upsert records an explicitly announced participant. It is idempotent:
// a record synthesized earlier by Discover is completed, never
// duplicated. announce reports whether this id should be surfaced to
// the application as a newly joined participant.
func (d *Directory) Upsert(id domain.ParticipantID, name string, info json.RawMessage) (domain.Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.byID[id]; ok {
		announce := e.discovered
		e.discovered = false
		if name != "" {
			e.p.Name = name
		}
		if info != nil {
			e.p.Info = info
		}
		return e.p, announce
	}
	e := &dirEntry{p: domain.Participant{ID: id, Name: name, Info: info}}
	d.byID[id] = e
	log.Info().Str("module", "app.participants").Str("participant", string(id)).Msg("participant added")
	return e.p, true
}

// Discover records a participant known only from a media-source
// notification. A later Upsert reconciles the record in place.
func (d *Directory) Discover(id domain.ParticipantID, name string) domain.Participant {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.byID[id]; ok {
		if e.p.Name == "" && name != "" {
			e.p.Name = name
		}
		return e.p
	}
	e := &dirEntry{p: domain.Participant{ID: id, Name: name}, discovered: true}
	d.byID[id] = e
	log.Info().Str("module", "app.participants").Str("participant", string(id)).Msg("participant discovered from media source")
	return e.p
}

func (d *Directory) Remove(id domain.ParticipantID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[id]; !ok {
		return false
	}
	delete(d.byID, id)
	log.Info().Str("module", "app.participants").Str("participant", string(id)).Msg("participant removed")
	return true
}

func (d *Directory) Get(id domain.ParticipantID) (domain.Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if e, ok := d.byID[id]; ok {
		return e.p, true
	}
	return domain.Participant{}, false
}

func (d *Directory) Snapshot() []domain.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Participant, 0, len(d.byID))
	for _, e := range d.byID {
		out = append(out, e.p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) SetAudioMuted(id domain.ParticipantID, muted bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.byID[id]
	if !ok {
		return false
	}
	e.p.AudioMuted = muted
	return true
}

func (d *Directory) SetVideoMuted(id domain.ParticipantID, muted bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.byID[id]
	if !ok {
		return false
	}
	e.p.VideoMuted = muted
	return true
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID = make(map[domain.ParticipantID]*dirEntry)
}
