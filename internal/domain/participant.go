// Package domain contains entity without logic, just meta-data
package domain

import (
	"encoding/json"
	"errors"
)

const MaxParticipantNameLen = 36

var (
	ErrNameTooLong = errors.New("participant name too long")
	ErrNameEmpty   = errors.New("participant name empty")
)

type ParticipantID string

// Participant is a remote identity known to the client.
// Info is an opaque application payload relayed by the server.
type Participant struct {
	ID         ParticipantID   `json:"id"`
	Name       string          `json:"name"`
	AudioMuted bool            `json:"audioMuted"`
	VideoMuted bool            `json:"videoMuted"`
	Info       json.RawMessage `json:"info,omitempty"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(id ParticipantID, name string, info json.RawMessage) (*Participant, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxParticipantNameLen {
		return nil, ErrNameTooLong
	}
	return &Participant{ID: id, Name: name, Info: info}, nil
}
