package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewParticipant(t *testing.T) {
	p, err := NewParticipant("p1", "alice", nil)
	require.NoError(t, err)
	require.Equal(t, ParticipantID("p1"), p.ID)

	_, err = NewParticipant("p1", "", nil)
	require.ErrorIs(t, err, ErrNameEmpty)

	_, err = NewParticipant("p1", strings.Repeat("x", MaxParticipantNameLen+1), nil)
	require.ErrorIs(t, err, ErrNameTooLong)
}

func TestMediaKindValid(t *testing.T) {
	require.True(t, MediaAudio.Valid())
	require.True(t, MediaVideo.Valid())
	require.False(t, MediaKind("data").Valid())
}
