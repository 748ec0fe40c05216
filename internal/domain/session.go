package domain

type ConferenceID string

// SessionState is the lifecycle of a single conference membership.
// Transitions: Idle -> Joining -> Active -> Leaving -> Left,
// with Joining falling back to Idle on a failed join.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateJoining
	StateActive
	StateLeaving
	StateLeft
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateLeft:
		return "left"
	default:
		return "unknown"
	}
}
