package domain

import "fmt"

// SessionState is ordered: a session only ever moves to a greater state.
type SessionState int

const (
	StateOpen SessionState = iota
	StateSubmitted
	StateScored
	StateFinalized
)

var stateNames = [...]string{"open", "submitted", "scored", "finalized"}

func (s SessionState) String() string {
	if s < StateOpen || s > StateFinalized {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Valid reports whether s is one of the four lifecycle states.
func (s SessionState) Valid() bool {
	return s >= StateOpen && s <= StateFinalized
}

func (s SessionState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid session state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(text []byte) error {
	parsed, err := ParseSessionState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSessionState converts a stored state name back into a SessionState.
func ParseSessionState(name string) (SessionState, error) {
	for i, n := range stateNames {
		if n == name {
			return SessionState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown session state %q", name)
}

// TrustVerdict is the anti-cheat classification of a submission trace.
// The zero value means no verdict has been computed yet.
type TrustVerdict string

const (
	VerdictTrusted    TrustVerdict = "trusted"
	VerdictSuspicious TrustVerdict = "suspicious"
	VerdictRejected   TrustVerdict = "rejected"
)
