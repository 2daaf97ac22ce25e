package deviceauth

// State is the position of one Authenticate invocation in the device flow
type State int

// Flow states. Approved and Failed are terminal.
const (
	StateNotStarted State = iota
	StateAwaitingRequest
	StateAwaitingApproval
	StateApproved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateAwaitingRequest:
		return "awaiting_request"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateApproved:
		return "approved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s
func (s State) Terminal() bool {
	return s == StateApproved || s == StateFailed
}
