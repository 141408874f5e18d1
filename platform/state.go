package platform

// State is the lifecycle stage of an election.
type State int

const (
	// StateUninitialized is the state of a new or reset platform.
	StateUninitialized State = iota
	// StateOpen accepts registrations, authorizations and ballots.
	StateOpen
	// StateClosed only allows tallying.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
