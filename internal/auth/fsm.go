package auth

// State is the sign-in state of the app.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
)

// FSM holds the allowed auth state transitions.
type FSM struct {
	transitions map[State][]State
}

func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateUnauthenticated: {StateAuthenticating, StateAuthenticated},
			StateAuthenticating:  {StateAuthenticated, StateUnauthenticated},
			StateAuthenticated:   {StateUnauthenticated},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
