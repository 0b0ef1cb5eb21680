package supervisor

// State is what the supervisor last knew about the validator.
type State int

const (
	// StateIdle means no validator is known to be running
	StateIdle State = iota
	// StateOwnedRunning means this supervisor spawned the running validator
	StateOwnedRunning
	// StateExternallyRunning means the relay reports a validator someone else started
	StateExternallyRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOwnedRunning:
		return "owned"
	case StateExternallyRunning:
		return "external"
	default:
		return "unknown"
	}
}

// state is the internal tagged form. Owning a child and observing an
// external pid exclude each other.
type state interface {
	kind() State
}

type idle struct{}

type owned struct {
	child *child
}

type external struct {
	pid int
}

func (idle) kind() State     { return StateIdle }
func (owned) kind() State    { return StateOwnedRunning }
func (external) kind() State { return StateExternallyRunning }
