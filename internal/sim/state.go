package sim

import "fmt"

// State is where a device is in the quiz protocol.
type State int32

const (
	Connecting State = iota
	AwaitingAuth
	AwaitingSessionStart
	AwaitingQuestion
	RespondingSent
	Linger
	Terminated
)

// States lists every state in lifecycle order.
var States = []State{Connecting, AwaitingAuth, AwaitingSessionStart, AwaitingQuestion, RespondingSent, Linger, Terminated}

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case AwaitingAuth:
		return "AwaitingAuth"
	case AwaitingSessionStart:
		return "AwaitingSessionStart"
	case AwaitingQuestion:
		return "AwaitingQuestion"
	case RespondingSent:
		return "RespondingSent"
	case Linger:
		return "Linger"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Outcome is how a device run ended.
type Outcome int

const (
	Completed Outcome = iota
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}
