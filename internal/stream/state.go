package stream

// State is the lifecycle state of one stream connection.
type State string

// Connection states
const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateError      State = "error"
	StateClosed     State = "closed"
)

// Event drives State transitions.
type Event string

// Connection events
const (
	EventDial   Event = "dial"
	EventOpened Event = "opened"
	EventFailed Event = "failed"
	EventClosed Event = "closed"
)

// Transition returns the state reached from s on e. Events that make no
// sense in the current state leave it unchanged.
func Transition(s State, e Event) State {
	switch e {
	case EventDial:
		return StateConnecting
	case EventClosed:
		return StateClosed
	case EventOpened:
		if s == StateConnecting {
			return StateOpen
		}
	case EventFailed:
		if s == StateConnecting || s == StateOpen {
			return StateError
		}
	}
	return s
}

// ReadyState is the connection state reported by the transport when an
// error occurs. Values match the EventSource readyState constants.
type ReadyState int

// Transport ready states
const (
	ReadyStateConnecting ReadyState = 0
	ReadyStateOpen       ReadyState = 1
	ReadyStateClosed     ReadyState = 2
)

func (r ReadyState) String() string {
	switch r {
	case ReadyStateConnecting:
		return "connecting"
	case ReadyStateOpen:
		return "open"
	case ReadyStateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Indicator is the single status line shown beside the log viewer.
type Indicator string

// Status indicators. IndicatorNone means no error is displayed.
const (
	IndicatorNone         Indicator = ""
	IndicatorClosed       Indicator = "closed"
	IndicatorReconnecting Indicator = "reconnecting"
	IndicatorUnknown      Indicator = "unknown"
)

// Classify maps the ready state reported with an error to an indicator.
func Classify(rs ReadyState) Indicator {
	switch rs {
	case ReadyStateClosed:
		return IndicatorClosed
	case ReadyStateConnecting:
		return IndicatorReconnecting
	default:
		return IndicatorUnknown
	}
}

// Message returns the human-readable text for the indicator.
func (i Indicator) Message() string {
	switch i {
	case IndicatorClosed:
		return "connection closed"
	case IndicatorReconnecting:
		return "trying to reconnect..."
	case IndicatorUnknown:
		return "an unknown error occurred"
	default:
		return ""
	}
}
