package signing

// Status tracks one message's progress through the pipeline. Statuses live
// in a pipeline-local slice parallel to the immutable input payload.
type Status int

const (
	StatusNotSent Status = iota
	StatusSent
	StatusConfirmed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "not-sent"
	}
}

// State is the pipeline's lifecycle position. Failed is reachable from
// every non-terminal state.
type State int

const (
	StatePending State = iota
	StateEstimating
	StateConfirming
	StateSigning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEstimating:
		return "estimating"
	case StateConfirming:
		return "confirming"
	case StateSigning:
		return "signing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}
