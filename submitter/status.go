package submitter

// Status is the lifecycle state of a user operation.
type Status int

const (
	StatusBuilt Status = iota
	StatusSigned
	StatusSubmitted
	StatusIncluded
	StatusReverted
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusBuilt:
		return "built"
	case StatusSigned:
		return "signed"
	case StatusSubmitted:
		return "submitted"
	case StatusIncluded:
		return "included"
	case StatusReverted:
		return "reverted"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusIncluded || s == StatusReverted || s == StatusTimedOut
}

// CanTransition reports whether s may move to next. Statuses only move forward;
// a timed-out operation is never resubmitted automatically.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusBuilt:
		return next == StatusSigned
	case StatusSigned:
		return next == StatusSubmitted
	case StatusSubmitted:
		return next == StatusIncluded || next == StatusReverted || next == StatusTimedOut
	default:
		return false
	}
}
