package domain

import "fmt"

var allowedTransitions = map[Status][]Status{
	StatusNew:           {StatusPending, StatusCanceled, StatusCancelFailed},
	StatusPending:       {StatusReserved, StatusReserveFailed, StatusExpired, StatusCanceled, StatusCancelFailed},
	StatusReserved:      {StatusReverted, StatusRevertFailed},
	StatusReserveFailed: {StatusPending, StatusCanceled, StatusCancelFailed},
	StatusExpired:       {StatusPending},
	StatusRevertFailed:  {StatusCanceled, StatusCancelFailed},
}

// RestartFrom and ManualCancelFrom are the statuses operators may act on.
var (
	RestartFrom      = []Status{StatusReserveFailed, StatusExpired}
	ManualCancelFrom = []Status{StatusNew, StatusPending, StatusReserveFailed, StatusRevertFailed}
)

func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	return len(allowedTransitions[s]) == 0
}

func (s Status) In(set []Status) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanRestart reports whether operators may restart an attempt in s.
func CanRestart(s Status) bool { return s.In(RestartFrom) }

// CanManualCancel reports whether operators may cancel an attempt in s.
func CanManualCancel(s Status) bool { return s.In(ManualCancelFrom) }

// CancelTargets returns the success and failure statuses of a cancellation from s.
// Reserved attempts are reverted rather than cancelled.
func CancelTargets(s Status) (success, failure Status, ok bool) {
	switch s {
	case StatusReserved:
		return StatusReverted, StatusRevertFailed, true
	case StatusNew, StatusPending, StatusReserveFailed, StatusRevertFailed:
		return StatusCanceled, StatusCancelFailed, true
	default:
		return "", "", false
	}
}
