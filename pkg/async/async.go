// Package async defines the identifiers, statuses and error sentinels of
// asynchronous request resolution, shared by the local dispatcher and the
// remote proxy layer.
package async

import "fmt"

// ID identifies an async operation, unique within the context of its
// (local or remote) service.
type ID uint64

// NoID is the unset id.
const NoID ID = ^ID(0)

// Status is the lifecycle status of a node in an async resolution tree.
type Status int

const (
	// StatusCreated: the task was created.
	StatusCreated Status = iota
	// StatusSubsRunning: subtasks running, main task waiting for them.
	StatusSubsRunning
	// StatusSelfRunning: subtasks finished, main task running.
	StatusSelfRunning
	// StatusCancelled: cancellation completed.
	StatusCancelled
	// StatusAwaitingResult: calculation completed, result still to be
	// stored in the context (transient internal status).
	StatusAwaitingResult
	// StatusFinished: finished successfully.
	StatusFinished
	// StatusError: ended due to error.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusSubsRunning:
		return "SUBS_RUNNING"
	case StatusSelfRunning:
		return "SELF_RUNNING"
	case StatusCancelled:
		return "CANCELLED"
	case StatusAwaitingResult:
		return "AWAITING_RESULT"
	case StatusFinished:
		return "FINISHED"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Final reports whether the status cannot change anymore.
func (s Status) Final() bool {
	switch s {
	case StatusCancelled, StatusFinished, StatusError:
		return true
	default:
		return false
	}
}

// CancelledError is the first-class cancellation sentinel. It propagates
// through awaits and converts a node's terminal status to CANCELLED.
type CancelledError struct {
	Msg string
}

func (e *CancelledError) Error() string {
	if e.Msg == "" {
		return "async operation cancelled"
	}
	return "async operation cancelled: " + e.Msg
}

// Error carries the failure message of an async resolution node.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return "async error: " + e.Msg
}
