package models

import (
	"github.com/qmuntal/stateless"
)

// ExecutionStatus is the lifecycle state of an execution. Node log rows use the same enum.
type ExecutionStatus string

const (
	ExecutionStatusQueued    ExecutionStatus = "QUEUED"    // Accepted, not yet scheduled
	ExecutionStatusPending   ExecutionStatus = "PENDING"   // Picked up, about to run
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"   // Visiting nodes
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED" // Every node succeeded
	ExecutionStatusFailed    ExecutionStatus = "FAILED"    // A node or the graph failed
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED" // Stopped on request
)

// ExecutionStatuses lists every status in lifecycle order.
var ExecutionStatuses = []ExecutionStatus{
	ExecutionStatusQueued,
	ExecutionStatusPending,
	ExecutionStatusRunning,
	ExecutionStatusCompleted,
	ExecutionStatusFailed,
	ExecutionStatusCancelled,
}

// IsValid reports whether s is a known status.
func (s ExecutionStatus) IsValid() bool {
	for _, status := range ExecutionStatuses {
		if s == status {
			return true
		}
	}

	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// IsCancellable reports whether a cancel request may be applied in s.
func (s ExecutionStatus) IsCancellable() bool {
	return s.CanTransition(ExecutionStatusCancelled)
}

// Transition validates the move from s to next and returns the resulting status.
// Moves out of a terminal state, and any move not in the table below, fail with a
// *TransitionError matching ErrInvalidTransition.
//
//	QUEUED  -> PENDING
//	PENDING -> RUNNING | CANCELLED
//	RUNNING -> COMPLETED | FAILED | CANCELLED
func (s ExecutionStatus) Transition(next ExecutionStatus) (ExecutionStatus, error) {
	machine := newStatusMachine(s)

	ok, err := machine.CanFire(next)
	if err != nil || !ok {
		return s, &TransitionError{From: s, To: next}
	}

	err = machine.Fire(next)
	if err != nil {
		return s, &TransitionError{From: s, To: next}
	}

	state, ok := machine.MustState().(ExecutionStatus)
	if !ok {
		return s, &TransitionError{From: s, To: next}
	}

	return state, nil
}

// CanTransition reports whether s may move to next.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	_, err := s.Transition(next)

	return err == nil
}

// newStatusMachine builds a machine positioned at from. Triggers are the target
// statuses themselves, so firing "COMPLETED" moves the machine to COMPLETED.
func newStatusMachine(from ExecutionStatus) *stateless.StateMachine {
	machine := stateless.NewStateMachine(from)

	machine.Configure(ExecutionStatusQueued).
		Permit(ExecutionStatusPending, ExecutionStatusPending)

	machine.Configure(ExecutionStatusPending).
		Permit(ExecutionStatusRunning, ExecutionStatusRunning).
		Permit(ExecutionStatusCancelled, ExecutionStatusCancelled)

	machine.Configure(ExecutionStatusRunning).
		Permit(ExecutionStatusCompleted, ExecutionStatusCompleted).
		Permit(ExecutionStatusFailed, ExecutionStatusFailed).
		Permit(ExecutionStatusCancelled, ExecutionStatusCancelled)

	machine.Configure(ExecutionStatusCompleted)
	machine.Configure(ExecutionStatusFailed)
	machine.Configure(ExecutionStatusCancelled)

	return machine
}
