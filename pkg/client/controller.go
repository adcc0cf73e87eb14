package client

import "github.com/quarry-dbg/quarry/pkg/remote"

// StopOp is a controller's verdict on a stop notification.
type StopOp int

const (
	// StopContinue means the stop does not complete the controller's
	// operation; the thread resumes without reporting to observers.
	StopContinue StopOp = iota
	// StopDone means the operation completed; the controller is popped and
	// the stop is reported.
	StopDone
)

// ThreadController is one in-flight stepping operation on a thread. The
// controller on top of the thread's controller stack sees every stop
// notification first and decides whether the user observes it.
type ThreadController interface {
	Name() string
	OnThreadStop(etype remote.ExceptionType, hitBreakpoints []uint32) StopOp
}
