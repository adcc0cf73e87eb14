package client

// NoCurrentAddressError is returned by Step when the thread has no known
// frames to step from.
type NoCurrentAddressError struct{}

func (NoCurrentAddressError) Error() string {
	return "no current address to step from"
}

// FrameGoneError is returned by Finish when the requested frame no longer
// exists by the time the full stack is available.
type FrameGoneError struct{}

func (FrameGoneError) Error() string {
	return "frame was destroyed before finish could run"
}

// ProcessExistsError is returned when creating a process on a target that
// already has one.
type ProcessExistsError struct{}

func (ProcessExistsError) Error() string {
	return "target already has a running process"
}
