package remote

import "fmt"

// TransportError is returned when a request could not be sent or the
// connection failed before the reply arrived.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error in %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is returned when the agent answered a request with a nonzero
// status code.
type StatusError struct {
	Op     string
	Status uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with remote status %d", e.Op, e.Status)
}
