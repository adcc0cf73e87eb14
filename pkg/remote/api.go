// Package remote defines the wire-level interface to a debug agent.
//
// Every call is asynchronous: the request is sent immediately and the
// callback runs later, on the session's dispatch loop, with either a reply or
// an error. If the connection drops before the agent answers, every
// outstanding callback fires with a TransportError and then
// NotificationHandler.OnConnectionError reports the failure.
package remote

// API is the set of requests a debug agent answers.
type API interface {
	Pause(req *PauseRequest, cb func(*PauseReply, error))
	Resume(req *ResumeRequest, cb func(*ResumeReply, error))
	Threads(req *ThreadsRequest, cb func(*ThreadsReply, error))
	Backtrace(req *BacktraceRequest, cb func(*BacktraceReply, error))
	Registers(req *RegistersRequest, cb func(*RegistersReply, error))
	Modules(req *ModulesRequest, cb func(*ModulesReply, error))
	ReadMemory(req *ReadMemoryRequest, cb func(*ReadMemoryReply, error))
	WriteMemory(req *WriteMemoryRequest, cb func(*WriteMemoryReply, error))
	AddBreakpoint(req *AddBreakpointRequest, cb func(*AddBreakpointReply, error))
	RemoveBreakpoint(req *RemoveBreakpointRequest, cb func(*RemoveBreakpointReply, error))
}

// NotificationHandler receives unsolicited notifications from the agent.
// Calls are delivered through the Dispatcher, in arrival order, interleaved
// with request callbacks.
type NotificationHandler interface {
	OnNotifyThreadStarting(n *NotifyThreadStarting)
	OnNotifyThreadExiting(n *NotifyThreadExiting)
	OnNotifyException(n *NotifyException)
	OnNotifyModules(n *NotifyModules)
	OnNotifyProcessExiting(n *NotifyProcessExiting)
	// OnConnectionError is called once when the connection fails. All
	// outstanding request callbacks receive a TransportError first.
	OnConnectionError(err error)
}

// Dispatcher serializes callback and notification delivery. All mirror-state
// mutation happens on the dispatch loop, so the mirror objects need no
// internal locking.
type Dispatcher interface {
	Post(f func())
}
