package remote

import "fmt"

// ThreadState is the run state of a thread as reported by the debug agent.
type ThreadState int

const (
	ThreadStateNew ThreadState = iota
	ThreadStateRunning
	ThreadStateSuspended
	ThreadStateBlocked
	ThreadStateDying
	ThreadStateDead
)

func (s ThreadState) String() string {
	switch s {
	case ThreadStateNew:
		return "New"
	case ThreadStateRunning:
		return "Running"
	case ThreadStateSuspended:
		return "Suspended"
	case ThreadStateBlocked:
		return "Blocked"
	case ThreadStateDying:
		return "Dying"
	case ThreadStateDead:
		return "Dead"
	}
	return fmt.Sprintf("ThreadState(%d)", int(s))
}

// Stopped returns true if a thread in this state is not executing and its
// frames can be inspected.
func (s ThreadState) Stopped() bool {
	return s == ThreadStateSuspended || s == ThreadStateBlocked
}

// BlockedReason qualifies ThreadStateBlocked.
type BlockedReason int

const (
	BlockedReasonNotBlocked BlockedReason = iota
	BlockedReasonException
	BlockedReasonSleeping
	BlockedReasonFutex
	BlockedReasonPort
	BlockedReasonChannel
	BlockedReasonWaitOne
	BlockedReasonWaitMany
)

func (r BlockedReason) String() string {
	switch r {
	case BlockedReasonNotBlocked:
		return "NotBlocked"
	case BlockedReasonException:
		return "Exception"
	case BlockedReasonSleeping:
		return "Sleeping"
	case BlockedReasonFutex:
		return "Futex"
	case BlockedReasonPort:
		return "Port"
	case BlockedReasonChannel:
		return "Channel"
	case BlockedReasonWaitOne:
		return "WaitOne"
	case BlockedReasonWaitMany:
		return "WaitMany"
	}
	return fmt.Sprintf("BlockedReason(%d)", int(r))
}

// ExceptionType classifies the exception carried by a stop notification.
type ExceptionType int

const (
	ExceptionNone ExceptionType = iota
	ExceptionGeneral
	ExceptionHardwareBreakpoint
	ExceptionSoftwareBreakpoint
	ExceptionSingleStep
	ExceptionSynthetic
)

func (e ExceptionType) String() string {
	switch e {
	case ExceptionNone:
		return "None"
	case ExceptionGeneral:
		return "General"
	case ExceptionHardwareBreakpoint:
		return "HardwareBreakpoint"
	case ExceptionSoftwareBreakpoint:
		return "SoftwareBreakpoint"
	case ExceptionSingleStep:
		return "SingleStep"
	case ExceptionSynthetic:
		return "Synthetic"
	}
	return fmt.Sprintf("ExceptionType(%d)", int(e))
}

// ResumeMode selects how the agent resumes a thread.
type ResumeMode int

const (
	// ResumeModeContinue resumes normal execution.
	ResumeModeContinue ResumeMode = iota
	// ResumeModeStepInstruction executes a single machine instruction and
	// stops again.
	ResumeModeStepInstruction
	// ResumeModeStepInRange single-steps while the instruction pointer stays
	// inside [RangeBegin, RangeEnd) and reports a stop as soon as it leaves
	// the range.
	ResumeModeStepInRange
)

func (m ResumeMode) String() string {
	switch m {
	case ResumeModeContinue:
		return "Continue"
	case ResumeModeStepInstruction:
		return "StepInstruction"
	case ResumeModeStepInRange:
		return "StepInRange"
	}
	return fmt.Sprintf("ResumeMode(%d)", int(m))
}

// RegisterCategory selects a class of registers to fetch.
type RegisterCategory int

const (
	RegisterCategoryGeneral RegisterCategory = iota
	RegisterCategoryFloatingPoint
	RegisterCategoryVector
	RegisterCategoryDebug
)

// ThreadRecord is the agent's description of one thread.
type ThreadRecord struct {
	ProcessKoid   uint64        `json:"process_koid"`
	Koid          uint64        `json:"koid"`
	Name          string        `json:"name"`
	State         ThreadState   `json:"state"`
	BlockedReason BlockedReason `json:"blocked_reason,omitempty"`
}

// FrameRecord is one raw stack frame. The (IP, SP) pair identifies a frame
// across independently fetched backtraces.
type FrameRecord struct {
	IP uint64 `json:"ip"`
	SP uint64 `json:"sp"`
}

// Module describes one loaded module (executable or shared library).
type Module struct {
	Name    string `json:"name"`
	Base    uint64 `json:"base"`
	BuildID string `json:"build_id,omitempty"`
}

// MemoryBlock is one contiguous region returned by ReadMemory. Valid is
// false for address ranges the agent could not read; Data is empty then.
type MemoryBlock struct {
	Address uint64 `json:"address"`
	Valid   bool   `json:"valid"`
	Size    uint32 `json:"size"`
	Data    []byte `json:"data,omitempty"`
}

// RegisterValue is one named register and its raw bytes.
type RegisterValue struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// BreakpointSettings describes a breakpoint installed in the agent.
//
// SP, when nonzero, constrains the breakpoint to only trigger when the
// thread's stack pointer matches. This disambiguates recursive calls that
// revisit the same address at a different depth.
type BreakpointSettings struct {
	ID          uint32 `json:"id"`
	OneShot     bool   `json:"one_shot"`
	Address     uint64 `json:"address"`
	ProcessKoid uint64 `json:"process_koid"`
	ThreadKoid  uint64 `json:"thread_koid,omitempty"` // 0 scopes to the whole process
	SP          uint64 `json:"sp,omitempty"`          // 0 means unconstrained
}

// Request/reply pairs. Every request is answered by exactly one reply on the
// same connection, in order.

type PauseRequest struct {
	ProcessKoid uint64 `json:"process_koid"`
	ThreadKoid  uint64 `json:"thread_koid,omitempty"`
}

type PauseReply struct{}

type ResumeRequest struct {
	ProcessKoid uint64     `json:"process_koid"`
	ThreadKoids []uint64   `json:"thread_koids,omitempty"` // empty resumes all threads
	Mode        ResumeMode `json:"mode"`
	RangeBegin  uint64     `json:"range_begin,omitempty"`
	RangeEnd    uint64     `json:"range_end,omitempty"`
}

type ResumeReply struct{}

type ThreadsRequest struct {
	ProcessKoid uint64 `json:"process_koid"`
}

type ThreadsReply struct {
	Threads []ThreadRecord `json:"threads"`
}

type BacktraceRequest struct {
	ProcessKoid uint64 `json:"process_koid"`
	ThreadKoid  uint64 `json:"thread_koid"`
	Depth       int    `json:"depth,omitempty"` // 0 means unlimited
}

type BacktraceReply struct {
	Frames []FrameRecord `json:"frames"`
}

type RegistersRequest struct {
	ProcessKoid uint64             `json:"process_koid"`
	ThreadKoid  uint64             `json:"thread_koid"`
	Categories  []RegisterCategory `json:"categories"`
}

type RegistersReply struct {
	Registers []RegisterValue `json:"registers"`
}

type ModulesRequest struct {
	ProcessKoid uint64 `json:"process_koid"`
}

type ModulesReply struct {
	Modules []Module `json:"modules"`
}

type ReadMemoryRequest struct {
	ProcessKoid uint64 `json:"process_koid"`
	Address     uint64 `json:"address"`
	Size        uint32 `json:"size"`
}

type ReadMemoryReply struct {
	Blocks []MemoryBlock `json:"blocks"`
}

type WriteMemoryRequest struct {
	ProcessKoid uint64 `json:"process_koid"`
	Address     uint64 `json:"address"`
	Data        []byte `json:"data"`
}

type WriteMemoryReply struct {
	Status uint32 `json:"status"`
}

type AddBreakpointRequest struct {
	Breakpoint BreakpointSettings `json:"breakpoint"`
}

type AddBreakpointReply struct {
	Status uint32 `json:"status"`
}

type RemoveBreakpointRequest struct {
	BreakpointID uint32 `json:"breakpoint_id"`
}

type RemoveBreakpointReply struct{}

// Unsolicited notifications sent by the agent.

type NotifyThreadStarting struct {
	Record ThreadRecord `json:"record"`
}

type NotifyThreadExiting struct {
	Record ThreadRecord `json:"record"`
}

type NotifyException struct {
	Type           ExceptionType `json:"type"`
	Thread         ThreadRecord  `json:"thread"`
	TopFrame       FrameRecord   `json:"top_frame"`
	HitBreakpoints []uint32      `json:"hit_breakpoints,omitempty"`
}

type NotifyModules struct {
	ProcessKoid uint64   `json:"process_koid"`
	Modules     []Module `json:"modules"`
}

type NotifyProcessExiting struct {
	ProcessKoid uint64 `json:"process_koid"`
	ReturnCode  int64  `json:"return_code"`
}
