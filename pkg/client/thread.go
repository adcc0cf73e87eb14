package client

import (
	"github.com/quarry-dbg/quarry/pkg/remote"
	"github.com/sirupsen/logrus"
)

// Thread mirrors one thread of the attached process: run-state metadata, the
// call stack, a register snapshot and the stack of active stepping
// controllers.
//
// Local state never changes optimistically. Pause and Continue only send the
// request; the mirror updates when the agent's notification confirms the new
// state.
type Thread struct {
	process *Process
	session *Session

	koid          uint64
	name          string
	state         remote.ThreadState
	blockedReason remote.BlockedReason

	stack stack

	// registers is the last fetched snapshot; nil when it has been
	// invalidated by the thread running.
	registers []remote.RegisterValue

	// controllers is the stack of active stepping operations, most recently
	// added on top. The top controller filters every stop notification.
	controllers []ThreadController

	live *liveness
	log  *logrus.Entry
}

func newThread(p *Process, record remote.ThreadRecord) *Thread {
	return &Thread{
		process:       p,
		session:       p.session,
		koid:          record.Koid,
		name:          record.Name,
		state:         record.State,
		blockedReason: record.BlockedReason,
		live:          newLiveness(),
		log:           p.log.WithField("thread", record.Koid),
	}
}

// Koid returns the thread koid.
func (t *Thread) Koid() uint64 { return t.koid }

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// State returns the last reported run state.
func (t *Thread) State() remote.ThreadState { return t.state }

// BlockedReason qualifies a Blocked state.
func (t *Thread) BlockedReason() remote.BlockedReason { return t.blockedReason }

// Process returns the owning process mirror.
func (t *Thread) Process() *Process { return t.process }

// Frames returns the mirrored stack, innermost frame first. The slice may be
// partial; see HasAllFrames.
func (t *Thread) Frames() []*Frame {
	return t.stack.frames
}

// HasAllFrames reports whether the current stack is known to be the complete
// backtrace rather than just the top frame from a stop notification.
func (t *Thread) HasAllFrames() bool {
	return t.stack.hasAllFrames
}

// TopFrame returns the innermost frame, or nil.
func (t *Thread) TopFrame() *Frame {
	return t.stack.top()
}

// CachedRegisters returns the last fetched register snapshot, or nil if it
// was invalidated by the thread running.
func (t *Thread) CachedRegisters() []remote.RegisterValue {
	return t.registers
}

// Pause asks the agent to suspend the thread. The mirror's state changes
// only when the resulting notification arrives.
func (t *Thread) Pause() {
	t.session.api.Pause(&remote.PauseRequest{ProcessKoid: t.process.koid, ThreadKoid: t.koid}, func(_ *remote.PauseReply, err error) {
		if err != nil {
			t.log.Errorf("pause failed: %v", err)
		}
	})
}

// Continue resumes normal execution.
func (t *Thread) Continue() {
	t.resume(remote.ResumeModeContinue, 0, 0)
}

// StepInstruction executes one machine instruction.
func (t *Thread) StepInstruction() {
	t.resume(remote.ResumeModeStepInstruction, 0, 0)
}

// Step steps over one source line. When the top frame's address has no line
// table (unsymbolized code) it degrades to a single-instruction step;
// otherwise the agent single-steps while execution stays inside the line's
// address range, saving a round trip per instruction.
func (t *Thread) Step() error {
	top := t.stack.top()
	if top == nil {
		return NoCurrentAddressError{}
	}
	details := t.session.sym.LineDetailsForAddress(top.ip)
	if len(details) == 0 {
		t.log.Debugf("no line details for 0x%x, stepping by instruction", top.ip)
		t.StepInstruction()
		return nil
	}
	begin := details[0].Range.From
	end := details[len(details)-1].Range.To
	t.resume(remote.ResumeModeStepInRange, begin, end)
	return nil
}

func (t *Thread) resume(mode remote.ResumeMode, begin, end uint64) {
	req := &remote.ResumeRequest{
		ProcessKoid: t.process.koid,
		ThreadKoids: []uint64{t.koid},
		Mode:        mode,
		RangeBegin:  begin,
		RangeEnd:    end,
	}
	t.session.api.Resume(req, func(_ *remote.ResumeReply, err error) {
		if err != nil {
			t.log.Errorf("resume (%s) failed: %v", mode, err)
		}
	})
}

// GetRegisters fetches the requested register categories. Every call is a
// fresh round trip; the reply also refreshes the cached snapshot when the
// thread is still stopped.
func (t *Thread) GetRegisters(categories []remote.RegisterCategory, cb func([]remote.RegisterValue, error)) {
	live := t.live
	req := &remote.RegistersRequest{ProcessKoid: t.process.koid, ThreadKoid: t.koid, Categories: categories}
	t.session.api.Registers(req, func(reply *remote.RegistersReply, err error) {
		if !live.alive() {
			return
		}
		if err != nil {
			cb(nil, err)
			return
		}
		if t.state.Stopped() {
			t.registers = reply.Registers
		}
		cb(reply.Registers, nil)
	})
}

// SyncFrames fetches the complete backtrace and replaces the stack with it,
// preserving frame identity for unchanged frames. If the thread resumed
// while the fetch was in flight the stale reply is dropped.
func (t *Thread) SyncFrames(cb func(error)) {
	live := t.live
	req := &remote.BacktraceRequest{ProcessKoid: t.process.koid, ThreadKoid: t.koid, Depth: t.session.maxBacktraceDepth}
	t.session.api.Backtrace(req, func(reply *remote.BacktraceReply, err error) {
		if !live.alive() {
			return
		}
		if err != nil {
			if cb != nil {
				cb(err)
			}
			return
		}
		if t.state.Stopped() {
			t.stack.setFrames(t, reply.Frames, true)
		}
		if cb != nil {
			cb(nil)
		}
	})
}

// SetMetadata overwrites the thread's mutable metadata from an authoritative
// record. A transition into the running state clears the stack and register
// cache and fires frames-invalidated; any other refresh leaves the stack
// alone, so a thread-list poll cannot destroy independently fetched frames.
func (t *Thread) SetMetadata(record remote.ThreadRecord) {
	startedRunning := record.State == remote.ThreadStateRunning && t.state != remote.ThreadStateRunning

	t.name = record.Name
	t.state = record.State
	t.blockedReason = record.BlockedReason

	if startedRunning {
		t.registers = nil
		t.clearFrames()
	}
}

// SetMetadataFromException applies the metadata from a stop notification and
// replaces the stack with the single frame the exception reported. The full
// backtrace is only known after a SyncFrames round trip.
func (t *Thread) SetMetadataFromException(n *remote.NotifyException) {
	t.SetMetadata(n.Thread)
	if !t.state.Stopped() {
		// The agent must report a stopped state with an exception; tolerate
		// a misbehaving agent rather than crash the mirror.
		t.log.Errorf("exception notification with non-stopped state %s", t.state)
		return
	}
	t.stack.setFrames(t, []remote.FrameRecord{n.TopFrame}, false)
}

// onException is the stop-notification entry point. The top stepping
// controller filters the stop: it either swallows it (the thread resumes
// transparently, e.g. run-until passing an unrelated address) or completes,
// in which case the stop is reported to observers.
func (t *Thread) onException(n *remote.NotifyException) {
	t.SetMetadataFromException(n)

	if len(t.controllers) > 0 {
		top := t.controllers[len(t.controllers)-1]
		switch top.OnThreadStop(n.Type, n.HitBreakpoints) {
		case StopContinue:
			t.log.Debugf("%s swallowed stop at 0x%x", top.Name(), n.TopFrame.IP)
			t.Continue()
			return
		case StopDone:
			t.log.Debugf("%s done", top.Name())
			t.controllers = t.controllers[:len(t.controllers)-1]
		}
	}

	t.session.forEachObserver(func(o Observer) {
		o.OnThreadStopped(t, n.Type, n.HitBreakpoints)
	})
}

func (t *Thread) pushController(c ThreadController) {
	t.controllers = append(t.controllers, c)
}

func (t *Thread) clearFrames() {
	t.stack.clear()
	t.session.forEachObserver(func(o Observer) {
		o.OnThreadFramesInvalidated(t)
	})
}

func (t *Thread) destroy() {
	t.stack.clear()
	t.controllers = nil
	t.live.kill()
}
