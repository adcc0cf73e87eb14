package client

import (
	"errors"
	"sort"

	"github.com/quarry-dbg/quarry/pkg/logflags"
	"github.com/quarry-dbg/quarry/pkg/remote"
)

// RunUntil resumes thread until execution reaches loc (an address, function
// name or file:line input).
//
// cb fires once the transient stop condition is installed and the resume has
// been issued, not when the target arrives: arrival is observed later
// through the normal stop-notification path. Symbol resolution failure is
// reported through cb before anything is sent.
func RunUntil(thread *Thread, loc string, cb func(error)) {
	addrs, err := thread.session.sym.ResolveLocation(loc)
	if err != nil {
		cb(err)
		return
	}
	runUntilAddrs(thread.process, thread, addrs, 0, cb)
}

// RunUntilProcess resumes every thread of the process until any of them
// reaches loc. No controller is installed: whichever thread hits the
// one-shot condition reports a normal stop.
func RunUntilProcess(process *Process, loc string, cb func(error)) {
	addrs, err := process.session.sym.ResolveLocation(loc)
	if err != nil {
		cb(err)
		return
	}
	runUntilAddrs(process, nil, addrs, 0, cb)
}

// runUntilAddrs installs one-shot breakpoints on every address and resumes.
// With a non-nil thread the breakpoints are scoped to it, an untilController
// is pushed to filter unrelated stops, and sp (when nonzero) constrains the
// hit to an exact stack depth — what Finish needs to survive recursion.
func runUntilAddrs(process *Process, thread *Thread, addrs []uint64, sp uint64, cb func(error)) {
	session := process.session
	log := logflags.SteppingLogger()

	if len(addrs) == 0 {
		cb(errors.New("location resolved to no addresses"))
		return
	}

	ctl := &untilController{process: process, ids: make(map[uint32]bool, len(addrs))}
	settings := make([]remote.BreakpointSettings, 0, len(addrs))
	for _, addr := range addrs {
		bp := remote.BreakpointSettings{
			ID:          session.allocBreakpointID(),
			OneShot:     true,
			Address:     addr,
			ProcessKoid: process.koid,
			SP:          sp,
		}
		if thread != nil {
			bp.ThreadKoid = thread.koid
		}
		ctl.ids[bp.ID] = true
		settings = append(settings, bp)
	}

	live := process.live
	remaining := len(settings)
	failed := false
	installed := make([]uint32, 0, len(settings))
	for _, bp := range settings {
		bp := bp
		session.api.AddBreakpoint(&remote.AddBreakpointRequest{Breakpoint: bp}, func(reply *remote.AddBreakpointReply, err error) {
			if !live.alive() {
				return
			}
			if err == nil && reply.Status != 0 {
				err = &remote.StatusError{Op: "AddBreakpoint", Status: reply.Status}
			}
			if err != nil {
				if failed {
					return
				}
				failed = true
				removeBreakpoints(process, installed)
				cb(err)
				return
			}
			if failed {
				// A sibling install already failed the operation; take this
				// late arrival back out.
				removeBreakpoints(process, []uint32{bp.ID})
				return
			}
			log.Debugf("installed transient breakpoint %d at 0x%x", bp.ID, bp.Address)
			installed = append(installed, bp.ID)
			remaining--
			if remaining > 0 {
				return
			}
			// All conditions installed; resume. Setup completes when the
			// resume is acknowledged as sent.
			if thread != nil {
				thread.pushController(ctl)
			}
			resumeForUntil(process, thread, cb)
		})
	}
}

func resumeForUntil(process *Process, thread *Thread, cb func(error)) {
	req := &remote.ResumeRequest{ProcessKoid: process.koid, Mode: remote.ResumeModeContinue}
	if thread != nil {
		req.ThreadKoids = []uint64{thread.koid}
	}
	live := process.live
	process.session.api.Resume(req, func(_ *remote.ResumeReply, err error) {
		if !live.alive() {
			return
		}
		cb(err)
	})
}

// removeBreakpoints best-effort removes transient breakpoints. A removal
// failure only logs; the agent drops the breakpoints on detach anyway.
func removeBreakpoints(process *Process, ids []uint32) {
	log := logflags.SteppingLogger()
	for _, id := range ids {
		id := id
		process.session.api.RemoveBreakpoint(&remote.RemoveBreakpointRequest{BreakpointID: id}, func(_ *remote.RemoveBreakpointReply, err error) {
			if err != nil {
				log.Errorf("removing transient breakpoint %d: %v", id, err)
			}
		})
	}
}

// untilController swallows breakpoint stops that are not one of its own
// transient breakpoints, so the thread keeps running until the target
// location. Non-breakpoint stops (a fault, a user pause) abandon the
// operation and report.
type untilController struct {
	process *Process
	ids     map[uint32]bool
}

func (c *untilController) Name() string { return "until" }

func (c *untilController) OnThreadStop(etype remote.ExceptionType, hitBreakpoints []uint32) StopOp {
	for _, id := range hitBreakpoints {
		if c.ids[id] {
			// The agent consumed this one-shot; its siblings are stale now.
			delete(c.ids, id)
			c.removeRemaining()
			return StopDone
		}
	}
	if etype != remote.ExceptionSoftwareBreakpoint && etype != remote.ExceptionHardwareBreakpoint {
		c.removeRemaining()
		return StopDone
	}
	return StopContinue
}

func (c *untilController) removeRemaining() {
	ids := make([]uint32, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	removeBreakpoints(c.process, ids)
	c.ids = nil
}
