package client

import (
	"fmt"

	"github.com/quarry-dbg/quarry/pkg/remote"
	"github.com/quarry-dbg/quarry/pkg/symbolize"
)

// Frame is one mirrored stack frame. Frames are owned by their thread's
// stack and can be destroyed whenever the stack is refreshed; any holder
// outside the stack must go through a WeakFrame.
//
// The (IP, SP) pair is the frame's identity: a refreshed backtrace that
// contains the same pair keeps the same *Frame object alive.
type Frame struct {
	thread *Thread
	ip     uint64
	sp     uint64

	loc        symbolize.Location
	symbolized bool

	valid bool
}

func newFrame(t *Thread, rec remote.FrameRecord) *Frame {
	return &Frame{
		thread: t,
		ip:     rec.IP,
		sp:     rec.SP,
		loc:    symbolize.Location{Address: rec.IP},
		valid:  true,
	}
}

// Thread returns the owning thread.
func (f *Frame) Thread() *Thread { return f.thread }

// IP returns the frame's instruction pointer.
func (f *Frame) IP() uint64 { return f.ip }

// SP returns the frame's stack pointer.
func (f *Frame) SP() uint64 { return f.sp }

// Valid reports whether the frame still exists in its thread's stack.
func (f *Frame) Valid() bool { return f.valid }

// Location returns the frame's source location, symbolizing it on first use.
// Before symbols for the containing module are loaded this is a raw-address
// placeholder; it upgrades on a later call once symbols exist.
func (f *Frame) Location() symbolize.Location {
	if !f.symbolized {
		loc := f.thread.session.sym.LocationForAddress(f.ip)
		if loc.HasSymbols() {
			f.loc = loc
			f.symbolized = true
		}
	}
	return f.loc
}

// Weak returns a non-owning handle to the frame.
func (f *Frame) Weak() WeakFrame {
	return WeakFrame{frame: f}
}

func (f *Frame) invalidate() {
	f.valid = false
}

func (f *Frame) key() frameKey {
	return frameKey{ip: f.ip, sp: f.sp}
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame ip=0x%x sp=0x%x", f.ip, f.sp)
}

// WeakFrame is a non-owning, auto-invalidating handle to a Frame. Get
// returns nil once the frame has been dropped from its stack; holders must
// treat that as "frame no longer exists", not as an error.
type WeakFrame struct {
	frame *Frame
}

// Get returns the frame, or nil if it no longer exists.
func (w WeakFrame) Get() *Frame {
	if w.frame == nil || !w.frame.valid {
		return nil
	}
	return w.frame
}
