package client

import (
	"github.com/quarry-dbg/quarry/pkg/remote"
	"github.com/quarry-dbg/quarry/pkg/symbolize"
)

// Observer receives mirror state-change events. Callbacks fire synchronously
// inside the handler that caused the change, on the session's dispatch loop.
//
// During WillDestroyThread the thread's final state is still readable; it is
// torn down only after every observer has returned.
type Observer interface {
	DidCreateThread(process *Process, thread *Thread)
	WillDestroyThread(process *Process, thread *Thread)
	OnThreadStopped(thread *Thread, etype remote.ExceptionType, hitBreakpoints []uint32)
	// OnThreadFramesInvalidated fires when a thread's stack is discarded
	// wholesale, e.g. because the thread resumed running. Any WeakFrame into
	// that stack is invalid afterwards.
	OnThreadFramesInvalidated(thread *Thread)
	DidLoadModuleSymbols(process *Process, module *symbolize.ModuleSymbols)
	WillUnloadModuleSymbols(process *Process, module *symbolize.ModuleSymbols)
	OnSymbolLoadFailure(process *Process, err error)
}

// NopObserver is an Observer that ignores everything. Embed it to implement
// only the callbacks you care about.
type NopObserver struct{}

func (NopObserver) DidCreateThread(*Process, *Thread)                           {}
func (NopObserver) WillDestroyThread(*Process, *Thread)                         {}
func (NopObserver) OnThreadStopped(*Thread, remote.ExceptionType, []uint32)     {}
func (NopObserver) OnThreadFramesInvalidated(*Thread)                           {}
func (NopObserver) DidLoadModuleSymbols(*Process, *symbolize.ModuleSymbols)     {}
func (NopObserver) WillUnloadModuleSymbols(*Process, *symbolize.ModuleSymbols)  {}
func (NopObserver) OnSymbolLoadFailure(*Process, error)                         {}
