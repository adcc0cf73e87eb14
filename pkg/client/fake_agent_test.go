package client

import (
	"github.com/quarry-dbg/quarry/pkg/remote"
	"github.com/quarry-dbg/quarry/pkg/symbolize"
)

// fakeAgent is an in-process remote.API that records every request and
// answers from canned replies. Replies are delivered synchronously unless a
// defer flag is set, in which case the callback is parked for the test to
// release later.
type fakeAgent struct {
	pauseReqs     []*remote.PauseRequest
	resumeReqs    []*remote.ResumeRequest
	threadsReqs   []*remote.ThreadsRequest
	backtraceReqs []*remote.BacktraceRequest
	breakpoints   []remote.BreakpointSettings
	removedBpIDs  []uint32

	threadsReply     remote.ThreadsReply
	threadsErr       error
	backtraceReply   remote.BacktraceReply
	backtraceErr     error
	registersReply   remote.RegistersReply
	registersErr     error
	modulesReply     remote.ModulesReply
	modulesErr       error
	readMemoryReply  remote.ReadMemoryReply
	readMemoryErr    error
	writeMemoryReply remote.WriteMemoryReply
	writeMemoryErr   error

	addBreakpointStatus   uint32
	addBreakpointStatuses []uint32
	addBreakpointErr      error

	deferBacktrace   bool
	pendingBacktrace []func(*remote.BacktraceReply, error)

	resumeErr error
}

var _ remote.API = &fakeAgent{}

func (a *fakeAgent) Pause(req *remote.PauseRequest, cb func(*remote.PauseReply, error)) {
	a.pauseReqs = append(a.pauseReqs, req)
	cb(&remote.PauseReply{}, nil)
}

func (a *fakeAgent) Resume(req *remote.ResumeRequest, cb func(*remote.ResumeReply, error)) {
	a.resumeReqs = append(a.resumeReqs, req)
	cb(&remote.ResumeReply{}, a.resumeErr)
}

func (a *fakeAgent) Threads(req *remote.ThreadsRequest, cb func(*remote.ThreadsReply, error)) {
	a.threadsReqs = append(a.threadsReqs, req)
	if a.threadsErr != nil {
		cb(nil, a.threadsErr)
		return
	}
	reply := a.threadsReply
	cb(&reply, nil)
}

func (a *fakeAgent) Backtrace(req *remote.BacktraceRequest, cb func(*remote.BacktraceReply, error)) {
	a.backtraceReqs = append(a.backtraceReqs, req)
	if a.deferBacktrace {
		a.pendingBacktrace = append(a.pendingBacktrace, cb)
		return
	}
	if a.backtraceErr != nil {
		cb(nil, a.backtraceErr)
		return
	}
	reply := a.backtraceReply
	cb(&reply, nil)
}

// releaseBacktrace delivers the oldest parked backtrace reply.
func (a *fakeAgent) releaseBacktrace() {
	cb := a.pendingBacktrace[0]
	a.pendingBacktrace = a.pendingBacktrace[1:]
	if a.backtraceErr != nil {
		cb(nil, a.backtraceErr)
		return
	}
	reply := a.backtraceReply
	cb(&reply, nil)
}

func (a *fakeAgent) Registers(req *remote.RegistersRequest, cb func(*remote.RegistersReply, error)) {
	if a.registersErr != nil {
		cb(nil, a.registersErr)
		return
	}
	reply := a.registersReply
	cb(&reply, nil)
}

func (a *fakeAgent) Modules(req *remote.ModulesRequest, cb func(*remote.ModulesReply, error)) {
	if a.modulesErr != nil {
		cb(nil, a.modulesErr)
		return
	}
	reply := a.modulesReply
	cb(&reply, nil)
}

func (a *fakeAgent) ReadMemory(req *remote.ReadMemoryRequest, cb func(*remote.ReadMemoryReply, error)) {
	if a.readMemoryErr != nil {
		cb(nil, a.readMemoryErr)
		return
	}
	reply := a.readMemoryReply
	cb(&reply, nil)
}

func (a *fakeAgent) WriteMemory(req *remote.WriteMemoryRequest, cb func(*remote.WriteMemoryReply, error)) {
	if a.writeMemoryErr != nil {
		cb(nil, a.writeMemoryErr)
		return
	}
	reply := a.writeMemoryReply
	cb(&reply, nil)
}

func (a *fakeAgent) AddBreakpoint(req *remote.AddBreakpointRequest, cb func(*remote.AddBreakpointReply, error)) {
	a.breakpoints = append(a.breakpoints, req.Breakpoint)
	if a.addBreakpointErr != nil {
		cb(nil, a.addBreakpointErr)
		return
	}
	status := a.addBreakpointStatus
	if len(a.addBreakpointStatuses) > 0 {
		status = a.addBreakpointStatuses[0]
		a.addBreakpointStatuses = a.addBreakpointStatuses[1:]
	}
	cb(&remote.AddBreakpointReply{Status: status}, nil)
}

func (a *fakeAgent) RemoveBreakpoint(req *remote.RemoveBreakpointRequest, cb func(*remote.RemoveBreakpointReply, error)) {
	a.removedBpIDs = append(a.removedBpIDs, req.BreakpointID)
	cb(&remote.RemoveBreakpointReply{}, nil)
}

// fakeSymbols is a canned client.Symbols implementation.
type fakeSymbols struct {
	lineDetails map[uint64][]symbolize.LineEntry
	locations   map[uint64]symbolize.Location
	resolved    map[string][]uint64
	resolveErr  error

	added   []*symbolize.ModuleSymbols
	removed []string
}

var _ Symbols = &fakeSymbols{}

func newFakeSymbols() *fakeSymbols {
	return &fakeSymbols{
		lineDetails: make(map[uint64][]symbolize.LineEntry),
		locations:   make(map[uint64]symbolize.Location),
		resolved:    make(map[string][]uint64),
	}
}

func (s *fakeSymbols) LineDetailsForAddress(addr uint64) []symbolize.LineEntry {
	return s.lineDetails[addr]
}

func (s *fakeSymbols) LocationForAddress(addr uint64) symbolize.Location {
	if loc, ok := s.locations[addr]; ok {
		return loc
	}
	return symbolize.Location{Address: addr}
}

func (s *fakeSymbols) ResolveLocation(spec string) ([]uint64, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return s.resolved[spec], nil
}

func (s *fakeSymbols) AddModule(m *symbolize.ModuleSymbols) {
	s.added = append(s.added, m)
}

func (s *fakeSymbols) RemoveModule(name string) {
	s.removed = append(s.removed, name)
}

// recordingObserver counts mirror events.
type recordingObserver struct {
	NopObserver

	created     []*Thread
	destroyed   []*Thread
	stops       []stopEvent
	invalidated int
	loaded      []*symbolize.ModuleSymbols
	unloaded    []*symbolize.ModuleSymbols
	loadErrs    []error
}

type stopEvent struct {
	thread *Thread
	etype  remote.ExceptionType
	hits   []uint32
}

func (r *recordingObserver) DidCreateThread(p *Process, t *Thread) {
	r.created = append(r.created, t)
}

func (r *recordingObserver) WillDestroyThread(p *Process, t *Thread) {
	r.destroyed = append(r.destroyed, t)
}

func (r *recordingObserver) OnThreadStopped(t *Thread, etype remote.ExceptionType, hits []uint32) {
	r.stops = append(r.stops, stopEvent{thread: t, etype: etype, hits: hits})
}

func (r *recordingObserver) OnThreadFramesInvalidated(t *Thread) {
	r.invalidated++
}

func (r *recordingObserver) DidLoadModuleSymbols(p *Process, m *symbolize.ModuleSymbols) {
	r.loaded = append(r.loaded, m)
}

func (r *recordingObserver) WillUnloadModuleSymbols(p *Process, m *symbolize.ModuleSymbols) {
	r.unloaded = append(r.unloaded, m)
}

func (r *recordingObserver) OnSymbolLoadFailure(p *Process, err error) {
	r.loadErrs = append(r.loadErrs, err)
}

// newTestMirror wires a session, fake agent, fake symbols, observer and an
// attached process mirror.
func newTestMirror() (*Session, *fakeAgent, *fakeSymbols, *recordingObserver, *Process) {
	agent := &fakeAgent{}
	sym := newFakeSymbols()
	sess := NewSession(sym)
	sess.BindAPI(agent)
	obs := &recordingObserver{}
	sess.AddObserver(obs)
	p, err := sess.Target().CreateProcess(1, "test-proc")
	if err != nil {
		panic(err)
	}
	return sess, agent, sym, obs, p
}

func stoppedRecord(koid uint64, name string) remote.ThreadRecord {
	return remote.ThreadRecord{
		ProcessKoid: 1,
		Koid:        koid,
		Name:        name,
		State:       remote.ThreadStateSuspended,
	}
}
