package client

import (
	"sort"

	"github.com/quarry-dbg/quarry/pkg/remote"
	"github.com/quarry-dbg/quarry/pkg/symbolize"
	"github.com/sirupsen/logrus"
)

// Process mirrors one attached process: its koid, name, loaded modules and
// live threads. The thread collection is reconciled from two sources that
// can race: unsolicited start/exit notifications and replies to explicit
// thread-list requests. Both paths are idempotent.
type Process struct {
	session *Session
	koid    uint64
	name    string

	threads map[uint64]*Thread
	modules []remote.Module

	live *liveness
	log  *logrus.Entry
}

func newProcess(s *Session, koid uint64, name string) *Process {
	return &Process{
		session: s,
		koid:    koid,
		name:    name,
		threads: make(map[uint64]*Thread),
		live:    newLiveness(),
		log:     s.log.WithField("process", koid),
	}
}

// Koid returns the process koid.
func (p *Process) Koid() uint64 { return p.koid }

// Name returns the executable name.
func (p *Process) Name() string { return p.name }

// Session returns the owning session.
func (p *Process) Session() *Session { return p.session }

// Threads returns the currently known threads, sorted by koid. The result
// reflects possibly-partial knowledge; SyncThreads fetches the authoritative
// list.
func (p *Process) Threads() []*Thread {
	threads := make([]*Thread, 0, len(p.threads))
	for _, t := range p.threads {
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].koid < threads[j].koid })
	return threads
}

// ThreadByKoid returns the thread mirror for koid, or nil.
func (p *Process) ThreadByKoid(koid uint64) *Thread {
	return p.threads[koid]
}

// Modules returns the last known module list.
func (p *Process) Modules() []remote.Module {
	return p.modules
}

// SyncThreads fetches the authoritative thread list and reconciles the
// mirror against it, then invokes cb. Unsolicited notifications arriving
// while the request is in flight are not ordered against it beyond the
// connection's FIFO guarantee.
func (p *Process) SyncThreads(cb func()) {
	live := p.live
	p.session.api.Threads(&remote.ThreadsRequest{ProcessKoid: p.koid}, func(reply *remote.ThreadsReply, err error) {
		if !live.alive() {
			return
		}
		if err != nil {
			p.log.Errorf("thread list fetch failed: %v", err)
		} else {
			p.updateThreads(reply.Threads)
		}
		if cb != nil {
			cb()
		}
	})
}

// updateThreads reconciles the mirror against an authoritative thread list.
//
// Two passes: first create/refresh everything the new list names, then
// retire what it no longer names. The known-koid set is snapshotted before
// the retire pass because OnThreadExiting mutates the collection being
// walked.
func (p *Process) updateThreads(records []remote.ThreadRecord) {
	listed := make(map[uint64]bool, len(records))
	for _, rec := range records {
		listed[rec.Koid] = true
		if t := p.threads[rec.Koid]; t != nil {
			// Metadata-only refresh. SetMetadata leaves the stack alone
			// unless the state transitioned to running.
			t.SetMetadata(rec)
		} else {
			p.OnThreadStarting(rec)
		}
	}

	known := make([]uint64, 0, len(p.threads))
	for koid := range p.threads {
		known = append(known, koid)
	}
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })

	for _, koid := range known {
		if !listed[koid] {
			p.OnThreadExiting(remote.ThreadRecord{ProcessKoid: p.koid, Koid: koid})
		}
	}
}

// OnThreadStarting handles a thread-start report. A duplicate report for a
// koid that already has a mirror is benign: a concurrent SyncThreads reply
// and a start notification can race to announce the same thread.
func (p *Process) OnThreadStarting(record remote.ThreadRecord) {
	if _, ok := p.threads[record.Koid]; ok {
		p.log.Debugf("duplicate thread-starting for koid %d", record.Koid)
		return
	}
	t := newThread(p, record)
	p.threads[record.Koid] = t
	p.log.Debugf("thread %d (%s) started", record.Koid, record.Name)
	p.session.forEachObserver(func(o Observer) {
		o.DidCreateThread(p, t)
	})
}

// OnThreadExiting handles a thread-exit report. An exit for an unknown koid
// is the reverse of the start race and equally benign. Observers are
// notified before the mirror is removed so they can still read its final
// state.
func (p *Process) OnThreadExiting(record remote.ThreadRecord) {
	t, ok := p.threads[record.Koid]
	if !ok {
		p.log.Debugf("thread-exiting for unknown koid %d", record.Koid)
		return
	}
	p.session.forEachObserver(func(o Observer) {
		o.WillDestroyThread(p, t)
	})
	delete(p.threads, record.Koid)
	t.destroy()
	p.log.Debugf("thread %d exited", record.Koid)
}

func (p *Process) onException(n *remote.NotifyException) {
	t := p.threads[n.Thread.Koid]
	if t == nil {
		// The exception can beat the thread-start report; synthesize one.
		p.OnThreadStarting(n.Thread)
		t = p.threads[n.Thread.Koid]
	}
	t.onException(n)
}

// GetModules fetches the loaded-module list, updates the symbol view and
// invokes cb with the raw list.
func (p *Process) GetModules(cb func([]remote.Module, error)) {
	live := p.live
	p.session.api.Modules(&remote.ModulesRequest{ProcessKoid: p.koid}, func(reply *remote.ModulesReply, err error) {
		if !live.alive() {
			return
		}
		if err != nil {
			if cb != nil {
				cb(nil, err)
			}
			return
		}
		p.updateModules(reply.Modules)
		if cb != nil {
			cb(reply.Modules, nil)
		}
	})
}

// updateModules reconciles the module list: unloaded modules drop their
// symbols, new modules load them through the session's ModuleLoader.
func (p *Process) updateModules(modules []remote.Module) {
	current := make(map[string]bool, len(modules))
	for _, m := range modules {
		current[m.Name] = true
	}
	for _, old := range p.modules {
		if !current[old.Name] {
			p.unloadModuleSymbols(old)
		}
	}

	previous := make(map[string]bool, len(p.modules))
	for _, m := range p.modules {
		previous[m.Name] = true
	}
	p.modules = modules

	for _, m := range modules {
		if previous[m.Name] {
			continue
		}
		p.loadModuleSymbols(m)
	}
}

func (p *Process) loadModuleSymbols(m remote.Module) {
	if p.session.moduleLoader == nil {
		return
	}
	syms, err := p.session.moduleLoader(m)
	if err != nil {
		p.log.Warnf("symbol load for %s failed: %v", m.Name, err)
		p.session.forEachObserver(func(o Observer) {
			o.OnSymbolLoadFailure(p, err)
		})
		return
	}
	p.session.sym.AddModule(syms)
	p.session.forEachObserver(func(o Observer) {
		o.DidLoadModuleSymbols(p, syms)
	})
}

func (p *Process) unloadModuleSymbols(m remote.Module) {
	p.session.forEachObserver(func(o Observer) {
		o.WillUnloadModuleSymbols(p, &symbolize.ModuleSymbols{Name: m.Name, Base: m.Base, BuildID: m.BuildID})
	})
	p.session.sym.RemoveModule(m.Name)
}

// ReadMemory reads size bytes at address. The reply is a sequence of blocks;
// unreadable ranges come back as gap blocks with Valid unset.
func (p *Process) ReadMemory(address uint64, size uint32, cb func([]remote.MemoryBlock, error)) {
	live := p.live
	p.session.api.ReadMemory(&remote.ReadMemoryRequest{ProcessKoid: p.koid, Address: address, Size: size}, func(reply *remote.ReadMemoryReply, err error) {
		if !live.alive() {
			return
		}
		if err != nil {
			cb(nil, err)
			return
		}
		cb(reply.Blocks, nil)
	})
}

// WriteMemory writes data at address. Transport failures and nonzero agent
// status both surface as tagged errors through cb.
func (p *Process) WriteMemory(address uint64, data []byte, cb func(error)) {
	live := p.live
	p.session.api.WriteMemory(&remote.WriteMemoryRequest{ProcessKoid: p.koid, Address: address, Data: data}, func(reply *remote.WriteMemoryReply, err error) {
		if !live.alive() {
			return
		}
		if err != nil {
			cb(err)
			return
		}
		if reply.Status != 0 {
			cb(&remote.StatusError{Op: "WriteMemory", Status: reply.Status})
			return
		}
		cb(nil)
	})
}

// destroy tears the mirror down: every live thread gets a will-destroy
// event, then the whole collection is dropped.
func (p *Process) destroy() {
	known := make([]uint64, 0, len(p.threads))
	for koid := range p.threads {
		known = append(known, koid)
	}
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })
	for _, koid := range known {
		p.OnThreadExiting(remote.ThreadRecord{ProcessKoid: p.koid, Koid: koid})
	}
	p.live.kill()
}
