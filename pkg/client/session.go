package client

import (
	"time"

	"github.com/quarry-dbg/quarry/pkg/logflags"
	"github.com/quarry-dbg/quarry/pkg/remote"
	"github.com/quarry-dbg/quarry/pkg/symbolize"
	"github.com/sirupsen/logrus"
)

// Symbols is the symbol service the mirror consumes. *symbolize.Index
// implements it.
type Symbols interface {
	LineDetailsForAddress(addr uint64) []symbolize.LineEntry
	LocationForAddress(addr uint64) symbolize.Location
	ResolveLocation(spec string) ([]uint64, error)
	AddModule(m *symbolize.ModuleSymbols)
	RemoveModule(name string)
}

// ModuleLoader produces the symbols for a loaded module, typically by
// locating a symbol file by build id. Returning an error surfaces as an
// OnSymbolLoadFailure observer event; the module stays unsymbolized.
type ModuleLoader func(m remote.Module) (*symbolize.ModuleSymbols, error)

// Session owns the connection to one debug agent and the dispatch loop on
// which every mirror object lives. It routes unsolicited notifications to
// the owning Process mirror and fans mirror events out to observers.
type Session struct {
	api  remote.API
	conn *remote.Conn
	sym  Symbols

	target    *Target
	observers []Observer

	moduleLoader ModuleLoader

	events   chan func()
	shutdown chan struct{}

	connectTimeout    time.Duration
	maxBacktraceDepth int

	nextBreakpointID uint32

	log *logrus.Entry
}

var _ remote.Dispatcher = &Session{}
var _ remote.NotificationHandler = &Session{}

// NewSession creates a session that resolves symbols through sym. Call
// Connect or BindAPI before using the mirror.
func NewSession(sym Symbols) *Session {
	s := &Session{
		sym:      sym,
		events:   make(chan func(), 128),
		shutdown: make(chan struct{}),
		log:      logflags.SessionLogger(),
	}
	s.target = &Target{session: s}
	return s
}

// Connect dials the debug agent at addr and binds the connection to this
// session.
func (s *Session) Connect(addr string) error {
	var conn *remote.Conn
	var err error
	if s.connectTimeout > 0 {
		conn, err = remote.DialTimeout(addr, s.connectTimeout, s, s)
	} else {
		conn, err = remote.Dial(addr, s, s)
	}
	if err != nil {
		return err
	}
	s.conn = conn
	s.api = conn
	return nil
}

// SetConnectTimeout bounds how long Connect waits for the agent. Zero means
// no bound.
func (s *Session) SetConnectTimeout(d time.Duration) {
	s.connectTimeout = d
}

// SetMaxBacktraceDepth limits how many frames a full backtrace asks the
// agent for. Zero means unlimited.
func (s *Session) SetMaxBacktraceDepth(n int) {
	s.maxBacktraceDepth = n
}

// BindAPI attaches an alternative agent implementation, e.g. an in-process
// fake.
func (s *Session) BindAPI(api remote.API) {
	s.api = api
}

// Disconnect closes the agent connection, if any.
func (s *Session) Disconnect() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Target returns the session's (only) target.
func (s *Session) Target() *Target {
	return s.target
}

// SetModuleLoader installs the symbol loader used when module lists arrive.
func (s *Session) SetModuleLoader(loader ModuleLoader) {
	s.moduleLoader = loader
}

// AddObserver registers an observer for mirror events.
func (s *Session) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// RemoveObserver unregisters a previously added observer.
func (s *Session) RemoveObserver(o Observer) {
	for i := range s.observers {
		if s.observers[i] == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// forEachObserver iterates a snapshot so an observer can remove itself from
// inside a callback.
func (s *Session) forEachObserver(f func(Observer)) {
	obs := make([]Observer, len(s.observers))
	copy(obs, s.observers)
	for _, o := range obs {
		f(o)
	}
}

// Post queues f on the dispatch loop. It is the remote.Dispatcher
// implementation; the connection's read goroutine delivers every reply and
// notification through here.
func (s *Session) Post(f func()) {
	select {
	case s.events <- f:
	case <-s.shutdown:
	}
}

// Run processes dispatched events until Shutdown is called. Everything that
// touches mirror state runs on the goroutine that calls Run.
func (s *Session) Run() {
	for {
		select {
		case f := <-s.events:
			f()
		case <-s.shutdown:
			return
		}
	}
}

// Shutdown stops the dispatch loop.
func (s *Session) Shutdown() {
	close(s.shutdown)
}

func (s *Session) allocBreakpointID() uint32 {
	s.nextBreakpointID++
	return s.nextBreakpointID
}

func (s *Session) processForKoid(koid uint64) *Process {
	p := s.target.Process()
	if p == nil || p.Koid() != koid {
		return nil
	}
	return p
}

// Notification routing. The agent reports which process each event belongs
// to; events for processes this session is not attached to are dropped.

func (s *Session) OnNotifyThreadStarting(n *remote.NotifyThreadStarting) {
	p := s.processForKoid(n.Record.ProcessKoid)
	if p == nil {
		s.log.Debugf("thread-starting for unknown process %d", n.Record.ProcessKoid)
		return
	}
	p.OnThreadStarting(n.Record)
}

func (s *Session) OnNotifyThreadExiting(n *remote.NotifyThreadExiting) {
	p := s.processForKoid(n.Record.ProcessKoid)
	if p == nil {
		s.log.Debugf("thread-exiting for unknown process %d", n.Record.ProcessKoid)
		return
	}
	p.OnThreadExiting(n.Record)
}

func (s *Session) OnNotifyException(n *remote.NotifyException) {
	p := s.processForKoid(n.Thread.ProcessKoid)
	if p == nil {
		s.log.Debugf("exception for unknown process %d", n.Thread.ProcessKoid)
		return
	}
	p.onException(n)
}

func (s *Session) OnNotifyModules(n *remote.NotifyModules) {
	p := s.processForKoid(n.ProcessKoid)
	if p == nil {
		return
	}
	p.updateModules(n.Modules)
}

func (s *Session) OnNotifyProcessExiting(n *remote.NotifyProcessExiting) {
	p := s.processForKoid(n.ProcessKoid)
	if p == nil {
		return
	}
	s.log.Infof("process %d exited with code %d", n.ProcessKoid, n.ReturnCode)
	s.target.onProcessExiting()
}

func (s *Session) OnConnectionError(err error) {
	s.log.Errorf("agent connection lost: %v", err)
}
