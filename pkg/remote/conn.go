package remote

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quarry-dbg/quarry/pkg/logflags"
	"github.com/sirupsen/logrus"
)

// message is the envelope for everything exchanged with the agent. Requests
// carry a sequence number that the matching reply echoes; notifications have
// no sequence number.
type message struct {
	Kind    string          `json:"kind"` // "request", "reply" or "notify"
	Seq     uint64          `json:"seq,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type pendingCall struct {
	method string
	done   func(json.RawMessage, error)
}

// Conn is the production API implementation: framed JSON messages over a
// stream connection. Replies and notifications are read by a dedicated
// goroutine and handed to the Dispatcher, preserving arrival order.
type Conn struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader

	wmu    sync.Mutex // serializes writes to rwc
	writer *bufio.Writer

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]pendingCall
	closed  bool

	dispatch Dispatcher
	handler  NotificationHandler
	log      *logrus.Entry
}

var _ API = &Conn{}

// Dial connects to a debug agent at addr.
func Dial(addr string, dispatch Dispatcher, handler NotificationHandler) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent at %s: %v", addr, err)
	}
	return NewConn(nc, dispatch, handler), nil
}

// DialTimeout is Dial with a connection timeout.
func DialTimeout(addr string, timeout time.Duration, dispatch Dispatcher, handler NotificationHandler) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent at %s: %v", addr, err)
	}
	return NewConn(nc, dispatch, handler), nil
}

// NewConn wraps an established stream connection and starts reading from it.
func NewConn(rwc io.ReadWriteCloser, dispatch Dispatcher, handler NotificationHandler) *Conn {
	c := &Conn{
		rwc:      rwc,
		reader:   bufio.NewReader(rwc),
		writer:   bufio.NewWriter(rwc),
		pending:  make(map[uint64]pendingCall),
		dispatch: dispatch,
		handler:  handler,
		log:      logflags.RemoteLogger(),
	}
	go c.readLoop()
	return c
}

// Close tears down the connection. Outstanding request callbacks fire with a
// transport error; OnConnectionError is not called for an explicit close.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.rwc.Close()
}

func (c *Conn) call(method string, req interface{}, done func(json.RawMessage, error)) {
	payload, err := json.Marshal(req)
	if err != nil {
		c.post(func() { done(nil, &TransportError{Op: method, Err: err}) })
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.post(func() { done(nil, &TransportError{Op: method, Err: errors.New("connection closed")}) })
		return
	}
	c.seq++
	seq := c.seq
	c.pending[seq] = pendingCall{method: method, done: done}
	c.mu.Unlock()

	c.log.Debugf("-> %s seq=%d", method, seq)
	if err := c.send(&message{Kind: "request", Seq: seq, Method: method, Payload: payload}); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		c.post(func() { done(nil, &TransportError{Op: method, Err: err}) })
	}
}

func (c *Conn) post(f func()) {
	c.dispatch.Post(f)
}

func (c *Conn) send(msg *message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	if _, err := c.writer.Write(body); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Conn) readLoop() {
	for {
		msg, err := c.readMessage()
		if err != nil {
			c.fail(err)
			return
		}
		switch msg.Kind {
		case "reply":
			c.mu.Lock()
			pc, ok := c.pending[msg.Seq]
			delete(c.pending, msg.Seq)
			c.mu.Unlock()
			if !ok {
				c.log.Warnf("reply for unknown seq %d", msg.Seq)
				continue
			}
			c.log.Debugf("<- %s seq=%d", pc.method, msg.Seq)
			payload := msg.Payload
			c.post(func() { pc.done(payload, nil) })
		case "notify":
			c.dispatchNotify(msg)
		default:
			c.log.Warnf("message with unknown kind %q", msg.Kind)
		}
	}
}

func (c *Conn) readMessage() (*message, error) {
	var length int64 = -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if v, ok := trimPrefix(line, "Content-Length: "); ok {
			length, err = strconv.ParseInt(v, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bad Content-Length %q: %v", v, err)
			}
		}
	}
	if length < 0 {
		return nil, errors.New("message without Content-Length header")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, err
	}
	msg := new(message)
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("malformed message: %v", err)
	}
	return msg, nil
}

func trimPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// fail drains the pending table, failing every outstanding callback, then
// reports the connection error. A connection closed by Close does not report.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]pendingCall)
	c.mu.Unlock()

	for _, pc := range pending {
		done, method := pc.done, pc.method
		c.post(func() { done(nil, &TransportError{Op: method, Err: err}) })
	}
	if !wasClosed {
		c.log.Errorf("connection failed: %v", err)
		c.post(func() { c.handler.OnConnectionError(err) })
	}
}

func (c *Conn) dispatchNotify(msg *message) {
	c.log.Debugf("<- %s", msg.Method)
	switch msg.Method {
	case "NotifyThreadStarting":
		n := new(NotifyThreadStarting)
		if c.decodeNotify(msg, n) {
			c.post(func() { c.handler.OnNotifyThreadStarting(n) })
		}
	case "NotifyThreadExiting":
		n := new(NotifyThreadExiting)
		if c.decodeNotify(msg, n) {
			c.post(func() { c.handler.OnNotifyThreadExiting(n) })
		}
	case "NotifyException":
		n := new(NotifyException)
		if c.decodeNotify(msg, n) {
			c.post(func() { c.handler.OnNotifyException(n) })
		}
	case "NotifyModules":
		n := new(NotifyModules)
		if c.decodeNotify(msg, n) {
			c.post(func() { c.handler.OnNotifyModules(n) })
		}
	case "NotifyProcessExiting":
		n := new(NotifyProcessExiting)
		if c.decodeNotify(msg, n) {
			c.post(func() { c.handler.OnNotifyProcessExiting(n) })
		}
	default:
		c.log.Warnf("unknown notification %q", msg.Method)
	}
}

func (c *Conn) decodeNotify(msg *message, dst interface{}) bool {
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		c.log.Errorf("malformed %s payload: %v", msg.Method, err)
		return false
	}
	return true
}

func (c *Conn) Pause(req *PauseRequest, cb func(*PauseReply, error)) {
	c.call("Pause", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(PauseReply)
		cb(reply, c.decodeReply("Pause", payload, reply))
	})
}

func (c *Conn) Resume(req *ResumeRequest, cb func(*ResumeReply, error)) {
	c.call("Resume", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(ResumeReply)
		cb(reply, c.decodeReply("Resume", payload, reply))
	})
}

func (c *Conn) Threads(req *ThreadsRequest, cb func(*ThreadsReply, error)) {
	c.call("Threads", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(ThreadsReply)
		cb(reply, c.decodeReply("Threads", payload, reply))
	})
}

func (c *Conn) Backtrace(req *BacktraceRequest, cb func(*BacktraceReply, error)) {
	c.call("Backtrace", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(BacktraceReply)
		cb(reply, c.decodeReply("Backtrace", payload, reply))
	})
}

func (c *Conn) Registers(req *RegistersRequest, cb func(*RegistersReply, error)) {
	c.call("Registers", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(RegistersReply)
		cb(reply, c.decodeReply("Registers", payload, reply))
	})
}

func (c *Conn) Modules(req *ModulesRequest, cb func(*ModulesReply, error)) {
	c.call("Modules", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(ModulesReply)
		cb(reply, c.decodeReply("Modules", payload, reply))
	})
}

func (c *Conn) ReadMemory(req *ReadMemoryRequest, cb func(*ReadMemoryReply, error)) {
	c.call("ReadMemory", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(ReadMemoryReply)
		cb(reply, c.decodeReply("ReadMemory", payload, reply))
	})
}

func (c *Conn) WriteMemory(req *WriteMemoryRequest, cb func(*WriteMemoryReply, error)) {
	c.call("WriteMemory", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(WriteMemoryReply)
		cb(reply, c.decodeReply("WriteMemory", payload, reply))
	})
}

func (c *Conn) AddBreakpoint(req *AddBreakpointRequest, cb func(*AddBreakpointReply, error)) {
	c.call("AddBreakpoint", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(AddBreakpointReply)
		cb(reply, c.decodeReply("AddBreakpoint", payload, reply))
	})
}

func (c *Conn) RemoveBreakpoint(req *RemoveBreakpointRequest, cb func(*RemoveBreakpointReply, error)) {
	c.call("RemoveBreakpoint", req, func(payload json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		reply := new(RemoveBreakpointReply)
		cb(reply, c.decodeReply("RemoveBreakpoint", payload, reply))
	})
}

func (c *Conn) decodeReply(method string, payload json.RawMessage, dst interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return &TransportError{Op: method, Err: fmt.Errorf("malformed reply: %v", err)}
	}
	return nil
}
