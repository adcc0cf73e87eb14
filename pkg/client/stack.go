package client

import "github.com/quarry-dbg/quarry/pkg/remote"

// frameKey identifies a frame across independently fetched backtraces.
type frameKey struct {
	ip uint64
	sp uint64
}

// stack is a thread's mirrored call stack, innermost frame first.
//
// hasAllFrames is true only when the frames came from a complete backtrace;
// it is false when only the top frame is known, e.g. right after a stop
// notification.
type stack struct {
	frames       []*Frame
	hasAllFrames bool
}

// setFrames replaces the stack with records, preserving the identity of any
// existing frame whose (ip, sp) key appears in the new backtrace. Old frames
// without a match are invalidated, which kills outstanding WeakFrames to
// them.
func (s *stack) setFrames(t *Thread, records []remote.FrameRecord, haveAll bool) {
	old := make(map[frameKey]*Frame, len(s.frames))
	for _, f := range s.frames {
		// A key can legitimately repeat if the same (ip, sp) shows up twice;
		// keep the first, the duplicate is rebuilt fresh below.
		if _, ok := old[f.key()]; ok {
			f.invalidate()
			continue
		}
		old[f.key()] = f
	}
	s.frames = nil

	frames := make([]*Frame, 0, len(records))
	for _, rec := range records {
		key := frameKey{ip: rec.IP, sp: rec.SP}
		if f, ok := old[key]; ok {
			frames = append(frames, f)
			delete(old, key)
			continue
		}
		frames = append(frames, newFrame(t, rec))
	}
	for _, f := range old {
		f.invalidate()
	}

	s.frames = frames
	s.hasAllFrames = haveAll
}

// clear drops every frame. The caller is responsible for firing the
// frames-invalidated notification when appropriate.
func (s *stack) clear() {
	for _, f := range s.frames {
		f.invalidate()
	}
	s.frames = nil
	s.hasAllFrames = false
}

func (s *stack) top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[0]
}

func (s *stack) indexOf(key frameKey) int {
	for i, f := range s.frames {
		if f.key() == key {
			return i
		}
	}
	return -1
}
