package client

// Finish runs the thread until the given frame returns to its caller.
//
// The frame is re-identified by its (ip, sp) key, never by pointer: the
// stack can be replaced while the required full backtrace is in flight, and
// an identity-preserved frame is still the same logical frame. If no frame
// with that key survives, cb receives FrameGoneError.
//
// Finishing the outermost frame is a plain continue: there is no caller
// frame to return to.
func (t *Thread) Finish(frame *Frame, cb func(error)) {
	key := frame.key()
	if !t.stack.hasAllFrames {
		live := t.live
		t.SyncFrames(func(err error) {
			if !live.alive() {
				return
			}
			if err != nil {
				cb(err)
				return
			}
			t.finishWithFullStack(key, cb)
		})
		return
	}
	t.finishWithFullStack(key, cb)
}

func (t *Thread) finishWithFullStack(key frameKey, cb func(error)) {
	idx := t.stack.indexOf(key)
	if idx < 0 {
		cb(FrameGoneError{})
		return
	}
	if idx == len(t.stack.frames)-1 {
		t.Continue()
		cb(nil)
		return
	}

	// Run to the caller's resume address, constrained to the caller's stack
	// pointer so a recursive return to the same address at a different depth
	// does not end the operation early.
	caller := t.stack.frames[idx+1]
	runUntilAddrs(t.process, t, []uint64{caller.ip}, caller.sp, cb)
}
