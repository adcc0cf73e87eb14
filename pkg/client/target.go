package client

// Target represents one debuggable unit. It owns zero or one Process mirror
// at a time: the mirror exists while the target is attached.
type Target struct {
	session *Session
	process *Process
}

// Session returns the owning session.
func (tg *Target) Session() *Session {
	return tg.session
}

// Process returns the attached process mirror, or nil.
func (tg *Target) Process() *Process {
	return tg.process
}

// CreateProcess attaches the target to the process identified by koid. The
// new mirror knows nothing about threads yet; call Process.SyncThreads to
// populate it.
func (tg *Target) CreateProcess(koid uint64, name string) (*Process, error) {
	if tg.process != nil {
		return nil, ProcessExistsError{}
	}
	tg.process = newProcess(tg.session, koid, name)
	tg.session.log.Infof("attached to process %d (%s)", koid, name)
	return tg.process, nil
}

// Detach drops the process mirror. Observers see a will-destroy event for
// every still-live thread before teardown.
func (tg *Target) Detach() {
	tg.onProcessExiting()
}

func (tg *Target) onProcessExiting() {
	if tg.process == nil {
		return
	}
	p := tg.process
	tg.process = nil
	p.destroy()
}
