package client

// liveness tracks whether a mirror object has been destroyed. Every async
// reply handler captures the owner's liveness at request time and checks it
// before touching the owner; there is no way to cancel an in-flight request,
// so a reply can always arrive after its owner is gone.
type liveness struct {
	dead bool
}

func newLiveness() *liveness {
	return &liveness{}
}

func (l *liveness) alive() bool {
	return !l.dead
}

func (l *liveness) kill() {
	l.dead = true
}
