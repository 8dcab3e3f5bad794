package identity

import (
	"context"
	"sync"
)

// Emitter is an in-process identity provider.
//
// Until the first SignIn, SignOut or MarkSignedOut call the provider has not
// reported a state and listeners receive nothing. Deliveries are serialized, so
// every listener observes changes in the order they happened.
type Emitter struct {
	dispatchMu sync.Mutex

	mu        sync.Mutex
	current   *Identity
	reported  bool
	listeners map[uint64]Listener
	nextID    uint64
}

// NewEmitter returns an Emitter that has not reported any state yet.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[uint64]Listener)}
}

// OnAuthStateChanged registers fn. If a state was already reported, fn is
// called with it before OnAuthStateChanged returns. The returned function
// removes the listener and is safe to call more than once.
func (e *Emitter) OnAuthStateChanged(fn Listener) func() {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	reported := e.reported
	current := cloneIdentity(e.current)
	e.mu.Unlock()

	if reported {
		fn(current)
	}

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// SignIn reports id as the signed-in identity.
func (e *Emitter) SignIn(id Identity) {
	e.publish(&id)
}

// MarkSignedOut reports the signed-out state without a sign-out request,
// e.g. when a restored provider session turned out to be absent.
func (e *Emitter) MarkSignedOut() {
	e.publish(nil)
}

// SignOut reports the signed-out state. It never fails for the in-process
// provider.
func (e *Emitter) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.publish(nil)
	return nil
}

// Current returns the last reported identity and whether any state was
// reported at all.
func (e *Emitter) Current() (*Identity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneIdentity(e.current), e.reported
}

// Listeners returns the number of registered listeners.
func (e *Emitter) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

func (e *Emitter) publish(id *Identity) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	e.mu.Lock()
	e.current = cloneIdentity(id)
	e.reported = true
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(cloneIdentity(id))
	}
}

func cloneIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
