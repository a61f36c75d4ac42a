package session

import (
	"context"
	"sync"
)

// key identifies one logical action of one user session
type key struct {
	sessionID string
	purpose   string
}

// Registry hands out one Controller per (session, purpose) pair so that a
// re-submitted action cancels its own predecessor and nothing else
type Registry struct {
	mu          sync.Mutex
	controllers map[key]*Controller
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{controllers: make(map[key]*Controller)}
}

// Controller returns the controller for the pair, creating it on first use.
// Prune may drop it again while it is idle, so requests start with Begin.
func (r *Registry) Controller(sessionID, purpose string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(sessionID, purpose)
}

// Begin starts a request on the pair's controller, cancelling the previous
// one. Lookup and Begin happen under the registry lock so Prune cannot
// detach the controller in between.
func (r *Registry) Begin(parent context.Context, sessionID, purpose string) (context.Context, string, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(sessionID, purpose).Begin(parent)
}

func (r *Registry) lookup(sessionID, purpose string) *Controller {
	k := key{sessionID: sessionID, purpose: purpose}
	c, ok := r.controllers[k]
	if !ok {
		c = &Controller{}
		r.controllers[k] = c
	}
	return c
}

// CancelSession aborts every in-flight request of the session, or only the
// one for purpose when purpose is not empty. It returns the aborted request ids.
func (r *Registry) CancelSession(sessionID, purpose string) []string {
	r.mu.Lock()
	matched := make([]*Controller, 0, 4)
	for k, c := range r.controllers {
		if k.sessionID != sessionID {
			continue
		}
		if purpose != "" && k.purpose != purpose {
			continue
		}
		matched = append(matched, c)
	}
	r.mu.Unlock()

	var cancelled []string
	for _, c := range matched {
		if id, ok := c.Cancel(); ok {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}

// Prune drops idle controllers so long-running services do not keep one per
// session forever
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, c := range r.controllers {
		if _, active := c.Active(); !active {
			delete(r.controllers, k)
			removed++
		}
	}
	return removed
}

// CancelAll aborts every in-flight request of every session
func (r *Registry) CancelAll() []string {
	r.mu.Lock()
	matched := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		matched = append(matched, c)
	}
	r.mu.Unlock()

	var cancelled []string
	for _, c := range matched {
		if id, ok := c.Cancel(); ok {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}
