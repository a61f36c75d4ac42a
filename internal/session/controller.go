package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Controller owns the cancellation of the one in-flight request behind a
// single user action. Starting a new request aborts the previous one.
type Controller struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	requestID string
	seq       uint64
}

// Begin cancels any in-flight request and returns a fresh context for the
// next one, together with its request id. done must be called when the
// request finishes; it releases the controller only if no newer request
// has started since.
func (c *Controller) Begin(parent context.Context) (ctx context.Context, requestID string, done func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	c.seq++
	seq := c.seq
	c.cancel = cancel
	c.requestID = uuid.NewString()
	requestID = c.requestID

	done = func() {
		cancel()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.seq == seq {
			c.cancel = nil
			c.requestID = ""
		}
	}
	return ctx, requestID, done
}

// Cancel aborts the in-flight request. It returns the aborted request id,
// or false when nothing was running.
func (c *Controller) Cancel() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return "", false
	}
	c.cancel()
	id := c.requestID
	c.cancel = nil
	c.requestID = ""
	return id, true
}

// Active reports the id of the in-flight request, if any
func (c *Controller) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID, c.cancel != nil
}
