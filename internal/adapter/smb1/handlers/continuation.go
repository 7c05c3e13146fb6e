package handlers

import (
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

// Continuation is a parked command: the saved request identifiers plus the
// code that finishes it.
//
// A continuation is resumed exactly once, from whichever goroutine resolves
// the wait (a lock release, an oplock break acknowledgment, a timer). The
// dispatcher attaches a delivery function that writes the final response;
// a continuation resumed before it was attached holds its result until
// then.
type Continuation struct {
	Command types.Command
	MID     uint16
	PID     uint32
	UID     uint16
	TID     uint16
	Created time.Time

	mu        sync.Mutex
	resume    func(err error) *HandlerResult
	cancel    func()
	deliver   func(*HandlerResult)
	result    *HandlerResult
	resumed   bool
	abandoned bool
}

// NewContinuation creates a continuation for req. resume builds the final
// result from the wait's outcome; cancel asks whatever the command waits on
// to give up, which must eventually lead to Resume.
func NewContinuation(req *Request, resume func(err error) *HandlerResult, cancel func()) *Continuation {
	return &Continuation{
		Command: req.Command,
		MID:     req.Header.MID,
		PID:     req.PID(),
		UID:     req.Chain.UID,
		TID:     req.Chain.TID,
		Created: time.Now(),
		resume:  resume,
		cancel:  cancel,
	}
}

// Resume finishes the command with the outcome of its wait. Only the first
// call has any effect.
func (c *Continuation) Resume(err error) {
	c.mu.Lock()
	if c.resumed || c.abandoned {
		c.mu.Unlock()
		return
	}
	c.resumed = true
	c.mu.Unlock()

	res := c.resume(err)

	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return
	}
	deliver := c.deliver
	if deliver == nil {
		c.result = res
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	deliver(res)
}

// Attach sets the function that sends the final result. If the
// continuation already resolved, deliver runs immediately.
func (c *Continuation) Attach(deliver func(*HandlerResult)) {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return
	}
	if res := c.result; res != nil {
		c.result = nil
		c.mu.Unlock()
		deliver(res)
		return
	}
	c.deliver = deliver
	c.mu.Unlock()
}

// Cancel asks the wait to end early (NT_CANCEL). The command still replies,
// with whatever status its resume function picks for the cancellation.
func (c *Continuation) Cancel() {
	c.mu.Lock()
	done := c.resumed || c.abandoned
	cancel := c.cancel
	c.mu.Unlock()
	if !done && cancel != nil {
		cancel()
	}
}

// Abandon drops the continuation without a reply (connection teardown).
func (c *Continuation) Abandon() {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return
	}
	c.abandoned = true
	c.result = nil
	cancel := c.cancel
	resumed := c.resumed
	c.mu.Unlock()
	if !resumed && cancel != nil {
		cancel()
	}
}

// Done reports whether the continuation has resolved or was abandoned.
func (c *Continuation) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumed || c.abandoned
}
