package locking

import (
	"sync"
	"time"

	"github.com/marmos91/dittosmb/pkg/locktable"
)

// Waiter is a parked lock batch.
type Waiter struct {
	File     locktable.FileID
	Owner    locktable.Owner
	Tag      uint64
	QueuedAt time.Time

	mu       sync.Mutex
	shared   bool
	entries  []Entry
	next     int     // index of the entry still blocked
	granted  []Entry // entries taken so far, released on failure
	deadline time.Time
	timer    *time.Timer
	resolve  func(error)
	done     bool
}

// blocked returns the entry the waiter is blocked on.
func (w *Waiter) blocked() Entry {
	if w.next < len(w.entries) {
		return w.entries[w.next]
	}
	return Entry{}
}

// Deadline returns when the waiter times out; zero means never.
func (w *Waiter) Deadline() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deadline
}

func (w *Waiter) matches(owner locktable.Owner, offset, length uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return false
	}
	en := w.blocked()
	return w.Owner.ConnID == owner.ConnID &&
		w.Owner.UID == owner.UID &&
		w.Owner.FID == owner.FID &&
		en.PID == owner.PID &&
		en.Offset == offset &&
		en.Length == length
}
