package locking

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/locktable"
)

// Lock protocol errors. StatusFor maps them to wire status codes.
var (
	ErrRangeNotLocked = errors.New("locking: range not locked")
	ErrLockNotGranted = errors.New("locking: lock not granted")
	ErrLockConflict   = errors.New("locking: lock conflict")
	ErrCancelNoMatch  = errors.New("locking: no pending lock to cancel")
	ErrCancelled      = errors.New("locking: request cancelled")
	ErrClosed         = errors.New("locking: handle closed")
)

// StatusFor maps a lock error to the status sent to the client.
func StatusFor(err error) types.Status {
	switch {
	case err == nil:
		return types.StatusSuccess
	case errors.Is(err, ErrRangeNotLocked):
		return types.StatusRangeNotLocked
	case errors.Is(err, ErrLockNotGranted):
		return types.StatusLockNotGranted
	case errors.Is(err, ErrLockConflict):
		return types.StatusFileLockConflict
	case errors.Is(err, ErrCancelNoMatch):
		return types.DOSStatus(types.ErrDOS, types.ERRcancelviolation)
	case errors.Is(err, ErrCancelled):
		return types.StatusCancelled
	case errors.Is(err, ErrClosed):
		return types.StatusFileClosed
	case errors.Is(err, ErrOffsetOverflow):
		return types.StatusInvalidLockRange
	case errors.Is(err, ErrShortEntries):
		return types.StatusInvalidParameter
	}
	return types.StatusInternalError
}

// Config bounds blocking behavior.
type Config struct {
	// MaxBlockingTimeout caps the wait of any parked batch, including
	// those asking to wait forever. Zero means no cap.
	MaxBlockingTimeout time.Duration

	// MaxPendingPerFile limits parked batches per file.
	MaxPendingPerFile int
}

// Outcome is the synchronous result of a successful Request.
type Outcome int

const (
	// OutcomeGranted means every entry was applied.
	OutcomeGranted Outcome = iota

	// OutcomePending means the batch was parked; Batch.Resolve will be
	// called exactly once later.
	OutcomePending
)

// Batch is one decoded lock request against a single open handle.
type Batch struct {
	File locktable.FileID

	// Owner identifies the handle; each entry supplies its own PID.
	Owner locktable.Owner

	Unlocks []Entry
	Locks   []Entry
	Shared  bool

	// Timeout is the wire timeout in milliseconds: 0 fails immediately,
	// types.LockTimeoutInfinite waits forever.
	Timeout uint32

	// Cancel resolves parked batches matching Locks instead of locking.
	Cancel bool

	// Tag is an opaque caller value carried on the waiter (the MID).
	Tag uint64

	// Resolve receives the final result of a parked batch. It must not
	// block and is never called for batches that complete synchronously.
	Resolve func(error)
}

// Engine applies lock batches to a lock table.
type Engine struct {
	table locktable.Table
	queue *Queue
	cfg   Config
}

// NewEngine creates an engine over table.
func NewEngine(table locktable.Table, cfg Config) *Engine {
	return &Engine{
		table: table,
		queue: NewQueue(cfg.MaxPendingPerFile),
		cfg:   cfg,
	}
}

// Table returns the underlying lock table.
func (e *Engine) Table() locktable.Table { return e.table }

// Pending returns the number of parked batches.
func (e *Engine) Pending() int { return e.queue.Len() }

func entryOwner(base locktable.Owner, en Entry) locktable.Owner {
	base.PID = en.PID
	return base
}

// Request applies a batch.
//
// Returns OutcomeGranted when every entry was applied, OutcomePending when
// the batch was parked, or an error after rolling back whatever the batch
// had granted.
func (e *Engine) Request(ctx context.Context, b Batch) (Outcome, error) {
	// Step 1: unlocks, unconditionally and first.
	released := false
	for _, en := range b.Unlocks {
		if err := e.table.Unlock(b.File, entryOwner(b.Owner, en), en.Offset, en.Length); err != nil {
			if released {
				e.wake(b.File)
			}
			logger.DebugCtx(ctx, "LOCKING: unlock of range not held",
				logger.KeyLockOffset, en.Offset, logger.KeyLockLength, en.Length)
			return OutcomeGranted, ErrRangeNotLocked
		}
		released = true
	}
	if released {
		e.wake(b.File)
	}

	// Step 2: cancel parked requests.
	if b.Cancel {
		return OutcomeGranted, e.cancel(b)
	}

	// Step 3: locks, all-or-nothing.
	granted, next, conflict := e.acquire(b.File, b.Owner, b.Locks, b.Shared)
	if conflict == nil {
		return OutcomeGranted, nil
	}

	if b.Timeout == types.LockTimeoutNone || b.Resolve == nil {
		e.rollback(b.File, b.Owner, granted)
		logger.DebugCtx(ctx, "LOCKING: conflict",
			logger.KeyLockOwner, conflict.Owner.String(),
			logger.KeyLockOffset, conflict.Offset, logger.KeyLockLength, conflict.Length)
		return OutcomeGranted, ErrLockNotGranted
	}

	// Step 4: park the remainder.
	w := &Waiter{
		File:    b.File,
		Owner:   b.Owner,
		Tag:     b.Tag,
		shared:  b.Shared,
		entries: b.Locks,
		next:    next,
		granted: granted,
		resolve: b.Resolve,
	}
	d, timed := e.waitDuration(b.Timeout)
	if timed {
		w.deadline = time.Now().Add(d)
	}
	if err := e.queue.Enqueue(w); err != nil {
		e.rollback(b.File, b.Owner, granted)
		logger.WarnCtx(ctx, "LOCKING: blocking queue full", logger.KeyError, err)
		return OutcomeGranted, ErrLockNotGranted
	}

	// Once queued, w is visible to wake and cancel.
	if timed {
		w.mu.Lock()
		if !w.done {
			w.timer = time.AfterFunc(d, func() { e.expire(w) })
		}
		w.mu.Unlock()
	}

	logger.DebugCtx(ctx, "LOCKING: request parked",
		logger.KeyTimeout, b.Timeout,
		logger.KeyLockOffset, b.Locks[next].Offset, logger.KeyLockLength, b.Locks[next].Length)

	// A release may have slipped in between the failed attempt and Enqueue.
	e.wake(b.File)
	return OutcomePending, nil
}

// waitDuration converts a wire timeout to a wait; ok is false for an
// uncapped infinite wait.
func (e *Engine) waitDuration(timeout uint32) (time.Duration, bool) {
	if timeout == types.LockTimeoutInfinite {
		if e.cfg.MaxBlockingTimeout > 0 {
			return e.cfg.MaxBlockingTimeout, true
		}
		return 0, false
	}
	d := time.Duration(timeout) * time.Millisecond
	if e.cfg.MaxBlockingTimeout > 0 && d > e.cfg.MaxBlockingTimeout {
		d = e.cfg.MaxBlockingTimeout
	}
	return d, true
}

// acquire takes entries in order until one conflicts. It returns the
// entries granted, the index of the conflicting entry, and the conflict.
func (e *Engine) acquire(file locktable.FileID, owner locktable.Owner, entries []Entry, shared bool) ([]Entry, int, *locktable.Conflict) {
	var granted []Entry
	for i, en := range entries {
		_, err := e.table.Lock(file, locktable.Lock{
			Owner:     entryOwner(owner, en),
			Offset:    en.Offset,
			Length:    en.Length,
			Exclusive: !shared,
		})
		if err != nil {
			var ce *locktable.ConflictError
			if errors.As(err, &ce) {
				return granted, i, ce.Conflict
			}
			return granted, i, &locktable.Conflict{Offset: en.Offset, Length: en.Length}
		}
		granted = append(granted, en)
	}
	return granted, len(entries), nil
}

// rollback releases locks granted earlier in a failed batch.
func (e *Engine) rollback(file locktable.FileID, owner locktable.Owner, granted []Entry) {
	if len(granted) == 0 {
		return
	}
	for _, en := range granted {
		if err := e.table.Unlock(file, entryOwner(owner, en), en.Offset, en.Length); err != nil {
			logger.Warn("LOCKING: rollback failed",
				logger.KeyLockOffset, en.Offset,
				logger.KeyLockLength, en.Length,
				logger.KeyError, err)
		}
	}
	e.wake(file)
}

// cancel resolves the parked batches named by b.Locks with
// ErrLockConflict.
func (e *Engine) cancel(b Batch) error {
	matched := 0
	for _, en := range b.Locks {
		w := e.queue.Find(b.File, entryOwner(b.Owner, en), en.Offset, en.Length)
		if w == nil {
			continue
		}
		if e.finish(w, ErrLockConflict) {
			matched++
		}
	}
	if matched < len(b.Locks) {
		return ErrCancelNoMatch
	}
	return nil
}

// wake lets each waiter on file retry in FIFO order.
func (e *Engine) wake(file locktable.FileID) {
	for _, w := range e.queue.Waiters(file) {
		w.mu.Lock()
		if w.done {
			w.mu.Unlock()
			continue
		}
		granted, next, conflict := e.acquire(w.File, w.Owner, w.entries[w.next:], w.shared)
		w.granted = append(w.granted, granted...)
		w.next += next
		if conflict != nil {
			w.mu.Unlock()
			continue
		}
		w.done = true
		if w.timer != nil {
			w.timer.Stop()
		}
		resolve := w.resolve
		w.mu.Unlock()

		e.queue.Remove(w)
		resolve(nil)
	}
}

// expire fails a waiter whose deadline passed.
func (e *Engine) expire(w *Waiter) {
	if e.finish(w, ErrLockConflict) {
		logger.Debug("LOCKING: blocking lock timed out",
			logger.KeyLockOffset, w.blocked().Offset, logger.KeyLockLength, w.blocked().Length)
	}
}

// finish resolves w with err and rolls back its partial grants. It
// returns false if w was already resolved.
func (e *Engine) finish(w *Waiter, err error) bool {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return false
	}
	w.done = true
	if w.timer != nil {
		w.timer.Stop()
	}
	granted := w.granted
	w.granted = nil
	resolve := w.resolve
	w.mu.Unlock()

	e.queue.Remove(w)
	e.rollback(w.File, w.Owner, granted)
	resolve(err)
	return true
}

// CancelWhere resolves every parked batch selected by match with err and
// returns how many were resolved.
func (e *Engine) CancelWhere(match func(*Waiter) bool, err error) int {
	n := 0
	for _, w := range e.queue.All() {
		if match(w) && e.finish(w, err) {
			n++
		}
	}
	return n
}

// Unlock releases one range and wakes waiters on the file.
func (e *Engine) Unlock(file locktable.FileID, owner locktable.Owner, offset, length uint64) error {
	if err := e.table.Unlock(file, owner, offset, length); err != nil {
		return ErrRangeNotLocked
	}
	e.wake(file)
	return nil
}

// ReleaseHandle drops every lock and parked batch of a closing handle.
func (e *Engine) ReleaseHandle(file locktable.FileID, owner locktable.Owner) int {
	e.CancelWhere(func(w *Waiter) bool {
		return w.File == file && w.Owner.ConnID == owner.ConnID && w.Owner.FID == owner.FID
	}, ErrClosed)

	n := e.table.ReleaseHandle(file, owner)
	if n > 0 {
		e.wake(file)
	}
	return n
}

// CheckIO reports whether a read or write is blocked by another lock.
func (e *Engine) CheckIO(file locktable.FileID, owner locktable.Owner, offset, length uint64, isWrite bool) error {
	if c := e.table.CheckIO(file, owner, offset, length, isWrite); c != nil {
		return ErrLockConflict
	}
	return nil
}
