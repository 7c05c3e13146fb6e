package locktable

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Table is the lock table interface the SMB1 lock engine drives.
type Table interface {
	// Lock grants l or returns an error wrapping ErrConflict.
	Lock(file FileID, l Lock) (*Lock, error)

	// Unlock removes the lock with exactly this owner, offset and length.
	Unlock(file FileID, owner Owner, offset, length uint64) error

	// Test returns the first lock that would block l, or nil.
	Test(file FileID, l Lock) *Conflict

	// CheckIO returns the first lock that blocks an I/O, or nil.
	CheckIO(file FileID, owner Owner, offset, length uint64, isWrite bool) *Conflict

	// ReleaseHandle removes every lock taken through owner's handle, under
	// any PID, and returns how many were removed.
	ReleaseHandle(file FileID, owner Owner) int

	// List returns a snapshot of the locks on file.
	List(file FileID) []Lock

	// Count returns the number of granted locks across all files.
	Count() int
}

// ConflictError wraps ErrConflict with the blocking lock.
type ConflictError struct {
	Conflict *Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: held by %s at [%d,+%d)", ErrConflict, e.Conflict.Owner, e.Conflict.Offset, e.Conflict.Length)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Memory is an in-memory Table.
//
// Thread Safety:
// Memory is safe for concurrent use by multiple goroutines.
type Memory struct {
	mu    sync.RWMutex
	locks map[FileID][]Lock
	count int
}

// NewMemory creates an empty lock table.
func NewMemory() *Memory {
	return &Memory{locks: make(map[FileID][]Lock)}
}

func (m *Memory) Lock(file FileID, l Lock) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.locks[file]
	for i := range existing {
		if IsLockConflicting(&existing[i], &l) {
			return nil, &ConflictError{Conflict: conflictFrom(&existing[i])}
		}
	}

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.AcquiredAt.IsZero() {
		l.AcquiredAt = time.Now()
	}
	m.locks[file] = append(existing, l)
	m.count++
	return &l, nil
}

func (m *Memory) Unlock(file FileID, owner Owner, offset, length uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.locks[file]
	// Stacked locks unlock last-in first-out.
	for i := len(existing) - 1; i >= 0; i-- {
		if existing[i].Owner.SameHandle(owner) &&
			existing[i].Offset == offset &&
			existing[i].Length == length {
			m.locks[file] = append(existing[:i], existing[i+1:]...)
			if len(m.locks[file]) == 0 {
				delete(m.locks, file)
			}
			m.count--
			return nil
		}
	}
	return ErrNotLocked
}

func (m *Memory) Test(file FileID, l Lock) *Conflict {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing := m.locks[file]
	for i := range existing {
		if IsLockConflicting(&existing[i], &l) {
			return conflictFrom(&existing[i])
		}
	}
	return nil
}

func (m *Memory) CheckIO(file FileID, owner Owner, offset, length uint64, isWrite bool) *Conflict {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing := m.locks[file]
	for i := range existing {
		if CheckIOConflict(&existing[i], owner, offset, length, isWrite) {
			return conflictFrom(&existing[i])
		}
	}
	return nil
}

func (m *Memory) ReleaseHandle(file FileID, owner Owner) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.locks[file]
	if len(existing) == 0 {
		return 0
	}

	remaining := make([]Lock, 0, len(existing))
	for i := range existing {
		o := existing[i].Owner
		if o.ConnID != owner.ConnID || o.FID != owner.FID {
			remaining = append(remaining, existing[i])
		}
	}
	removed := len(existing) - len(remaining)
	if len(remaining) == 0 {
		delete(m.locks, file)
	} else {
		m.locks[file] = remaining
	}
	m.count -= removed
	return removed
}

func (m *Memory) List(file FileID) []Lock {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing := m.locks[file]
	if len(existing) == 0 {
		return nil
	}
	result := make([]Lock, len(existing))
	copy(result, existing)
	return result
}

func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}
