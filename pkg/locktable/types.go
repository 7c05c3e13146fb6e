// Package locktable is the process-wide byte-range lock table.
//
// Locks are keyed by file identity, so two handles on the same file see
// each other's locks regardless of which connection opened them.
package locktable

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConflict is returned when a lock overlaps an incompatible lock.
	ErrConflict = errors.New("locktable: lock conflict")

	// ErrNotLocked is returned when an unlock names a range that is not held.
	ErrNotLocked = errors.New("locktable: range not locked")
)

// FileID identifies a file independently of the handle used to reach it.
type FileID string

// Owner identifies the holder of a lock. Two locks share a lock context
// when the connection, session and process match; FID further narrows
// it to one open handle.
type Owner struct {
	ConnID uint64
	UID    uint16
	PID    uint32
	FID    uint16
}

// SameContext reports whether o and other belong to the same client process
// on the same session.
func (o Owner) SameContext(other Owner) bool {
	return o.ConnID == other.ConnID && o.UID == other.UID && o.PID == other.PID
}

// SameHandle reports whether o and other are the same context on the same
// open handle.
func (o Owner) SameHandle(other Owner) bool {
	return o.SameContext(other) && o.FID == other.FID
}

func (o Owner) String() string {
	return fmt.Sprintf("conn=%d uid=%d pid=%d fid=%d", o.ConnID, o.UID, o.PID, o.FID)
}

// Lock is a granted byte-range lock over [Offset, Offset+Length).
type Lock struct {
	ID         uuid.UUID
	Owner      Owner
	Offset     uint64
	Length     uint64
	Exclusive  bool
	AcquiredAt time.Time
}

// End returns the exclusive end of the range. Callers reject ranges whose
// end would overflow before they reach the table.
func (l *Lock) End() uint64 {
	return l.Offset + l.Length
}

// Conflict describes the lock that blocked a request.
type Conflict struct {
	Owner     Owner
	Offset    uint64
	Length    uint64
	Exclusive bool
}

func conflictFrom(l *Lock) *Conflict {
	return &Conflict{Owner: l.Owner, Offset: l.Offset, Length: l.Length, Exclusive: l.Exclusive}
}

// RangesOverlap returns true if two byte ranges overlap. A zero-length
// range overlaps a range that strictly contains its offset.
func RangesOverlap(offset1, length1, offset2, length2 uint64) bool {
	return offset1+length1 > offset2 && offset2+length2 > offset1
}

// IsLockConflicting checks if requested may not be granted alongside
// existing.
//
// Conflict rules:
//   - Shared locks never conflict with other shared locks
//   - A shared lock may stack on an exclusive lock held through the same
//     handle
//   - Otherwise any overlap conflicts, including between two locks of the
//     same owner
func IsLockConflicting(existing, requested *Lock) bool {
	if !existing.Exclusive && !requested.Exclusive {
		return false
	}
	if existing.Exclusive && !requested.Exclusive && existing.Owner.SameHandle(requested.Owner) {
		return false
	}
	return RangesOverlap(existing.Offset, existing.Length, requested.Offset, requested.Length)
}

// CheckIOConflict checks if an I/O operation is blocked by existing.
//
//   - READ + same context + any lock = ALLOW
//   - READ + other context + shared lock = ALLOW
//   - READ + other context + exclusive lock = BLOCK
//   - WRITE + same context + exclusive lock = ALLOW
//   - WRITE + same context + shared lock = BLOCK
//   - WRITE + other context + any lock = BLOCK
func CheckIOConflict(existing *Lock, owner Owner, offset, length uint64, isWrite bool) bool {
	if length == 0 || !RangesOverlap(existing.Offset, existing.Length, offset, length) {
		return false
	}
	if existing.Owner.SameContext(owner) {
		if !isWrite {
			return false
		}
		return !existing.Exclusive
	}
	if isWrite {
		return true
	}
	return existing.Exclusive
}
