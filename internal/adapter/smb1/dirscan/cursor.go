package dirscan

import (
	"errors"
	"sync"
	"time"
)

// ErrTooManyCursors is returned when every cursor handle is in use.
var ErrTooManyCursors = errors.New("dirscan: too many open searches")

// CursorOwner identifies who opened a search.
type CursorOwner struct {
	ConnID uint64
	UID    uint16
	TID    uint16
	PID    uint32
}

// Cursor is a resumable search.
type Cursor struct {
	ID      uint16
	Owner   CursorOwner
	Scanner *Scanner

	lastUsed time.Time
}

// CursorTable is the process-wide table of open searches, keyed by a small
// handle that travels in SEARCH resume keys.
type CursorTable struct {
	mu      sync.Mutex
	cursors map[uint16]*Cursor
	next    uint16
	ttl     time.Duration
	limit   int
	now     func() time.Time
}

// NewCursorTable creates a table. Cursors idle for longer than ttl are
// dropped; ttl <= 0 disables expiry. limit bounds the table size, evicting
// the least recently used cursor when full.
func NewCursorTable(ttl time.Duration, limit int) *CursorTable {
	if limit <= 0 || limit > 0xFFFF {
		limit = 0xFFFF
	}
	return &CursorTable{
		cursors: make(map[uint16]*Cursor),
		ttl:     ttl,
		limit:   limit,
		now:     time.Now,
	}
}

// Add registers a scanner and returns its cursor.
func (t *CursorTable) Add(owner CursorOwner, s *Scanner) (*Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.expireLocked(now)
	if len(t.cursors) >= t.limit {
		t.evictOldestLocked()
	}

	for range 0xFFFF {
		t.next++
		if t.next == 0 {
			t.next = 1
		}
		if _, used := t.cursors[t.next]; used {
			continue
		}
		c := &Cursor{ID: t.next, Owner: owner, Scanner: s, lastUsed: now}
		t.cursors[c.ID] = c
		return c, nil
	}
	return nil, ErrTooManyCursors
}

// Get returns the cursor for id and marks it used.
func (t *CursorTable) Get(id uint16) (*Cursor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	c, ok := t.cursors[id]
	if !ok {
		return nil, false
	}
	if t.expired(c, now) {
		delete(t.cursors, id)
		return nil, false
	}
	c.lastUsed = now
	return c, true
}

// Remove closes the cursor for id.
func (t *CursorTable) Remove(id uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.cursors[id]
	delete(t.cursors, id)
	return ok
}

// RemoveWhere closes every cursor whose owner matches and returns how many
// were closed.
func (t *CursorTable) RemoveWhere(match func(CursorOwner) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, c := range t.cursors {
		if match(c.Owner) {
			delete(t.cursors, id)
			n++
		}
	}
	return n
}

// Expire drops idle cursors and returns how many were dropped.
func (t *CursorTable) Expire() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expireLocked(t.now())
}

// Len returns the number of open cursors.
func (t *CursorTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cursors)
}

func (t *CursorTable) expired(c *Cursor, now time.Time) bool {
	return t.ttl > 0 && now.Sub(c.lastUsed) > t.ttl
}

func (t *CursorTable) expireLocked(now time.Time) int {
	n := 0
	for id, c := range t.cursors {
		if t.expired(c, now) {
			delete(t.cursors, id)
			n++
		}
	}
	return n
}

func (t *CursorTable) evictOldestLocked() {
	var oldest *Cursor
	for _, c := range t.cursors {
		if oldest == nil || c.lastUsed.Before(oldest.lastUsed) {
			oldest = c
		}
	}
	if oldest != nil {
		delete(t.cursors, oldest.ID)
	}
}
