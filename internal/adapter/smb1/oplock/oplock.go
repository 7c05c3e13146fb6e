// Package oplock tracks SMB1 opportunistic locks per open handle.
//
// Levels are none, level II (shared read caching), exclusive and batch.
// An open that collides with an exclusive or batch holder starts a break:
// the holder is sent an unsolicited LOCKING_ANDX with OPLOCK_RELEASE and
// the opener waits until the holder acknowledges, closes, or the break
// times out. Level II holders are broken to none on write without waiting
// for an acknowledgment.
package oplock

import (
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
)

// Level is an oplock level.
type Level uint8

const (
	LevelNone Level = iota
	LevelII
	LevelExclusive
	LevelBatch
)

func (l Level) String() string {
	switch l {
	case LevelII:
		return "level2"
	case LevelExclusive:
		return "exclusive"
	case LevelBatch:
		return "batch"
	}
	return "none"
}

// WireLevel is the value carried in OPEN_ANDX OplockLevel-style fields and
// in the LOCKING_ANDX NewOplockLevel byte (0 none, 1 level II).
func (l Level) WireLevel() uint8 {
	if l == LevelII {
		return 1
	}
	return 0
}

// DefaultBreakTimeout matches the Windows default.
const DefaultBreakTimeout = 35 * time.Second

// FileID identifies the file an oplock covers.
type FileID string

// Holder identifies an open handle holding an oplock.
type Holder struct {
	ConnID uint64
	FID    uint16
}

// Notifier delivers break notifications to the holder's connection.
//
// Implementations must not block and must not call back into the Manager.
type Notifier interface {
	OplockBreak(h Holder, newLevel Level)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(h Holder, newLevel Level)

func (f NotifierFunc) OplockBreak(h Holder, newLevel Level) { f(h, newLevel) }

type grant struct {
	level    Level
	breaking bool
	breakTo  Level
	done     chan struct{}
	timer    *time.Timer
}

// Manager is the process-wide oplock table.
//
// Thread Safety:
// Manager is safe for concurrent use by multiple goroutines.
type Manager struct {
	mu           sync.Mutex
	files        map[FileID]map[Holder]*grant
	notifier     Notifier
	breakTimeout time.Duration
	disabled     bool
}

// Config configures a Manager.
type Config struct {
	Disabled     bool
	BreakTimeout time.Duration
}

// NewManager creates a Manager that sends breaks through n.
func NewManager(n Notifier, cfg Config) *Manager {
	if cfg.BreakTimeout <= 0 {
		cfg.BreakTimeout = DefaultBreakTimeout
	}
	return &Manager{
		files:        make(map[FileID]map[Holder]*grant),
		notifier:     n,
		breakTimeout: cfg.BreakTimeout,
		disabled:     cfg.Disabled,
	}
}

// SetNotifier replaces the break notifier.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// Grant decides the level for a new open of file by h.
//
// want is the level the client asked for (exclusive or batch). otherOpens
// reports whether other handles are open on the file. level2OK is false
// when the client did not negotiate level II support.
func (m *Manager) Grant(file FileID, h Holder, want Level, otherOpens, level2OK bool) Level {
	if m.disabled || want == LevelNone {
		return LevelNone
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	grants := m.files[file]
	level := want
	if otherOpens {
		level = LevelNone
		if level2OK && !hasExclusive(grants, h) {
			level = LevelII
		}
	}
	if level == LevelNone {
		return LevelNone
	}

	if grants == nil {
		grants = make(map[Holder]*grant)
		m.files[file] = grants
	}
	grants[h] = &grant{level: level}
	return level
}

func hasExclusive(grants map[Holder]*grant, except Holder) bool {
	for h, g := range grants {
		if h != except && g.level >= LevelExclusive {
			return true
		}
	}
	return false
}

// Level returns the current level of h on file.
func (m *Manager) Level(file FileID, h Holder) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.files[file][h]; g != nil {
		return g.level
	}
	return LevelNone
}

// BreakForOpen starts (or joins) a break of any exclusive or batch oplock
// on file held by a handle other than opener. It returns a channel closed
// when the break completes, or nil when no break is needed.
func (m *Manager) BreakForOpen(file FileID, opener Holder, level2OK bool) <-chan struct{} {
	m.mu.Lock()

	var (
		done   <-chan struct{}
		notify []Holder
		to     = LevelNone
	)
	if level2OK {
		to = LevelII
	}
	for h, g := range m.files[file] {
		if h == opener || g.level < LevelExclusive {
			continue
		}
		if !g.breaking {
			g.breaking = true
			g.breakTo = to
			g.done = make(chan struct{})
			holder, gr := h, g
			g.timer = time.AfterFunc(m.breakTimeout, func() { m.timeout(file, holder, gr) })
			notify = append(notify, h)
		}
		done = g.done
	}
	n := m.notifier
	m.mu.Unlock()

	for _, h := range notify {
		logger.Debug("OPLOCK: break requested", logger.KeyFID, h.FID, logger.KeyOplock, to.String())
		if n != nil {
			n.OplockBreak(h, to)
		}
	}
	return done
}

// BreakLevelII drops every level II oplock on file except writer's to none
// and notifies the holders. No acknowledgment is expected.
func (m *Manager) BreakLevelII(file FileID, writer Holder) {
	m.mu.Lock()
	var notify []Holder
	for h, g := range m.files[file] {
		if h == writer || g.level != LevelII {
			continue
		}
		delete(m.files[file], h)
		notify = append(notify, h)
	}
	if len(m.files[file]) == 0 {
		delete(m.files, file)
	}
	n := m.notifier
	m.mu.Unlock()

	for _, h := range notify {
		if n != nil {
			n.OplockBreak(h, LevelNone)
		}
	}
}

// Ack applies a client acknowledgment (LOCKING_ANDX with OPLOCK_RELEASE).
// It returns false when h holds no oplock or none is being broken; such
// acknowledgments are ignored.
func (m *Manager) Ack(file FileID, h Holder, newLevel Level) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.files[file][h]
	if g == nil || !g.breaking {
		return false
	}
	if newLevel > g.breakTo {
		newLevel = g.breakTo
	}
	m.settle(file, h, g, newLevel)
	return true
}

// Release drops h's oplock, completing any break in progress.
func (m *Manager) Release(file FileID, h Holder) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g := m.files[file][h]; g != nil {
		m.settle(file, h, g, LevelNone)
	}
}

func (m *Manager) timeout(file FileID, h Holder, g *grant) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.files[file][h] != g || !g.breaking {
		return
	}
	logger.Warn("OPLOCK: break timed out, revoking", logger.KeyFID, h.FID)
	m.settle(file, h, g, g.breakTo)
}

// settle finishes a break and records the new level. Caller holds m.mu.
func (m *Manager) settle(file FileID, h Holder, g *grant, level Level) {
	if g.breaking {
		g.breaking = false
		if g.timer != nil {
			g.timer.Stop()
		}
		close(g.done)
	}
	g.level = level
	if level == LevelNone {
		delete(m.files[file], h)
		if len(m.files[file]) == 0 {
			delete(m.files, file)
		}
	}
}

// Count returns the number of handles holding an oplock.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, grants := range m.files {
		n += len(grants)
	}
	return n
}
