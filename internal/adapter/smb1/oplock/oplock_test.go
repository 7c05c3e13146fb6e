package oplock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	breaks []Holder
	levels []Level
}

func (r *recorder) OplockBreak(h Holder, l Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breaks = append(r.breaks, h)
	r.levels = append(r.levels, l)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.breaks)
}

const f FileID = "s:1"

var (
	h1 = Holder{ConnID: 1, FID: 1}
	h2 = Holder{ConnID: 2, FID: 9}
)

func TestGrant(t *testing.T) {
	m := NewManager(&recorder{}, Config{})
	assert.Equal(t, LevelBatch, m.Grant(f, h1, LevelBatch, false, true))
	assert.Equal(t, LevelBatch, m.Level(f, h1))

	// Another open while an exclusive holder exists gets nothing.
	assert.Equal(t, LevelNone, m.Grant(f, h2, LevelExclusive, true, true))

	disabled := NewManager(nil, Config{Disabled: true})
	assert.Equal(t, LevelNone, disabled.Grant(f, h1, LevelBatch, false, true))
}

func TestGrantLevelIIWithOtherOpens(t *testing.T) {
	m := NewManager(&recorder{}, Config{})
	assert.Equal(t, LevelII, m.Grant(f, h2, LevelExclusive, true, true))
	assert.Equal(t, LevelNone, m.Grant(f, Holder{ConnID: 3, FID: 1}, LevelExclusive, true, false))
}

func TestBreakAck(t *testing.T) {
	rec := &recorder{}
	m := NewManager(rec, Config{})
	m.Grant(f, h1, LevelExclusive, false, true)

	done := m.BreakForOpen(f, h2, true)
	require.NotNil(t, done)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, LevelII, rec.levels[0])

	// A second opener joins the same break.
	again := m.BreakForOpen(f, Holder{ConnID: 3, FID: 2}, true)
	assert.Equal(t, done, again)
	assert.Equal(t, 1, rec.count())

	assert.True(t, m.Ack(f, h1, LevelII))
	select {
	case <-done:
	default:
		t.Fatal("break not completed by ack")
	}
	assert.Equal(t, LevelII, m.Level(f, h1))

	// An unsolicited acknowledgment is tolerated.
	assert.False(t, m.Ack(f, h1, LevelNone))
	assert.False(t, m.Ack(f, h2, LevelNone))
}

func TestBreakNotNeeded(t *testing.T) {
	m := NewManager(&recorder{}, Config{})
	assert.Nil(t, m.BreakForOpen(f, h2, true))
	m.Grant(f, h1, LevelBatch, false, true)
	assert.Nil(t, m.BreakForOpen(f, h1, true))
}

func TestBreakCompletedByClose(t *testing.T) {
	m := NewManager(&recorder{}, Config{})
	m.Grant(f, h1, LevelBatch, false, true)
	done := m.BreakForOpen(f, h2, false)
	m.Release(f, h1)
	<-done
	assert.Equal(t, 0, m.Count())
}

func TestBreakTimeout(t *testing.T) {
	m := NewManager(&recorder{}, Config{BreakTimeout: 10 * time.Millisecond})
	m.Grant(f, h1, LevelExclusive, false, true)
	done := m.BreakForOpen(f, h2, false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("break did not time out")
	}
	assert.Equal(t, LevelNone, m.Level(f, h1))
}

func TestBreakLevelII(t *testing.T) {
	rec := &recorder{}
	m := NewManager(rec, Config{})
	m.Grant(f, h1, LevelExclusive, true, true)
	m.Grant(f, h2, LevelExclusive, true, true)
	require.Equal(t, LevelII, m.Level(f, h1))

	m.BreakLevelII(f, h2)
	assert.Equal(t, LevelNone, m.Level(f, h1))
	assert.Equal(t, LevelII, m.Level(f, h2))
	assert.Equal(t, []Holder{h1}, rec.breaks)
	assert.Equal(t, []Level{LevelNone}, rec.levels)
}
