// Package bufpool pools the byte slices used to assemble outgoing SMB
// frames.
//
// Buffers come in size classes. Get returns a slice from the smallest
// class that fits; sizes above the largest class are allocated directly
// and never pooled, so an occasional huge reply does not stay resident.
//
//	frame := bufpool.Get(n)
//	defer bufpool.Put(frame)
package bufpool

import (
	"slices"
	"sync"
)

// Default size classes, chosen around SMB1 reply shapes.
const (
	// ControlSize fits negotiate, session, tree and most metadata replies.
	ControlSize = 4 << 10

	// DataSize fits a full 64 KiB READ_ANDX reply with its headers.
	DataSize = 64<<10 + 4<<10

	// LargeSize fits a 1 MiB large read with its headers.
	LargeSize = 1<<20 + 4<<10
)

// DefaultClasses are the size classes of the package-level pool.
var DefaultClasses = []int{ControlSize, DataSize, LargeSize}

// Pool hands out byte slices from a fixed set of size classes.
// It is safe for concurrent use.
type Pool struct {
	classes []int
	pools   []sync.Pool
}

// NewPool creates a pool with the given size classes. Non-positive and
// duplicate sizes are ignored; an empty set falls back to DefaultClasses.
func NewPool(classes ...int) *Pool {
	var sizes []int
	for _, c := range classes {
		if c > 0 {
			sizes = append(sizes, c)
		}
	}
	if len(sizes) == 0 {
		sizes = slices.Clone(DefaultClasses)
	}
	slices.Sort(sizes)
	sizes = slices.Compact(sizes)

	p := &Pool{classes: sizes, pools: make([]sync.Pool, len(sizes))}
	for i, size := range sizes {
		p.pools[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// Classes returns the pool's size classes in ascending order.
func (p *Pool) Classes() []int {
	return slices.Clone(p.classes)
}

// Get returns a slice of length size. Its capacity is the size of the
// class it came from, or exactly size when no class is large enough.
func (p *Pool) Get(size int) []byte {
	if size < 0 {
		size = 0
	}
	i, _ := slices.BinarySearch(p.classes, size)
	if i == len(p.classes) {
		return make([]byte, size)
	}
	buf := *p.pools[i].Get().(*[]byte)
	return buf[:size]
}

// Put returns buf to the class matching its capacity. Slices that match no
// class, including those Get allocated directly, are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	i, ok := slices.BinarySearch(p.classes, cap(buf))
	if !ok {
		return
	}
	full := buf[:cap(buf)]
	p.pools[i].Put(&full)
}

var global = NewPool()

// Get returns a slice of length size from the package-level pool.
func Get(size int) []byte {
	return global.Get(size)
}

// Put returns buf to the package-level pool.
func Put(buf []byte) {
	global.Put(buf)
}
