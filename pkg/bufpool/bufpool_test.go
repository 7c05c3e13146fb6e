package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSizeClasses(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"Zero", 0, ControlSize},
		{"Negotiate", 128, ControlSize},
		{"ControlBoundary", ControlSize, ControlSize},
		{"JustAboveControl", ControlSize + 1, DataSize},
		{"FullRead", 64<<10 + 64, DataSize},
		{"LargeRead", 1<<20 + 64, LargeSize},
		{"Oversized", LargeSize + 1, LargeSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)

			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestNegativeSize(t *testing.T) {
	buf := Get(-5)
	assert.Empty(t, buf)
	Put(buf)
}

func TestNewPoolNormalizesClasses(t *testing.T) {
	p := NewPool(512, -1, 0, 128, 512)
	assert.Equal(t, []int{128, 512}, p.Classes())

	assert.Equal(t, DefaultClasses, NewPool().Classes())
	assert.Equal(t, DefaultClasses, NewPool(0, -3).Classes())
}

func TestPutAndReuse(t *testing.T) {
	p := NewPool(64)

	buf := p.Get(10)
	copy(buf, "frame")
	p.Put(buf)

	again := p.Get(64)
	require.Len(t, again, 64)
	assert.Equal(t, 64, cap(again))
}

func TestPutIgnoresForeignSlices(t *testing.T) {
	p := NewPool(64)

	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(make([]byte, 10))
		p.Put(make([]byte, 0, 65))
	})

	// A re-sliced pooled buffer keeps its capacity and is accepted.
	buf := p.Get(64)
	p.Put(buf[:3])
	assert.Equal(t, 64, cap(p.Get(1)))
}

func TestConcurrentUse(t *testing.T) {
	p := NewPool(256, 4096)
	var wg sync.WaitGroup

	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				size := (seed*131 + i*17) % 5000
				buf := p.Get(size)
				if len(buf) != size {
					t.Errorf("Get(%d) returned length %d", size, len(buf))
					return
				}
				for j := range buf {
					buf[j] = byte(seed)
				}
				p.Put(buf)
			}
		}(g)
	}
	wg.Wait()
}

func BenchmarkGetPut(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := Get(1024)
		Put(buf)
	}
}
