package dosattr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	bs, err := OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": bs,
	}
}

func TestStoreGetSet(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "public", "a.txt")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "public", "a.txt", 0x22))
			got, ok, err := s.Get(ctx, "PUBLIC", "a.txt")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, uint16(0x22), got)

			_, ok, err = s.Get(ctx, "other", "a.txt")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreRenameSubtree(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "s", "dir", 0x10))
			require.NoError(t, s.Set(ctx, "s", "dir/f", 0x02))
			require.NoError(t, s.Set(ctx, "s", "dirx", 0x04))
			require.NoError(t, s.Set(ctx, "s", "moved", 0x01))

			require.NoError(t, s.Rename(ctx, "s", "dir", "moved"))

			got, ok, _ := s.Get(ctx, "s", "moved/f")
			assert.True(t, ok)
			assert.Equal(t, uint16(0x02), got)

			got, _, _ = s.Get(ctx, "s", "moved")
			assert.Equal(t, uint16(0x10), got)

			_, ok, _ = s.Get(ctx, "s", "dir/f")
			assert.False(t, ok)

			// A sibling sharing the prefix is untouched.
			got, ok, _ = s.Get(ctx, "s", "dirx")
			assert.True(t, ok)
			assert.Equal(t, uint16(0x04), got)
		})
	}
}

func TestStoreDeleteSubtree(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "s", "d", 0x10))
			require.NoError(t, s.Set(ctx, "s", "d/x", 0x02))
			require.NoError(t, s.Set(ctx, "s", "dd", 0x02))

			require.NoError(t, s.Delete(ctx, "s", "d"))

			_, ok, _ := s.Get(ctx, "s", "d/x")
			assert.False(t, ok)
			_, ok, _ = s.Get(ctx, "s", "dd")
			assert.True(t, ok)
		})
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Set(context.Background(), "s", "p", 1), ErrClosed)
}
