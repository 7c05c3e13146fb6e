package prometheus

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/pkg/dosattr"
)

type fixedStats map[string]dosattr.CacheStats

func (f fixedStats) CacheStats() map[string]dosattr.CacheStats { return f }

func TestBadgerCollector(t *testing.T) {
	c := newBadgerCollector(fixedStats{
		"block": {Hits: 9, Misses: 1, Ratio: 0.9},
	})

	assert.Equal(t, 3, testutil.CollectAndCount(c))

	expected := `
# HELP smb1_dosattr_cache_hits_total Total DOS attribute database cache hits by cache type
# TYPE smb1_dosattr_cache_hits_total counter
smb1_dosattr_cache_hits_total{cache_type="block"} 9
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "smb1_dosattr_cache_hits_total"))
}

func TestBadgerCollectorWithStore(t *testing.T) {
	store, err := dosattr.OpenBadgerInMemory()
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	stats := store.CacheStats()
	assert.Contains(t, stats, "block")
	assert.Contains(t, stats, "index")
	assert.Equal(t, 6, testutil.CollectAndCount(newBadgerCollector(store)))
}
