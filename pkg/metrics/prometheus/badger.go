package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittosmb/pkg/dosattr"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// CacheStatsSource reports badger cache counters keyed by cache type.
type CacheStatsSource interface {
	CacheStats() map[string]dosattr.CacheStats
}

// badgerCollector exports the DOS attribute database's cache counters.
// Values are read from the store on every scrape.
type badgerCollector struct {
	src CacheStatsSource

	hitRatio *prometheus.Desc
	hits     *prometheus.Desc
	misses   *prometheus.Desc
}

// RegisterBadgerMetrics exports src's cache counters.
//
// Does nothing if metrics are not enabled (InitRegistry not called).
func RegisterBadgerMetrics(src CacheStatsSource) error {
	if !metrics.IsEnabled() {
		return nil
	}
	return metrics.GetRegistry().Register(newBadgerCollector(src))
}

func newBadgerCollector(src CacheStatsSource) *badgerCollector {
	labels := []string{"cache_type"} // "block", "index"
	return &badgerCollector{
		src: src,
		hitRatio: prometheus.NewDesc("smb1_dosattr_cache_hit_ratio",
			"DOS attribute database cache hit ratio (0.0 to 1.0) by cache type", labels, nil),
		hits: prometheus.NewDesc("smb1_dosattr_cache_hits_total",
			"Total DOS attribute database cache hits by cache type", labels, nil),
		misses: prometheus.NewDesc("smb1_dosattr_cache_misses_total",
			"Total DOS attribute database cache misses by cache type", labels, nil),
	}
}

func (c *badgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hitRatio
	ch <- c.hits
	ch <- c.misses
}

func (c *badgerCollector) Collect(ch chan<- prometheus.Metric) {
	for cacheType, st := range c.src.CacheStats() {
		ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, st.Ratio, cacheType)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits), cacheType)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses), cacheType)
	}
}
