package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveUpstreamFetch(t *testing.T) {
	before := testutil.ToFloat64(upstreamFetchTotal.WithLabelValues("test-source", OutcomeHTTPError))

	ObserveUpstreamFetch("test-source", OutcomeHTTPError, 150*time.Millisecond)
	ObserveUpstreamFetch("test-source", OutcomeHTTPError, 20*time.Millisecond)

	after := testutil.ToFloat64(upstreamFetchTotal.WithLabelValues("test-source", OutcomeHTTPError))
	assert.Equal(t, before+2, after)
}

func TestCacheCounters(t *testing.T) {
	hits := testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("miss"))
	refreshes := testutil.ToFloat64(cacheRefreshTotal.WithLabelValues(RefreshShared))

	IncCacheHits()
	IncCacheMisses()
	IncCacheMisses()
	IncCacheRefresh(RefreshShared)

	assert.Equal(t, hits+1, testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("miss")))
	assert.Equal(t, refreshes+1, testutil.ToFloat64(cacheRefreshTotal.WithLabelValues(RefreshShared)))
}
