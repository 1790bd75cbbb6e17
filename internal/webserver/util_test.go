package webserver

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Expectation: avgMetadataReadTime should calculate correctly.
func Test_avgMetadataReadTime_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.fsys.Core().Metrics.TotalMetadataReadTime.Store(1_000_000_000)
	dash.fsys.Core().Metrics.TotalMetadataReadCount.Store(10)

	require.Equal(t, "100ms", dash.avgMetadataReadTime())
}

// Expectation: avgMetadataReadTime should handle zero count.
func Test_avgMetadataReadTime_ZeroCount_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.fsys.Core().Metrics.TotalMetadataReadTime.Store(1000)
	dash.fsys.Core().Metrics.TotalMetadataReadCount.Store(0)

	require.Equal(t, "1µs", dash.avgMetadataReadTime())
}

// Expectation: avgExtractTime should calculate correctly.
func Test_avgExtractTime_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.fsys.Core().Metrics.TotalExtractTime.Store(2_000_000_000)
	dash.fsys.Core().Metrics.TotalExtractCount.Store(20)

	require.Equal(t, "100ms", dash.avgExtractTime())
}

// Expectation: avgExtractSpeed should calculate bytes per second correctly.
func Test_avgExtractSpeed_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.fsys.Core().Metrics.TotalExtractBytes.Store(2 * 1024 * 1024)
	dash.fsys.Core().Metrics.TotalExtractTime.Store(1_000_000_000)

	require.Equal(t, "2.0 MiB/s", dash.avgExtractSpeed())
}

// Expectation: avgExtractSpeed should handle zero time.
func Test_avgExtractSpeed_ZeroTime_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.fsys.Core().Metrics.TotalExtractBytes.Store(1024)
	dash.fsys.Core().Metrics.TotalExtractTime.Store(0)

	require.Equal(t, "0 B/s", dash.avgExtractSpeed())
}

// Expectation: totalExtractBytes should format and clamp correctly.
func Test_totalExtractBytes_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.fsys.Core().Metrics.TotalExtractBytes.Store(1536)
	require.Equal(t, "1.5 KiB", dash.totalExtractBytes())

	dash.fsys.Core().Metrics.TotalExtractBytes.Store(-1)
	require.Equal(t, "0 B", dash.totalExtractBytes())
}

// Expectation: totalCacheRatio should calculate the hit ratio correctly.
func Test_totalCacheRatio_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	require.Equal(t, "0.00%", dash.totalCacheRatio())

	dash.fsys.Core().Metrics.TotalCacheHits.Store(3)
	dash.fsys.Core().Metrics.TotalCacheMisses.Store(1)

	require.Equal(t, "75.00%", dash.totalCacheRatio())
}

// Expectation: contentsLimit and cacheTTL should describe their settings.
func Test_cacheSettings_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	opts := dash.fsys.Core().Options

	require.Equal(t, "200 MB", dash.contentsLimit())
	require.Equal(t, "Never", dash.cacheTTL())

	opts.ContentsLimit = 0
	opts.CacheTTL = 30 * time.Second

	require.Equal(t, "Unlimited", dash.contentsLimit())
	require.Equal(t, "30s", dash.cacheTTL())
}

// Expectation: enabledOrDisabled should return the correct strings.
func Test_enabledOrDisabled_Success(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Enabled", enabledOrDisabled(true))
	require.Equal(t, "Disabled", enabledOrDisabled(false))
}
