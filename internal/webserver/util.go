//nolint:mnd
package webserver

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// avgMetadataReadTime returns a string of the average metadata read time.
func (d *FSDashboard) avgMetadataReadTime() string {
	m := d.fsys.Core().Metrics

	return time.Duration(m.TotalMetadataReadTime.Load() / max(1, m.TotalMetadataReadCount.Load())).String()
}

// avgExtractTime returns a string of the average extraction time.
func (d *FSDashboard) avgExtractTime() string {
	m := d.fsys.Core().Metrics

	return time.Duration(m.TotalExtractTime.Load() / max(1, m.TotalExtractCount.Load())).String()
}

// avgExtractSpeed returns a string of the average extraction throughput.
func (d *FSDashboard) avgExtractSpeed() string {
	bytes := d.fsys.Core().Metrics.TotalExtractBytes.Load()
	ns := d.fsys.Core().Metrics.TotalExtractTime.Load()

	if ns == 0 || bytes <= 0 {
		return "0 B/s"
	}

	bps := float64(bytes) / (float64(ns) / 1e9)

	return humanize.IBytes(uint64(bps)) + "/s"
}

// totalExtractBytes returns a string of the total extracted bytes.
func (d *FSDashboard) totalExtractBytes() string {
	bytes := d.fsys.Core().Metrics.TotalExtractBytes.Load()

	if bytes < 0 {
		return humanize.IBytes(0)
	}

	return humanize.IBytes(uint64(bytes))
}

// totalCacheRatio returns a string of the content cache hit/miss ratio.
func (d *FSDashboard) totalCacheRatio() string {
	hits := d.fsys.Core().Metrics.TotalCacheHits.Load()
	misses := d.fsys.Core().Metrics.TotalCacheMisses.Load()
	total := hits + misses

	if total == 0 {
		return "0.00%"
	}

	perc := (float64(hits) / float64(total)) * 100

	return fmt.Sprintf("%.2f%%", perc)
}

// contentsLimit returns a string of the largest entry held in memory.
func (d *FSDashboard) contentsLimit() string {
	limit := d.fsys.Core().Options.ContentsLimit

	if limit == 0 {
		return "Unlimited"
	}

	return humanize.Bytes(limit)
}

// cacheTTL returns a string of the idle expiry of the content cache.
func (d *FSDashboard) cacheTTL() string {
	ttl := d.fsys.Core().Options.CacheTTL

	if ttl <= 0 {
		return "Never"
	}

	return ttl.String()
}

// enabledOrDisabled returns string "Enabled" or "Disabled" based on a boolean.
func enabledOrDisabled(v bool) string {
	if v {
		return "Enabled"
	}

	return "Disabled"
}
