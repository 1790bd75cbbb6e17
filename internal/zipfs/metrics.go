package zipfs

import (
	"sync/atomic"
	"time"
)

// Metrics contains all metrics which are collected within the filesystem.
type Metrics struct {
	// Errors is the amount of errors reported to the kernel.
	Errors atomic.Int64

	// OpenStreams is the amount of currently open entry streams.
	OpenStreams atomic.Int64

	// TotalOpenedStreams is the amount of opened entry streams.
	TotalOpenedStreams atomic.Int64

	// TotalClosedStreams is the amount of closed entry streams.
	TotalClosedStreams atomic.Int64

	// TotalStreamRewinds is the amount of reopened streams (backward seeks).
	TotalStreamRewinds atomic.Int64

	// TotalMetadataReadTime is time spent answering attributes and listings.
	TotalMetadataReadTime atomic.Int64

	// TotalMetadataReadCount is the amount of attribute and listing requests.
	TotalMetadataReadCount atomic.Int64

	// TotalExtractTime is time spent extracting data from the archive.
	TotalExtractTime atomic.Int64

	// TotalExtractCount is the amount of reads of entry contents.
	TotalExtractCount atomic.Int64

	// TotalExtractBytes is the amount of bytes returned by reads.
	TotalExtractBytes atomic.Int64

	// TotalCacheHits is the amount of reads served by the content cache.
	TotalCacheHits atomic.Int64

	// TotalCacheMisses is the amount of reads that (re)filled the content cache.
	TotalCacheMisses atomic.Int64

	// TotalCacheBypasses is the amount of reads too large for the content cache.
	TotalCacheBypasses atomic.Int64

	// TotalCacheEvictions is the amount of cached paths that were evicted.
	TotalCacheEvictions atomic.Int64
}

// Reset sets all counters (except for the currently open streams) to zero.
func (m *Metrics) Reset() {
	m.Errors.Store(0)
	m.TotalOpenedStreams.Store(0)
	m.TotalClosedStreams.Store(0)
	m.TotalStreamRewinds.Store(0)
	m.TotalMetadataReadTime.Store(0)
	m.TotalMetadataReadCount.Store(0)
	m.TotalExtractTime.Store(0)
	m.TotalExtractCount.Store(0)
	m.TotalExtractBytes.Store(0)
	m.TotalCacheHits.Store(0)
	m.TotalCacheMisses.Store(0)
	m.TotalCacheBypasses.Store(0)
	m.TotalCacheEvictions.Store(0)
}

// opMetric measures one metadata or extraction request.
type opMetric struct {
	fsys      *FS
	startTime time.Time
	isExtract bool
	bytes     int
}

func (fsys *FS) newMetric(isExtract bool) *opMetric {
	return &opMetric{
		fsys:      fsys,
		startTime: time.Now(),
		isExtract: isExtract,
	}
}

// Done records the request into the [Metrics] of the filesystem.
func (m *opMetric) Done() {
	elapsed := time.Since(m.startTime).Nanoseconds()

	if m.isExtract {
		m.fsys.Metrics.TotalExtractTime.Add(elapsed)
		m.fsys.Metrics.TotalExtractCount.Add(1)
		m.fsys.Metrics.TotalExtractBytes.Add(int64(m.bytes))

		return
	}

	m.fsys.Metrics.TotalMetadataReadTime.Add(elapsed)
	m.fsys.Metrics.TotalMetadataReadCount.Add(1)
}
