package zipfs

import (
	"time"

	"github.com/desertwitch/zipmount/internal/archive"
	"github.com/jellydator/ttlcache/v3"
)

// cacheValue is either the decompressed contents or an open stream.
type cacheValue struct {
	data   []byte
	stream *archive.Stream
}

// contentCache is the single-slot cache of the content reader. It holds at
// most one path at a time: storing a new path evicts everything before it.
// Lookups and (access-time based) expiry are handled by the [ttlcache.Cache],
// but the open stream is owned by the slot, so that it is always closed on
// eviction, within the goroutine that currently holds the filesystem.
//
// It is not thread-safe, like the [FS] that it belongs to.
type contentCache struct {
	fsys *FS
	slot *ttlcache.Cache[string, *cacheValue]
	held *cacheValue
	key  string
}

func newContentCache(fsys *FS, ttl time.Duration) *contentCache {
	return &contentCache{
		fsys: fsys,
		slot: ttlcache.New(
			ttlcache.WithTTL[string, *cacheValue](ttl),
			ttlcache.WithCapacity[string, *cacheValue](1),
		),
	}
}

func (c *contentCache) get(key string) (*cacheValue, bool) {
	item := c.slot.Get(key)
	if item == nil || item.Value() != c.held {
		return nil, false
	}

	return item.Value(), true
}

func (c *contentCache) contents(key string) ([]byte, bool) {
	v, ok := c.get(key)
	if !ok || v.data == nil {
		return nil, false
	}

	return v.data, true
}

func (c *contentCache) stream(key string) (*archive.Stream, bool) {
	v, ok := c.get(key)
	if !ok || v.stream == nil {
		return nil, false
	}

	return v.stream, true
}

func (c *contentCache) storeContents(key string, data []byte) {
	if data == nil {
		data = []byte{}
	}
	c.store(key, &cacheValue{data: data})
}

func (c *contentCache) storeStream(key string, s *archive.Stream) {
	c.store(key, &cacheValue{stream: s})
}

func (c *contentCache) store(key string, v *cacheValue) {
	c.clear()

	c.held = v
	c.key = key
	c.slot.Set(key, v, ttlcache.DefaultTTL)
}

// clear evicts the held value (closing its stream) and empties the cache.
func (c *contentCache) clear() {
	if c.held != nil {
		if c.held.stream != nil {
			c.fsys.closeStream(c.held.stream)
		}
		c.held = nil
		c.key = ""
		c.fsys.Metrics.TotalCacheEvictions.Add(1)
	}

	c.slot.DeleteAll()
}

// current returns the path held by the slot, if any.
func (c *contentCache) current() (string, bool) {
	if c.held == nil {
		return "", false
	}

	return c.key, true
}
