package hls

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of media segment payloads kept across all streams.
const DefaultCacheSize = 64

type cacheKey struct {
	stream    StreamID
	rendition RenditionID
	name      string
}

// SegmentCache holds segment payloads served over HTTP. Media segments are
// evicted least recently used first; initialization segments are pinned
// until their stream is removed since every playlist refers to them.
type SegmentCache struct {
	media *lru.Cache[cacheKey, []byte]

	mu   sync.RWMutex
	init map[cacheKey][]byte
}

// NewSegmentCache returns a cache keeping at most size media payloads.
// If size <= 0, DefaultCacheSize is used.
func NewSegmentCache(size int) (*SegmentCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	media, err := lru.New[cacheKey, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create segment cache: %w", err)
	}
	return &SegmentCache{media: media, init: make(map[cacheKey][]byte)}, nil
}

// Put stores a payload under name.
func (c *SegmentCache) Put(streamID StreamID, renditionID RenditionID, name string, data []byte, isInit bool) {
	key := cacheKey{stream: streamID, rendition: renditionID, name: name}
	if isInit {
		c.mu.Lock()
		c.init[key] = data
		c.mu.Unlock()
		return
	}
	c.media.Add(key, data)
}

// Get returns the payload stored under name.
func (c *SegmentCache) Get(streamID StreamID, renditionID RenditionID, name string) ([]byte, bool) {
	key := cacheKey{stream: streamID, rendition: renditionID, name: name}
	c.mu.RLock()
	data, ok := c.init[key]
	c.mu.RUnlock()
	if ok {
		return data, true
	}
	return c.media.Get(key)
}

// RemoveStream drops every payload of a stream.
func (c *SegmentCache) RemoveStream(streamID StreamID) {
	c.mu.Lock()
	for key := range c.init {
		if key.stream == streamID {
			delete(c.init, key)
		}
	}
	c.mu.Unlock()

	for _, key := range c.media.Keys() {
		if key.stream == streamID {
			c.media.Remove(key)
		}
	}
}

// Len returns the number of cached media payloads.
func (c *SegmentCache) Len() int {
	return c.media.Len()
}
