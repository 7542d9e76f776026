package httpvfs

import (
	"sync"
	"time"
)

// CachedChunk is one fetched aligned segment of the remote file. Data is never
// modified after the chunk is stored.
type CachedChunk struct {
	ID        int64
	Data      []byte
	FetchedAt time.Time
}

// ChunkCache keeps fetched segments keyed by their aligned index.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
type ChunkCache struct {
	mu     sync.RWMutex
	chunks map[int64]*CachedChunk
	bytes  int64
}

// NewChunkCache creates an empty cache.
func NewChunkCache() *ChunkCache {
	return &ChunkCache{chunks: make(map[int64]*CachedChunk)}
}

// Get returns the chunk stored under id.
func (c *ChunkCache) Get(id int64) (*CachedChunk, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunk, ok := c.chunks[id]
	return chunk, ok
}

// Put stores data under id, replacing any previous chunk wholesale.
func (c *ChunkCache) Put(id int64, data []byte) *CachedChunk {
	chunk := &CachedChunk{ID: id, Data: data, FetchedAt: time.Now()}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.chunks[id]; ok {
		c.bytes -= int64(len(old.Data))
	}
	c.chunks[id] = chunk
	c.bytes += int64(len(data))
	return chunk
}

// Len returns the number of cached chunks.
func (c *ChunkCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// Bytes returns the number of cached bytes.
func (c *ChunkCache) Bytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}
