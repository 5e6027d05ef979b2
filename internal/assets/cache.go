package assets

import "sync"

// BufferCache is the process-wide cache of decoded PCM buffers keyed by
// asset id. It is populated lazily on first use and never evicted; render and
// playback both read through it so an asset decodes at most once per
// process. Unbounded growth is a known hardening target.
type BufferCache struct {
	store   *Store
	mu      sync.RWMutex
	buffers map[string]*Buffer
}

// NewBufferCache creates an empty cache reading through the asset store.
func NewBufferCache(store *Store) *BufferCache {
	return &BufferCache{
		store:   store,
		buffers: make(map[string]*Buffer),
	}
}

// Get returns the decoded buffer for an asset, decoding it on first use.
func (c *BufferCache) Get(assetID string) (*Buffer, error) {
	c.mu.RLock()
	buf, ok := c.buffers[assetID]
	c.mu.RUnlock()
	if ok {
		return buf, nil
	}

	_, path, err := c.store.Resolve(assetID)
	if err != nil {
		return nil, err
	}
	buf, err = DecodePCM(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another goroutine may have decoded concurrently; last one wins, the
	// buffers are identical.
	c.buffers[assetID] = buf
	c.mu.Unlock()
	return buf, nil
}

// Invalidate drops a cached buffer, used when an asset is deleted.
func (c *BufferCache) Invalidate(assetID string) {
	c.mu.Lock()
	delete(c.buffers, assetID)
	c.mu.Unlock()
}

// Size returns the number of cached buffers.
func (c *BufferCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buffers)
}
