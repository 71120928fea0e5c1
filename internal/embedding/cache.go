package embedding

import (
	"container/list"
	"context"
	"image"
	"sync"

	"github.com/hyperjump/ajimi/internal/fileid"
)

// EmbeddingCache is an LRU cache for embeddings keyed by image ID.
type EmbeddingCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &EmbeddingCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	entry := &cacheEntry{key: key, value: value}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CachedEncoder memoizes another encoder by image content.
type CachedEncoder struct {
	Encoder
	cache *EmbeddingCache
}

// NewCachedEncoder wraps enc with an LRU of the given capacity.
func NewCachedEncoder(enc Encoder, capacity int) *CachedEncoder {
	return &CachedEncoder{Encoder: enc, cache: NewEmbeddingCache(capacity)}
}

// Encode returns a cached embedding when the same pixels were encoded before.
func (c *CachedEncoder) Encode(ctx context.Context, img image.Image) ([]float32, error) {
	key := fileid.ImageID(img)
	if cached, ok := c.cache.Get(key); ok {
		return cloneVector(cached), nil
	}
	emb, err := c.Encoder.Encode(ctx, img)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, cloneVector(emb))
	return emb, nil
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
