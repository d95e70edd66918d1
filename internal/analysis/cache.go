package analysis

import (
	"fmt"
	"os"
)

// KeyPolicy selects how thumbnail cache keys are derived.
type KeyPolicy string

const (
	// KeyPolicyPath keys entries by document path alone.
	KeyPolicyPath KeyPolicy = "path"

	// KeyPolicyMTime salts the key with the file's modification time, so a
	// document changed on disk misses the cache and re-renders.
	KeyPolicyMTime KeyPolicy = "mtime"
)

// thumbCache is a bounded PNG cache with insertion-order (FIFO) eviction.
// Eviction is deliberately not access-ordered: the oldest inserted entry
// goes first regardless of hits. Not safe for concurrent use on its own;
// the scheduler guards it with its registry lock.
type thumbCache struct {
	capacity int
	entries  map[string][]byte
	order    []string
}

func newThumbCache(capacity int) *thumbCache {
	return &thumbCache{
		capacity: capacity,
		entries:  make(map[string][]byte),
	}
}

func (c *thumbCache) get(key string) ([]byte, bool) {
	png, ok := c.entries[key]
	return png, ok
}

func (c *thumbCache) put(key string, png []byte) {
	if _, exists := c.entries[key]; exists {
		c.entries[key] = png
		return
	}

	if len(c.entries) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = png
	c.order = append(c.order, key)
}

func (c *thumbCache) clear() {
	c.entries = make(map[string][]byte)
	c.order = nil
}

func (c *thumbCache) len() int {
	return len(c.entries)
}

// cacheKey derives the cache key for a document under the given policy.
// The render resolution is part of the key so that thumbnails rendered at
// different sizes never collide. When the file cannot be stat'ed under the
// mtime policy, the path-only key is used; a later successful render of a
// changed file will then overwrite it rather than leak a stale entry.
func cacheKey(path string, dpi int, policy KeyPolicy) string {
	if policy == KeyPolicyMTime {
		if info, err := os.Stat(path); err == nil {
			return fmt.Sprintf("%s|%d|%d", path, dpi, info.ModTime().UnixNano())
		}
	}
	return fmt.Sprintf("%s|%d", path, dpi)
}
