// Package preview keeps a bounded, insertion-ordered cache of page preview
// files. Cached files are copies owned by the cache; evicting or removing an
// entry releases its file from disk.
package preview

import (
	"log/slog"
)

// Asset is one cached preview entry.
type Asset struct {
	Path      string
	FileName  string
	PageCount int
}

// Eviction reports a removed entry so callers can scrub their own bookkeeping
// (session ownership, result references).
type Eviction struct {
	Token string
	Path  string
}

// Cache is a FIFO-bounded token -> Asset map. It is not safe for concurrent
// use; the engine serializes access under its own lock.
type Cache struct {
	maxAssets int
	store     *Store
	assets    map[string]Asset
	order     []string
	logger    *slog.Logger
}

func NewCache(maxAssets int, store *Store, logger *slog.Logger) *Cache {
	if maxAssets < 0 {
		maxAssets = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		maxAssets: maxAssets,
		store:     store,
		assets:    make(map[string]Asset),
		logger:    logger,
	}
}

// Put inserts or replaces the asset for token, then enforces the capacity
// bound. Oldest entries go first; the just-inserted token is kept unless the
// cache is still over capacity after evicting everything else (MaxAssets == 0
// rejects its own insert). Returns the evicted entries, already released from
// disk.
func (c *Cache) Put(token string, asset Asset) []Eviction {
	if _, exists := c.assets[token]; !exists {
		c.order = append(c.order, token)
	}
	c.assets[token] = asset
	return c.enforceLimit(token)
}

// Get looks up a cached asset.
func (c *Cache) Get(token string) (Asset, bool) {
	a, ok := c.assets[token]
	return a, ok
}

// Remove drops exactly the given tokens, releasing their files. Unknown tokens
// are ignored.
func (c *Cache) Remove(tokens []string) []Eviction {
	var out []Eviction
	for _, t := range tokens {
		if ev, ok := c.pop(t); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Clear empties the cache, releasing every file.
func (c *Cache) Clear() []Eviction {
	tokens := make([]string, len(c.order))
	copy(tokens, c.order)
	return c.Remove(tokens)
}

// Tokens returns the current tokens in insertion order.
func (c *Cache) Tokens() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Cache) Len() int { return len(c.assets) }

func (c *Cache) enforceLimit(justInserted string) []Eviction {
	overflow := len(c.assets) - c.maxAssets
	if overflow <= 0 {
		return nil
	}

	var out []Eviction
	candidates := make([]string, len(c.order))
	copy(candidates, c.order)
	for _, candidate := range candidates {
		if overflow <= 0 {
			break
		}
		// Prefer keeping the entry we just inserted unless evicting every
		// other entry still leaves us over capacity.
		if candidate == justInserted && overflow < len(c.order) {
			continue
		}
		if ev, ok := c.pop(candidate); ok {
			out = append(out, ev)
			overflow--
		}
	}
	if len(out) > 0 {
		c.logger.Info("preview.cache.evicted", "count", len(out), "size", len(c.assets), "max", c.maxAssets)
	}
	return out
}

func (c *Cache) pop(token string) (Eviction, bool) {
	asset, ok := c.assets[token]
	if !ok {
		return Eviction{}, false
	}
	delete(c.assets, token)
	for i, t := range c.order {
		if t == token {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.store != nil {
		c.store.Remove(asset.Path)
	}
	return Eviction{Token: token, Path: asset.Path}, true
}
