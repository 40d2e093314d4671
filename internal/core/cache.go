package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"mofgen/internal/analysis"
)

// DefaultCacheSize bounds the tool result cache when none is configured.
const DefaultCacheSize = 256

// ResultCache memoizes successful tool results keyed by tool, options and the
// structure's CIF text. A nil *ResultCache caches nothing.
type ResultCache struct {
	entries *lru.Cache[string, any]
}

// NewResultCache returns a cache holding at most size results. size <= 0
// returns nil.
func NewResultCache(size int) (*ResultCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}
	return &ResultCache{entries: entries}, nil
}

// Len reports the number of cached results.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge drops every cached result.
func (c *ResultCache) Purge() {
	if c != nil {
		c.entries.Purge()
	}
}

func (c *ResultCache) get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *ResultCache) add(key string, v any) {
	if c != nil {
		c.entries.Add(key, v)
	}
}

func cacheKey(tool string, opts analysis.Options, cif string) string {
	sum := sha256.Sum256([]byte(cif))
	return tool + "\x00" + strings.Join(opts.Args(), "\x1f") + "\x00" + hex.EncodeToString(sum[:])
}

// cached returns a cached result for key or runs call and caches its result
// when it succeeds.
func cached[T any](c *ResultCache, key string, call func() (T, error)) (T, bool, error) {
	if v, ok := c.get(key); ok {
		if out, ok := v.(T); ok {
			return out, true, nil
		}
	}
	out, err := call()
	if err != nil {
		return out, false, err
	}
	c.add(key, out)
	return out, false, nil
}
