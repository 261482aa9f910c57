package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"sync"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// Cache holds the latest analysis result per module, keyed by the snapshot
// hash plus everything else the result depends on. One entry per module:
// a new key replaces the old entry. Thread-safe for concurrent access.
type Cache struct {
	mu      sync.RWMutex
	entries map[model.Module]cacheEntry
}

type cacheEntry struct {
	key    string
	result Result
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[model.Module]cacheEntry)}
}

// Get returns a copy of the cached result when key matches.
func (c *Cache) Get(module model.Module, key string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[module]
	if !ok || e.key != key {
		return Result{}, false
	}
	return e.result.clone(), true
}

// Set stores result under key, replacing any previous entry for module.
func (c *Cache) Set(module model.Module, key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[module] = cacheEntry{key: key, result: result.clone()}
}

// Invalidate clears the cache.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Key returns the cached key for module, or "" when empty.
func (c *Cache) Key(module model.Module) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[module].key
}

// ComputeDataHash returns a stable hash of a collection in snapshot order.
// Order is part of the identity: the same records in another order hash
// differently.
func ComputeDataHash(records []model.Record) string {
	if len(records) == 0 {
		return "empty"
	}
	h := sha256.New()
	sep := []byte{0}
	write := func(s string) {
		h.Write([]byte(s))
		h.Write(sep)
	}
	for i := range records {
		r := &records[i]
		write(r.ID)
		write(string(r.Module))
		write(string(r.Kind))
		write(r.Title)
		write(r.Status)
		write(string(r.Severity))
		write(r.Category)
		write(string(r.Criticality))
		write(r.Bureau)
		write(strconv.FormatUint(math.Float64bits(r.Value), 16))
		write(strconv.FormatUint(math.Float64bits(r.Secondary), 16))
		write(strconv.FormatInt(model.UnixMillis(r.Timestamp), 10))
		write(strconv.FormatInt(model.UnixMillis(r.DueDate), 10))
		for _, a := range r.Assignments {
			write(a.Bureau + "=" + string(a.Role))
		}
		for _, k := range r.AttributeKeys() {
			write(k + "=" + r.Attributes[k])
		}
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
