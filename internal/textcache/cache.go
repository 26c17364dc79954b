// Package textcache holds recognized document text keyed by file fingerprint
// and recognition parameters.
package textcache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Key identifies one recognition run. PageLimit 0 means every page, so a
// one-page preview never shares an entry with a full pass.
type Key struct {
	Fingerprint string
	DPI         int
	PSM         int
	PageLimit   int
}

func (k Key) pages() string {
	if k.PageLimit <= 0 {
		return "all"
	}
	return strconv.Itoa(k.PageLimit)
}

// String renders the key as a stable object-name friendly identifier.
func (k Key) String() string {
	return fmt.Sprintf("%s/dpi-%d_psm-%d_pages-%s", k.Fingerprint, k.DPI, k.PSM, k.pages())
}

// Cache stores recognized text. Entries are write-once.
type Cache interface {
	Get(ctx context.Context, key Key) (string, bool, error)
	Put(ctx context.Context, key Key, text string) error
}

// Stats counts lookups against a Memory cache.
type Stats struct {
	Hits   int64
	Misses int64
}

// Memory is an unbounded in-process cache. It is safe for concurrent use; the
// first Put for a key wins and later Puts are ignored.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]string
	stats   Stats
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Key]string)}
}

func (m *Memory) Get(_ context.Context, key Key) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.entries[key]
	if ok {
		m.stats.Hits++
	} else {
		m.stats.Misses++
	}
	return text, ok, nil
}

func (m *Memory) Put(_ context.Context, key Key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; exists {
		return nil
	}
	m.entries[key] = text
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Stats returns a snapshot of the hit and miss counters.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
