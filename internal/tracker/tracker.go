// Package tracker maintains the bounded in-memory table of media assets
// observed per browser tab.
package tracker

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/media"
)

// DefaultCapacity bounds the number of tracked assets across all tabs.
const DefaultCapacity = 100

type entry struct {
	asset *media.MediaAsset
	// index is the entry's position in the eviction heap, maintained by
	// ageHeap so Upsert can re-heapify after a timestamp refresh.
	index int
}

type tabKey struct {
	tabID int
	key   string
}

// Tracker is a fixed-capacity map of (tab, asset key) to asset metadata.
// Inserting past capacity evicts the single globally-oldest entry by
// LastUpdatedAt; a min-heap keyed on that timestamp keeps eviction at
// O(log n) instead of a linear scan per insert.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	entries  map[tabKey]*entry
	age      ageHeap
	logger   hclog.Logger
}

// New creates a tracker with the given capacity. Non-positive capacities
// fall back to DefaultCapacity.
func New(capacity int, logger hclog.Logger) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		entries:  make(map[tabKey]*entry),
		logger:   logger,
	}
}

// Upsert records an observed asset. If an asset already exists for the
// same (tab, key) pair only its LastUpdatedAt is refreshed; duplicate
// requests never create duplicate assets. A genuinely new asset that
// pushes the table past capacity evicts the oldest tracked entry.
func (t *Tracker) Upsert(asset *media.MediaAsset) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := tabKey{tabID: asset.TabID, key: asset.Key}
	if existing, ok := t.entries[k]; ok {
		existing.asset.LastUpdatedAt = asset.LastUpdatedAt
		heap.Fix(&t.age, existing.index)
		return
	}

	e := &entry{asset: asset}
	t.entries[k] = e
	heap.Push(&t.age, e)

	if len(t.entries) > t.capacity {
		t.evictOldest()
	}
}

// evictOldest removes the single globally-oldest entry. Caller holds the
// lock.
func (t *Tracker) evictOldest() {
	oldest := heap.Pop(&t.age).(*entry)
	delete(t.entries, tabKey{tabID: oldest.asset.TabID, key: oldest.asset.Key})
	t.logger.Debug("evicted oldest asset",
		"key", oldest.asset.Key,
		"tab", oldest.asset.TabID,
		"lastUpdated", oldest.asset.LastUpdatedAt,
	)
}

// Get returns the tracked asset for a (tab, key) pair.
func (t *Tracker) Get(tabID int, key string) (*media.MediaAsset, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[tabKey{tabID: tabID, key: key}]
	if !ok {
		return nil, false
	}
	return e.asset, true
}

// List returns the assets tracked for one tab, newest first, with
// duplicate canonical URLs removed.
func (t *Tracker) List(tabID int) []*media.MediaAsset {
	t.mu.Lock()
	defer t.mu.Unlock()

	var assets []*media.MediaAsset
	for k, e := range t.entries {
		if k.tabID == tabID {
			assets = append(assets, e.asset)
		}
	}

	sort.SliceStable(assets, func(i, j int) bool {
		return assets[i].LastUpdatedAt.After(assets[j].LastUpdatedAt)
	})

	seen := make(map[string]bool, len(assets))
	deduped := assets[:0]
	for _, a := range assets {
		if seen[a.CanonicalURL] {
			continue
		}
		seen[a.CanonicalURL] = true
		deduped = append(deduped, a)
	}
	return deduped
}

// Clear removes every asset tracked for a tab. Used on tab navigation
// and on an explicit user reset.
func (t *Tracker) Clear(tabID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, e := range t.entries {
		if k.tabID != tabID {
			continue
		}
		heap.Remove(&t.age, e.index)
		delete(t.entries, k)
		removed++
	}
	if removed > 0 {
		t.logger.Debug("cleared tab assets", "tab", tabID, "removed", removed)
	}
	return removed
}

// Len returns the number of tracked assets across all tabs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ageHeap orders entries oldest-first by LastUpdatedAt.
type ageHeap []*entry

func (h ageHeap) Len() int { return len(h) }

func (h ageHeap) Less(i, j int) bool {
	return h[i].asset.LastUpdatedAt.Before(h[j].asset.LastUpdatedAt)
}

func (h ageHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *ageHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *ageHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
