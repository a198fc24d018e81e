// Package store keeps track of songs that were already recommended or
// queued, both in memory for fast duplicate checks and on disk for history.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

const bloomFalsePositiveRate = 0.01

// DedupStore is a bounded, thread-safe set of recently recommended track
// IDs. A Bloom filter front rejects most unseen IDs without touching the
// LRU; the LRU bounds memory and decides which old IDs fall out.
type DedupStore struct {
	mu       sync.RWMutex
	bloom    *bloom.BloomFilter
	recent   *lru.Cache[string, struct{}]
	capacity int
}

func NewDedupStore(capacity int) *DedupStore {
	if capacity <= 0 {
		capacity = 1
	}
	recent, _ := lru.New[string, struct{}](capacity)

	return &DedupStore{
		bloom:    bloom.NewWithEstimates(uint(capacity), bloomFalsePositiveRate),
		recent:   recent,
		capacity: capacity,
	}
}

// Has reports whether the track ID was recently recommended. The Bloom
// filter never forgets, so an ID evicted from the LRU correctly reads as
// unseen again via the authoritative LRU lookup.
func (ds *DedupStore) Has(trackID string) bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if !ds.bloom.TestString(trackID) {
		return false
	}
	return ds.recent.Contains(trackID)
}

func (ds *DedupStore) Add(trackID string) {
	if trackID == "" {
		return
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.bloom.AddString(trackID)
	ds.recent.Add(trackID, struct{}{})
}

// Load replaces the store contents with the given track IDs, typically the
// persisted history read at startup. IDs beyond capacity evict oldest-first.
func (ds *DedupStore) Load(trackIDs []string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.recent.Purge()
	ds.bloom = bloom.NewWithEstimates(uint(ds.capacity), bloomFalsePositiveRate)

	for _, trackID := range trackIDs {
		if trackID == "" {
			continue
		}
		ds.bloom.AddString(trackID)
		ds.recent.Add(trackID, struct{}{})
	}
}

// Size returns the number of track IDs currently tracked.
func (ds *DedupStore) Size() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.recent.Len()
}
