// Package store tracks catalog URIs already scheduled for a playlist so an
// input list naming the same song twice adds the track once.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SeenStore is a bounded, thread-safe membership set over track URIs. The
// Bloom filter answers the common negative case without touching the LRU;
// the LRU is the authoritative bounded set.
type SeenStore struct {
	bloom    *bloom.BloomFilter
	lru      *lru.Cache[string, struct{}]
	mutex    sync.RWMutex
	capacity int
	fpRate   float64
}

func NewSeenStore(capacity int, falsePositiveRate float64) *SeenStore {
	if capacity < 1 {
		capacity = 1
	}
	cache, _ := lru.New[string, struct{}](capacity)

	return &SeenStore{
		bloom:    bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		lru:      cache,
		capacity: capacity,
		fpRate:   falsePositiveRate,
	}
}

// Seen reports whether the URI has been marked.
func (s *SeenStore) Seen(uri string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.bloom.TestString(uri) {
		return false
	}
	return s.lru.Contains(uri)
}

// MarkSeen records the URI and reports whether it was new. The first call for
// a URI returns true; repeats return false.
func (s *SeenStore) MarkSeen(uri string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.bloom.TestString(uri) && s.lru.Contains(uri) {
		return false
	}

	s.bloom.AddString(uri)
	s.lru.Add(uri, struct{}{})
	return true
}

// FilterNew returns the URIs not seen before, marking each as it passes.
// Order is preserved.
func (s *SeenStore) FilterNew(uris []string) []string {
	fresh := make([]string, 0, len(uris))
	for _, uri := range uris {
		if s.MarkSeen(uri) {
			fresh = append(fresh, uri)
		}
	}
	return fresh
}

// Size returns the number of URIs currently tracked.
func (s *SeenStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lru.Len()
}

// Reset clears the store.
func (s *SeenStore) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.bloom = bloom.NewWithEstimates(uint(s.capacity), s.fpRate)
	s.lru.Purge()
}
