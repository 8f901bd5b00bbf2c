package batch

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a batch id resolves to nothing, either
// because it never existed or because eviction reclaimed it.
var ErrNotFound = errors.New("batch not found")

// Store holds batch results for polling. One batch has exactly one writer
// (its coordinator goroutine); implementations serialize access and hand
// out copies so pollers never observe a result mid-mutation.
type Store interface {
	Put(id string, r *Result) error
	Get(id string) (*Result, error)
	Update(id string, fn func(*Result)) error
	List(limit int) []*Result
}

const (
	// DefaultTTL keeps completed results pollable for an hour.
	DefaultTTL = time.Hour
	// DefaultCapacity bounds how many results stay resident.
	DefaultCapacity = 256
)

// MemoryStore is the in-process Store. Completed results are evicted after
// a TTL or when capacity is exceeded, oldest first. Running batches are
// never evicted; their coordinator still owns them.
type MemoryStore struct {
	mu       sync.RWMutex
	results  map[string]*Result
	order    []string
	ttl      time.Duration
	capacity int
}

// NewMemoryStore builds a store with the given eviction policy. Zero
// values select the defaults.
func NewMemoryStore(ttl time.Duration, capacity int) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		results:  make(map[string]*Result),
		ttl:      ttl,
		capacity: capacity,
	}
}

func (s *MemoryStore) Put(id string, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[id]; exists {
		return errors.New("batch id already stored: " + id)
	}
	s.results[id] = copyResult(r)
	s.order = append(s.order, id)
	s.evictLocked(time.Now())
	return nil
}

func (s *MemoryStore) Get(id string) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyResult(r), nil
}

func (s *MemoryStore) Update(id string, fn func(*Result)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return ErrNotFound
	}
	fn(r)
	return nil
}

// List returns up to limit results, newest submission first.
func (s *MemoryStore) List(limit int) []*Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, copyResult(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len reports resident results.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Sweep runs eviction immediately. The coordinator calls it when batches
// complete; tests call it directly.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(time.Now())
}

// evictLocked drops completed results past their TTL, then drops the
// oldest completed results until capacity holds. Callers hold the write
// lock.
func (s *MemoryStore) evictLocked(now time.Time) {
	keep := s.order[:0]
	for _, id := range s.order {
		r, ok := s.results[id]
		if !ok {
			continue
		}
		if r.Status == StatusCompleted && now.Sub(r.CompletedAt) > s.ttl {
			delete(s.results, id)
			continue
		}
		keep = append(keep, id)
	}
	s.order = keep

	if len(s.results) <= s.capacity {
		return
	}
	excess := len(s.results) - s.capacity
	keep = s.order[:0]
	for _, id := range s.order {
		r := s.results[id]
		if excess > 0 && r != nil && r.Status == StatusCompleted {
			delete(s.results, id)
			excess--
			continue
		}
		keep = append(keep, id)
	}
	s.order = keep
}
