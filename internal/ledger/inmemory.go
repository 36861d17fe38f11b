package ledger

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	challenge Challenge
	evictAt   time.Time
}

// MemoryStore keeps challenges in process. Subjects are spread over independently
// locked shards so different subjects do not contend.
type MemoryStore struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]memoryEntry)}
	}
	return s
}

func (s *MemoryStore) shardFor(subject string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subject))
	return s.shards[h.Sum32()%shardCount]
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, ch Challenge, ttl time.Duration) error {
	sh := s.shardFor(ch.Subject)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.entries[ch.Subject] = memoryEntry{challenge: ch, evictAt: s.now().Add(ttl)}
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, subject string, fn func(*Challenge) (bool, error)) error {
	sh := s.shardFor(subject)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var current *Challenge
	if entry, ok := sh.entries[subject]; ok {
		ch := entry.challenge
		current = &ch
	}
	drop, err := fn(current)
	if drop && current != nil {
		delete(sh.entries, subject)
	}
	return err
}

// Sweep evicts entries whose retention ended before now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for subject, entry := range sh.entries {
			if now.After(entry.evictAt) {
				delete(sh.entries, subject)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(s.now())
		case <-ctx.Done():
			return
		}
	}
}
