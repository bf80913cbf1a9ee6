package cache

import "sync"

// DefaultShards is the shard count used by NewShardedStore when n <= 0.
const DefaultShards = 16

// MemoryStore is an in-memory Store guarded by a single RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[uint64][]slot
	size    int
}

// slot pairs a key with its entry so hash collisions can be resolved.
type slot struct {
	key   Key
	entry Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[uint64][]slot),
	}
}

// Lookup returns the entry stored for key.
func (s *MemoryStore) Lookup(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sl := range s.buckets[key.Hash()] {
		if sl.key.Equal(key) {
			return sl.entry, true
		}
	}
	return Entry{}, false
}

// Store records entry for key, replacing the previous entry if present.
func (s *MemoryStore) Store(key Key, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.buckets[key.Hash()]
	for i := range bucket {
		if bucket[i].key.Equal(key) {
			bucket[i].entry = entry
			return
		}
	}
	s.buckets[key.Hash()] = append(bucket, slot{key: key, entry: entry})
	s.size++
}

// Len returns the number of distinct keys held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// ShardedStore spreads keys over several MemoryStores by key hash so that
// writers on different keys rarely contend for the same lock.
type ShardedStore struct {
	shards []*MemoryStore
}

// NewShardedStore creates a store with n shards. n <= 0 uses DefaultShards.
func NewShardedStore(n int) *ShardedStore {
	if n <= 0 {
		n = DefaultShards
	}
	shards := make([]*MemoryStore, n)
	for i := range shards {
		shards[i] = NewMemoryStore()
	}
	return &ShardedStore{shards: shards}
}

func (s *ShardedStore) shard(key Key) *MemoryStore {
	return s.shards[key.Hash()%uint64(len(s.shards))]
}

// Lookup returns the entry stored for key.
func (s *ShardedStore) Lookup(key Key) (Entry, bool) {
	return s.shard(key).Lookup(key)
}

// Store records entry for key, replacing the previous entry if present.
func (s *ShardedStore) Store(key Key, entry Entry) {
	s.shard(key).Store(key, entry)
}

// Len returns the number of distinct keys held across all shards.
func (s *ShardedStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.Len()
	}
	return n
}

// Shards returns the number of shards.
func (s *ShardedStore) Shards() int {
	return len(s.shards)
}

// Ensure both stores implement Store
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*ShardedStore)(nil)
)
