// Package syncutil provides keyed locking primitives.
package syncutil

import (
	"hash/fnv"
	"sync"
)

const shardCount = 256

// ShardedMutex serializes work per string key over a fixed pool of
// mutexes. Memory stays bounded no matter how many keys are seen; two
// keys hashing to the same shard occasionally block each other, which
// is harmless for correctness.
//
// The floor service keys it by "tenantID/tableID" so status changes on
// one table never contend with another.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the shard for key and returns its unlock function:
//
//	defer locks.Lock(key)()
func (s *ShardedMutex) Lock(key string) func() {
	mu := s.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (s *ShardedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}
