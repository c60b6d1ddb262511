package ledger

import (
	"hash/fnv"
	"sync"
)

// agentLease serializes appends per agent with a sharded mutex table. Two
// agents hashing to the same shard over-serialize, which is safe; two appends
// for the same agent always contend on the same mutex.
type agentLease struct {
	shards [leaseShards]sync.Mutex
}

const leaseShards = 64

func (l *agentLease) shard(agentID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return &l.shards[h.Sum32()%leaseShards]
}

// acquire blocks until the agent's shard is held and returns the release func.
func (l *agentLease) acquire(agentID string) func() {
	mu := l.shard(agentID)
	mu.Lock()
	return mu.Unlock
}
