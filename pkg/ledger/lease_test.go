package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeaseSameAgentSameShard(t *testing.T) {
	var l agentLease
	assert.Same(t, l.shard("agent-1"), l.shard("agent-1"))
}

func TestLeaseSerializesCriticalSection(t *testing.T) {
	var l agentLease

	const n = 50
	var wg sync.WaitGroup
	inSection := 0
	maxSeen := 0
	var obs sync.Mutex

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.acquire("agent-1")
			defer release()

			obs.Lock()
			inSection++
			if inSection > maxSeen {
				maxSeen = inSection
			}
			obs.Unlock()

			obs.Lock()
			inSection--
			obs.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen, "at most one holder per agent")
}
