package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSweep(t *testing.T) {
	rl := NewGlobalRateLimiter(10, 10)
	defer rl.Close()

	rl.getVisitor("203.0.113.1")
	rl.getVisitor("203.0.113.2")

	rl.mu.Lock()
	rl.visitors["203.0.113.1"].lastSeen = time.Now().Add(-10 * time.Minute)
	rl.mu.Unlock()

	rl.sweep(3 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "203.0.113.1", "stale visitor dropped")
	assert.Contains(t, rl.visitors, "203.0.113.2", "active visitor kept")
}

func TestRateLimiterCloseIdempotent(t *testing.T) {
	rl := NewGlobalRateLimiter(10, 10)
	rl.Close()
	rl.Close()
}

func TestRateLimiterVisitorReuse(t *testing.T) {
	rl := NewGlobalRateLimiter(10, 10)
	defer rl.Close()

	a := rl.getVisitor("203.0.113.1")
	b := rl.getVisitor("203.0.113.1")
	assert.Same(t, a, b, "one limiter per IP")
}
