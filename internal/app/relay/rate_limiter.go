package relay

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/domain"
)

// RateLimiter is a sliding-window message limit per membership.
type RateLimiter struct {
	clock    clock.Clock
	mu       sync.Mutex
	history  map[domain.Membership][]time.Time
	limit    int
	interval time.Duration
}

func NewRateLimiter(clk clock.Clock, limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		clock:    clk,
		history:  make(map[domain.Membership][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RateLimiter) Allow(m domain.Membership) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[m]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[m] = fresh
		return false
	}
	rl.history[m] = append(fresh, now)
	return true
}

func (rl *RateLimiter) Forget(m domain.Membership) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, m)
}
