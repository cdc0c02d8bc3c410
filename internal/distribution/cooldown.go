package distribution

import (
	"sync"
	"time"
)

// CooldownGate rate-limits reaction processing per (drop, user) pair. A
// reaction inside the window of the previous accepted one is dropped
// without refreshing the window.
type CooldownGate struct {
	mu     sync.Mutex
	window time.Duration
	last   map[cooldownKey]time.Time
}

type cooldownKey struct {
	dist int
	user int64
}

func NewCooldownGate(window time.Duration) *CooldownGate {
	if window <= 0 {
		window = 1500 * time.Millisecond
	}
	return &CooldownGate{
		window: window,
		last:   map[cooldownKey]time.Time{},
	}
}

func (g *CooldownGate) SetWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	g.mu.Lock()
	g.window = window
	g.mu.Unlock()
}

// Accept reports whether a reaction from user on dist at now may proceed,
// and records now as the last accepted time when it may.
func (g *CooldownGate) Accept(dist int, user int64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := cooldownKey{dist: dist, user: user}
	if last, ok := g.last[k]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[k] = now
	return true
}

// Forget clears cooldown state for a closed drop.
func (g *CooldownGate) Forget(dist int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.last {
		if k.dist == dist {
			delete(g.last, k)
		}
	}
}
