package distribution

import (
	"sync"
	"time"
)

// NotifyGate decides who receives sale direct messages. A user must have
// opted in, and at most one DM is sent per user per cooldown window across
// all drops.
type NotifyGate struct {
	mu       sync.Mutex
	cooldown time.Duration
	optIn    map[int64]struct{}
	lastSent map[int64]time.Time
}

func NewNotifyGate(cooldown time.Duration) *NotifyGate {
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &NotifyGate{
		cooldown: cooldown,
		optIn:    map[int64]struct{}{},
		lastSent: map[int64]time.Time{},
	}
}

func (g *NotifyGate) SetCooldown(cooldown time.Duration) {
	if cooldown <= 0 {
		return
	}
	g.mu.Lock()
	g.cooldown = cooldown
	g.mu.Unlock()
}

// Toggle flips the user's opt-in state and returns the new state.
func (g *NotifyGate) Toggle(user int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.optIn[user]; ok {
		delete(g.optIn, user)
		return false
	}
	g.optIn[user] = struct{}{}
	return true
}

// OptedIn reports the user's current opt-in state.
func (g *NotifyGate) OptedIn(user int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.optIn[user]
	return ok
}

// Allow reports whether a sale DM to user may be attempted at now: the user
// is opted in and outside the per-user cooldown.
func (g *NotifyGate) Allow(user int64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.optIn[user]; !ok {
		return false
	}
	if last, ok := g.lastSent[user]; ok && now.Sub(last) < g.cooldown {
		return false
	}
	return true
}

// MarkNotified records a successful DM at now; only successful deliveries
// start the cooldown.
func (g *NotifyGate) MarkNotified(user int64, now time.Time) {
	g.mu.Lock()
	g.lastSent[user] = now
	g.mu.Unlock()
}
