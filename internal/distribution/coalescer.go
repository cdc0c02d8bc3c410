package distribution

import (
	"sync"
	"sync/atomic"
	"time"
)

// Coalescer collapses bursts of state changes on the same drop into a
// single deferred render. Each Schedule cancels the previous pending flush
// for that id and arms a fresh timer, so only the final state of a burst is
// rendered.
type Coalescer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[int]*renderTask
	fire    func(id int)
}

type renderTask struct {
	timer    *time.Timer
	canceled atomic.Bool
}

func NewCoalescer(window time.Duration, fire func(id int)) *Coalescer {
	if window <= 0 {
		window = 1500 * time.Millisecond
	}
	return &Coalescer{
		window:  window,
		pending: map[int]*renderTask{},
		fire:    fire,
	}
}

// SetWindow changes the debounce window for timers armed after the call.
func (c *Coalescer) SetWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	c.mu.Lock()
	c.window = window
	c.mu.Unlock()
}

// Schedule arms (or re-arms) the deferred render for id.
func (c *Coalescer) Schedule(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.pending[id]; ok {
		prev.canceled.Store(true)
		prev.timer.Stop()
	}

	t := &renderTask{}
	t.timer = time.AfterFunc(c.window, func() {
		// The cancel flag is the authority: Stop can lose the race with
		// an already-running timer goroutine.
		if t.canceled.Load() {
			return
		}
		c.mu.Lock()
		if c.pending[id] == t {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		c.fire(id)
	})
	c.pending[id] = t
}

// Cancel drops any pending render for id without firing it.
func (c *Coalescer) Cancel(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.pending[id]; ok {
		t.canceled.Store(true)
		t.timer.Stop()
		delete(c.pending, id)
	}
}

// Stop cancels every pending render.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.pending {
		t.canceled.Store(true)
		t.timer.Stop()
		delete(c.pending, id)
	}
}
