// Package eventbus fans domain events out to in-process subscribers. The app
// layer listens for logging and the audit trail; tests listen to observe side
// effects without poking internals.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the core.
const (
	TypeDistributionCreated   = "distribution.created"
	TypeDistributionRender    = "distribution.render"
	TypeDistributionCompleted = "distribution.completed"
	TypeJobFailed             = "queue.job_failed"
	TypeNotifySent            = "notify.sent"
	TypeNotifySkipped         = "notify.skipped"
	TypeReminderPosted        = "reminder.posted"
)

// Event carries one domain occurrence. Publish never blocks, so a subscriber
// that falls behind its buffer loses events; nothing in the core depends on
// delivery.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It runs no goroutines of its own.
func New() Bus {
	return &fanout{subs: map[uint64]chan Event{}}
}

type fanout struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// An unsubscribe may close the channel between the snapshot and the
		// send; the recover absorbs that race.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
