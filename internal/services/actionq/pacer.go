package actionq

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Class tags a pacing category. Each class carries its own base delay; a
// shared jitter band is added on top of every pause.
type Class int

const (
	// ClassAction covers generic platform writes: edits, deletes, posts,
	// thread create and delete.
	ClassAction Class = iota
	// ClassInvite covers adding a member to a thread.
	ClassInvite
	// ClassReaction covers attaching a reaction to a message.
	ClassReaction
	// ClassDirect covers direct messages to users.
	ClassDirect
)

func (c Class) String() string {
	switch c {
	case ClassAction:
		return "action"
	case ClassInvite:
		return "invite"
	case ClassReaction:
		return "reaction"
	case ClassDirect:
		return "direct"
	default:
		return "unknown"
	}
}

const (
	defaultActionDelay   = 100 * time.Millisecond
	defaultInviteDelay   = 300 * time.Millisecond
	defaultReactionDelay = 250 * time.Millisecond
	defaultDirectDelay   = time.Second
	defaultJitterMax     = 150 * time.Millisecond
)

// PacerConfig holds the per-class base delays and the jitter band.
type PacerConfig struct {
	ActionDelay   time.Duration
	InviteDelay   time.Duration
	ReactionDelay time.Duration
	DirectDelay   time.Duration
	JitterMin     time.Duration
	JitterMax     time.Duration
}

func (c PacerConfig) withDefaults() PacerConfig {
	if c.ActionDelay <= 0 {
		c.ActionDelay = defaultActionDelay
	}
	if c.InviteDelay <= 0 {
		c.InviteDelay = defaultInviteDelay
	}
	if c.ReactionDelay <= 0 {
		c.ReactionDelay = defaultReactionDelay
	}
	if c.DirectDelay <= 0 {
		c.DirectDelay = defaultDirectDelay
	}
	if c.JitterMin < 0 {
		c.JitterMin = 0
	}
	if c.JitterMax <= 0 {
		c.JitterMax = defaultJitterMax
	}
	if c.JitterMax < c.JitterMin {
		c.JitterMax = c.JitterMin
	}
	return c
}

// Pacer computes the pause between outbound platform operations. Delays can
// be swapped at runtime via Apply without disturbing an in-flight pause.
type Pacer struct {
	mu  sync.Mutex
	cfg PacerConfig
	rng *rand.Rand
}

func NewPacer(cfg PacerConfig) *Pacer {
	return &Pacer{
		cfg: cfg.withDefaults(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Apply replaces the pacing parameters for subsequent delays.
func (p *Pacer) Apply(cfg PacerConfig) {
	p.mu.Lock()
	p.cfg = cfg.withDefaults()
	p.mu.Unlock()
}

// Delay returns the base delay for class plus a uniformly random jitter
// drawn from the configured band.
func (p *Pacer) Delay(class Class) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	var base time.Duration
	switch class {
	case ClassInvite:
		base = p.cfg.InviteDelay
	case ClassReaction:
		base = p.cfg.ReactionDelay
	case ClassDirect:
		base = p.cfg.DirectDelay
	default:
		base = p.cfg.ActionDelay
	}

	jitter := p.cfg.JitterMin
	if span := p.cfg.JitterMax - p.cfg.JitterMin; span > 0 {
		jitter += time.Duration(p.rng.Int63n(int64(span) + 1))
	}
	return base + jitter
}

// Pause sleeps for Delay(class), returning early if ctx is canceled.
func (p *Pacer) Pause(ctx context.Context, class Class) {
	d := p.Delay(class)
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
