package actionq

import (
	"testing"
	"time"
)

func TestPacerDelayBounds(t *testing.T) {
	t.Parallel()

	cfg := PacerConfig{
		ActionDelay:   100 * time.Millisecond,
		InviteDelay:   300 * time.Millisecond,
		ReactionDelay: 250 * time.Millisecond,
		DirectDelay:   time.Second,
		JitterMin:     0,
		JitterMax:     150 * time.Millisecond,
	}
	p := NewPacer(cfg)

	cases := []struct {
		name  string
		class Class
		base  time.Duration
	}{
		{"action", ClassAction, cfg.ActionDelay},
		{"invite", ClassInvite, cfg.InviteDelay},
		{"reaction", ClassReaction, cfg.ReactionDelay},
		{"direct", ClassDirect, cfg.DirectDelay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				d := p.Delay(tc.class)
				if d < tc.base || d > tc.base+cfg.JitterMax {
					t.Fatalf("delay %v outside [%v, %v]", d, tc.base, tc.base+cfg.JitterMax)
				}
			}
		})
	}
}

func TestPacerJitterBand(t *testing.T) {
	t.Parallel()

	p := NewPacer(PacerConfig{
		ActionDelay: 10 * time.Millisecond,
		JitterMin:   5 * time.Millisecond,
		JitterMax:   6 * time.Millisecond,
	})
	for i := 0; i < 100; i++ {
		d := p.Delay(ClassAction)
		if d < 15*time.Millisecond || d > 16*time.Millisecond {
			t.Fatalf("delay %v outside jitter band", d)
		}
	}
}

func TestPacerDefaults(t *testing.T) {
	t.Parallel()

	p := NewPacer(PacerConfig{})
	if d := p.Delay(ClassDirect); d < time.Second {
		t.Fatalf("default direct delay %v below 1s", d)
	}
	if d := p.Delay(ClassAction); d < 100*time.Millisecond {
		t.Fatalf("default action delay %v below 100ms", d)
	}
}

func TestPacerApply(t *testing.T) {
	t.Parallel()

	p := NewPacer(PacerConfig{ActionDelay: time.Hour, JitterMax: time.Millisecond})
	p.Apply(PacerConfig{ActionDelay: time.Millisecond, JitterMax: time.Millisecond})
	if d := p.Delay(ClassAction); d > 2*time.Millisecond {
		t.Fatalf("delay %v did not pick up new config", d)
	}
}
