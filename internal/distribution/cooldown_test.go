package distribution

import (
	"testing"
	"time"
)

func TestCooldownWindow(t *testing.T) {
	t.Parallel()

	g := NewCooldownGate(1500 * time.Millisecond)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if !g.Accept(1, 10, t0) {
		t.Fatal("first reaction rejected")
	}
	if g.Accept(1, 10, t0.Add(time.Second)) {
		t.Fatal("reaction inside window accepted")
	}
	if !g.Accept(1, 10, t0.Add(1500*time.Millisecond)) {
		t.Fatal("reaction at window boundary rejected")
	}
}

func TestCooldownRejectionDoesNotRefresh(t *testing.T) {
	t.Parallel()

	g := NewCooldownGate(1500 * time.Millisecond)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	g.Accept(1, 10, t0)
	// rejected attempt at t0+1s must not move the window
	g.Accept(1, 10, t0.Add(time.Second))
	if !g.Accept(1, 10, t0.Add(1600*time.Millisecond)) {
		t.Fatal("window was refreshed by a rejected attempt")
	}
}

func TestCooldownKeysAreIndependent(t *testing.T) {
	t.Parallel()

	g := NewCooldownGate(1500 * time.Millisecond)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	g.Accept(1, 10, t0)
	if !g.Accept(1, 11, t0) {
		t.Fatal("different user hit the cooldown")
	}
	if !g.Accept(2, 10, t0) {
		t.Fatal("different drop hit the cooldown")
	}
}

func TestCooldownForget(t *testing.T) {
	t.Parallel()

	g := NewCooldownGate(time.Hour)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	g.Accept(1, 10, t0)
	g.Forget(1)
	if !g.Accept(1, 10, t0) {
		t.Fatal("forgotten drop still on cooldown")
	}
}
