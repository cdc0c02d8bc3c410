package distribution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"dropbot/internal/eventbus"
	"dropbot/internal/services/actionq"
	"dropbot/internal/transport"
	"dropbot/pkg/logx"
)

func newTestExecutor(ad *fakeAdapter) (*Executor, *Registry, *NotifyGate, *time.Time) {
	reg := NewRegistry()
	gate := NewNotifyGate(time.Hour)
	pacer := actionq.NewPacer(actionq.PacerConfig{
		ActionDelay:   time.Microsecond,
		InviteDelay:   time.Microsecond,
		ReactionDelay: time.Microsecond,
		DirectDelay:   time.Microsecond,
		JitterMin:     time.Microsecond,
		JitterMax:     2 * time.Microsecond,
	})
	e := NewExecutor(logx.Nop(), eventbus.New(), ad, pacer, reg, gate)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	e.now = func() time.Time { return *clock }
	return e, reg, gate, clock
}

func TestExecutorCreateThreadAttachesHandle(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	e, reg, _, _ := newTestExecutor(ad)
	reg.Put(newRecord(5, 2))

	job := actionq.Job{
		Kind:           actionq.KindCreateThread,
		Ref:            transport.MessageRef{ChatID: -1001, MessageID: 5},
		DistributionID: 5,
		ThreadName:     "item drop",
	}
	if err := e.Execute(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	d, _ := reg.Get(5)
	if d.Thread.IsZero() {
		t.Fatal("thread handle not attached")
	}
}

func TestExecutorThreadJobsSkipClosedDrop(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	e, _, _, _ := newTestExecutor(ad)

	// no record registered: both jobs are silent no-ops
	create := actionq.Job{Kind: actionq.KindCreateThread, DistributionID: 9}
	if err := e.Execute(context.Background(), create); err != nil {
		t.Fatal(err)
	}
	if ad.threads != 0 {
		t.Fatal("thread created for a closed drop")
	}
	member := actionq.Job{Kind: actionq.KindAddThreadMember, DistributionID: 9, User: user(2, "bob")}
	if err := e.Execute(context.Background(), member); err != nil {
		t.Fatal(err)
	}
}

func TestExecutorMemberResolvesThreadAtRuntime(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	e, reg, _, _ := newTestExecutor(ad)
	reg.Put(newRecord(5, 1))

	// member job before the thread exists: skipped, not failed
	member := actionq.Job{Kind: actionq.KindAddThreadMember, DistributionID: 5, User: user(2, "bob")}
	if err := e.Execute(context.Background(), member); err != nil {
		t.Fatal(err)
	}

	reg.SetThread(5, transport.ThreadRef{ChatID: -1001, ThreadID: 7})
	if err := e.Execute(context.Background(), member); err != nil {
		t.Fatal(err)
	}
}

func TestExecutorNotifySaleGating(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	e, _, gate, _ := newTestExecutor(ad)

	optedIn := user(2, "bob")
	optedOut := user(3, "carol")
	bot := transport.User{ID: 4, Username: "helper", IsBot: true}
	gate.Toggle(optedIn.ID)
	gate.Toggle(bot.ID)

	job := actionq.Job{Kind: actionq.KindNotifySale, Sale: &actionq.SalePayload{
		DistributionID: 5,
		Item:           "mystic sword",
		CreatorName:    "alice",
		Recipients:     []transport.User{optedIn, optedOut, bot},
	}}
	if err := e.Execute(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if got := len(ad.directs[optedIn.ID]); got != 1 {
		t.Fatalf("opted-in DMs %d, want 1", got)
	}
	if len(ad.directs[optedOut.ID]) != 0 {
		t.Fatal("opted-out recipient got a DM")
	}
	if len(ad.directs[bot.ID]) != 0 {
		t.Fatal("bot got a DM")
	}
}

func TestExecutorNotifySaleCooldown(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	e, _, gate, clock := newTestExecutor(ad)
	bob := user(2, "bob")
	gate.Toggle(bob.ID)

	job := actionq.Job{Kind: actionq.KindNotifySale, Sale: &actionq.SalePayload{
		DistributionID: 5,
		Item:           "mystic sword",
		Recipients:     []transport.User{bob},
	}}
	if err := e.Execute(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	// second sale 30 minutes later stays silent
	*clock = clock.Add(30 * time.Minute)
	if err := e.Execute(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if got := len(ad.directs[bob.ID]); got != 1 {
		t.Fatalf("DMs inside cooldown: %d, want 1", got)
	}
	// and 61 minutes after the first, it goes out again
	*clock = clock.Add(31 * time.Minute)
	if err := e.Execute(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if got := len(ad.directs[bob.ID]); got != 2 {
		t.Fatalf("DMs after cooldown: %d, want 2", got)
	}
}

func TestExecutorNotifySaleRefusalDoesNotStartCooldown(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	e, _, gate, _ := newTestExecutor(ad)
	bob := user(2, "bob")
	gate.Toggle(bob.ID)

	job := actionq.Job{Kind: actionq.KindNotifySale, Sale: &actionq.SalePayload{
		DistributionID: 5,
		Item:           "mystic sword",
		Recipients:     []transport.User{bob},
	}}
	ad.directErr = fmt.Errorf("dm: %w", transport.ErrPermissionDenied)
	if err := e.Execute(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	ad.directErr = nil
	if err := e.Execute(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if got := len(ad.directs[bob.ID]); got != 1 {
		t.Fatalf("refused DM started the cooldown: %d DMs", got)
	}
}

func TestExecutorUnknownKind(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	e, _, _, _ := newTestExecutor(ad)
	if err := e.Execute(context.Background(), actionq.Job{Kind: "bogus"}); err == nil {
		t.Fatal("unknown kind accepted")
	}
}
