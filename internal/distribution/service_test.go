package distribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"dropbot/internal/services/actionq"
	"dropbot/internal/transport"
)

func createDrop(t *testing.T, svc *Service, recipients ...transport.User) int {
	t.Helper()
	id, err := svc.Create(context.Background(),
		transport.ChatTarget{ChatID: -1001}, user(1, "alice"), "mystic sword", recipients)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestCreateRegistersAndEnqueues(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	q := &fakeQueue{}
	svc, _ := newTestService(ad, q)

	id := createDrop(t, svc, user(2, "bob"), user(3, "carol"))

	d, ok := svc.Registry().Get(id)
	if !ok {
		t.Fatal("record not registered")
	}
	if d.ID != d.Announce.MessageID {
		t.Fatalf("id %d != announcement message id %d", d.ID, d.Announce.MessageID)
	}
	if d.Price != PriceUnset {
		t.Fatalf("price %q, want %q", d.Price, PriceUnset)
	}

	if got := len(q.byKind(actionq.KindEditMessage)); got != 1 {
		t.Fatalf("edit jobs %d, want 1", got)
	}
	if got := len(q.byKind(actionq.KindCreateThread)); got != 1 {
		t.Fatalf("thread jobs %d, want 1", got)
	}
	// creator + both recipients
	if got := len(q.byKind(actionq.KindAddThreadMember)); got != 3 {
		t.Fatalf("member jobs %d, want 3", got)
	}
	// two markers + complete + sale
	reactions := q.byKind(actionq.KindAddReaction)
	if len(reactions) != 4 {
		t.Fatalf("reaction jobs %d, want 4", len(reactions))
	}
	wantSymbols := []string{numberMarkers[0], numberMarkers[1], SymbolComplete, SymbolSale}
	for i, j := range reactions {
		if j.Symbol != wantSymbols[i] {
			t.Fatalf("reaction %d is %q, want %q", i, j.Symbol, wantSymbols[i])
		}
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	svc, _ := newTestService(ad, &fakeQueue{})
	ctx := context.Background()
	chat := transport.ChatTarget{ChatID: -1001}

	if _, err := svc.Create(ctx, chat, user(1, "a"), "  ", []transport.User{user(2, "b")}); err == nil {
		t.Fatal("empty item accepted")
	}
	if _, err := svc.Create(ctx, chat, user(1, "a"), "item", nil); err == nil {
		t.Fatal("empty recipient list accepted")
	}
}

func TestCreateCapsRecipients(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	q := &fakeQueue{}
	svc, _ := newTestService(ad, q)

	var many []transport.User
	for i := 0; i < 15; i++ {
		many = append(many, user(int64(100+i), fmt.Sprintf("u%d", i)))
	}
	id := createDrop(t, svc, many...)

	d, _ := svc.Registry().Get(id)
	if len(d.Recipients) != MaxRecipients {
		t.Fatalf("recipients %d, want %d", len(d.Recipients), MaxRecipients)
	}
	// ten markers, then only the budget remainder of the two extras
	reactions := q.byKind(actionq.KindAddReaction)
	if len(reactions) != maxReactionsPerMessage {
		t.Fatalf("reaction jobs %d, want %d", len(reactions), maxReactionsPerMessage)
	}
}

func TestReceiptToggleSchedulesRender(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	q := &fakeQueue{}
	svc, clock := newTestService(ad, q)
	id := createDrop(t, svc, user(2, "bob"), user(3, "carol"))
	q.reset()

	ctx := context.Background()
	svc.OnReaction(ctx, id, user(2, "bob"), numberMarkers[0], true)

	d, _ := svc.Registry().Get(id)
	if _, ok := d.Received[0]; !ok {
		t.Fatal("slot 0 not marked")
	}

	// removal flips it back
	*clock = clock.Add(2 * time.Second)
	svc.OnReaction(ctx, id, user(2, "bob"), numberMarkers[0], false)
	d, _ = svc.Registry().Get(id)
	if len(d.Received) != 0 {
		t.Fatal("slot still marked after removal")
	}
}

func TestReactionCooldownDropsSecondToggle(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	svc, clock := newTestService(ad, &fakeQueue{})
	id := createDrop(t, svc, user(2, "bob"), user(3, "carol"))

	ctx := context.Background()
	svc.OnReaction(ctx, id, user(2, "bob"), numberMarkers[0], true)
	*clock = clock.Add(time.Second)
	svc.OnReaction(ctx, id, user(2, "bob"), numberMarkers[0], false)

	d, _ := svc.Registry().Get(id)
	if len(d.Received) != 1 {
		t.Fatal("reaction inside cooldown was processed")
	}
}

func TestBotReactionsIgnored(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	svc, _ := newTestService(ad, &fakeQueue{})
	id := createDrop(t, svc, user(2, "bob"))

	bot := transport.User{ID: 99, Username: "bot", IsBot: true}
	svc.OnReaction(context.Background(), id, bot, SymbolComplete, true)

	if _, ok := svc.Registry().Get(id); !ok {
		t.Fatal("bot reaction closed the drop")
	}
}

func TestCompletionByCoverage(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	q := &fakeQueue{}
	svc, clock := newTestService(ad, q)
	id := createDrop(t, svc, user(2, "bob"), user(3, "carol"))
	q.reset()

	ctx := context.Background()
	svc.OnReaction(ctx, id, user(2, "bob"), numberMarkers[0], true)
	*clock = clock.Add(2 * time.Second)
	svc.OnReaction(ctx, id, user(3, "carol"), numberMarkers[1], true)

	if _, ok := svc.Registry().Get(id); ok {
		t.Fatal("record still open after full coverage")
	}
	if got := len(q.byKind(actionq.KindPostMessage)); got != 1 {
		t.Fatalf("summary jobs %d, want 1", got)
	}
	// transient status delete + announcement delete
	deletes := q.byKind(actionq.KindDeleteMessage)
	if len(deletes) != 2 {
		t.Fatalf("delete jobs %d, want 2", len(deletes))
	}

	// later events on the closed id are no-ops
	*clock = clock.Add(2 * time.Second)
	svc.OnReaction(ctx, id, user(2, "bob"), SymbolComplete, true)
}

func TestUnmarkDoesNotComplete(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	svc, clock := newTestService(ad, &fakeQueue{})
	id := createDrop(t, svc, user(2, "bob"))

	ctx := context.Background()
	svc.OnReaction(ctx, id, user(2, "bob"), numberMarkers[0], true)
	if _, ok := svc.Registry().Get(id); ok {
		t.Fatal("single-recipient drop not closed on full coverage")
	}

	// a removal arriving on a fresh drop never closes it, even at
	// full coverage of the remaining set
	id = createDrop(t, svc, user(2, "bob"), user(3, "carol"))
	*clock = clock.Add(2 * time.Second)
	svc.OnReaction(ctx, id, user(2, "bob"), numberMarkers[0], true)
	*clock = clock.Add(2 * time.Second)
	svc.OnReaction(ctx, id, user(3, "carol"), numberMarkers[1], false)
	if _, ok := svc.Registry().Get(id); !ok {
		t.Fatal("removal closed the drop")
	}
}

func TestForcedCompletion(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	q := &fakeQueue{}
	svc, _ := newTestService(ad, q)
	id := createDrop(t, svc, user(2, "bob"), user(3, "carol"))
	q.reset()

	svc.OnReaction(context.Background(), id, user(2, "bob"), SymbolComplete, true)

	if _, ok := svc.Registry().Get(id); ok {
		t.Fatal("force close left the record open")
	}
	posts := q.byKind(actionq.KindPostMessage)
	if len(posts) != 1 || !strings.Contains(posts[0].Text, "0/2") {
		t.Fatalf("summary missing coverage count: %+v", posts)
	}
}

func TestThreadDeletedOnlyWhenPresent(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	q := &fakeQueue{}
	svc, _ := newTestService(ad, q)
	id := createDrop(t, svc, user(2, "bob"))
	q.reset()

	// no thread attached yet
	svc.OnReaction(context.Background(), id, user(2, "bob"), SymbolComplete, true)
	if got := len(q.byKind(actionq.KindDeleteThread)); got != 0 {
		t.Fatalf("thread delete enqueued without a thread: %d", got)
	}

	id = createDrop(t, svc, user(2, "bob"))
	q.reset()
	svc.Registry().SetThread(id, transport.ThreadRef{ChatID: -1001, ThreadID: 7})
	svc.OnReaction(context.Background(), id, user(2, "bob"), SymbolComplete, true)
	if got := len(q.byKind(actionq.KindDeleteThread)); got != 1 {
		t.Fatalf("thread delete jobs %d, want 1", got)
	}
}

func TestSaleEnqueuesFanOut(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	q := &fakeQueue{}
	svc, _ := newTestService(ad, q)
	id := createDrop(t, svc, user(2, "bob"), user(3, "carol"))
	q.reset()

	svc.OnReaction(context.Background(), id, user(2, "bob"), SymbolSale, true)

	if _, ok := svc.Registry().Get(id); !ok {
		t.Fatal("sale closed the drop")
	}
	jobs := q.byKind(actionq.KindNotifySale)
	if len(jobs) != 1 {
		t.Fatalf("notify jobs %d, want 1", len(jobs))
	}
	sale := jobs[0].Sale
	if sale == nil || sale.Item != "mystic sword" || len(sale.Recipients) != 2 {
		t.Fatalf("bad sale payload: %+v", sale)
	}
}

func TestSetPrice(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	svc, _ := newTestService(ad, &fakeQueue{})
	id := createDrop(t, svc, user(2, "bob"))

	if err := svc.SetPrice(context.Background(), id, " 120k "); err != nil {
		t.Fatal(err)
	}
	d, _ := svc.Registry().Get(id)
	if d.Price != "120k" {
		t.Fatalf("price %q", d.Price)
	}
	if err := svc.SetPrice(context.Background(), 9999, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListOpenFor(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	svc, clock := newTestService(ad, &fakeQueue{})
	chat := transport.ChatTarget{ChatID: -1001}
	bob := user(2, "bob")

	id := createDrop(t, svc, bob, user(3, "carol"))
	createDrop(t, svc, user(3, "carol"))

	if err := svc.ListOpenFor(context.Background(), chat, bob); err != nil {
		t.Fatal(err)
	}
	dms := ad.directs[bob.ID]
	if len(dms) != 1 || !strings.Contains(dms[0], "mystic sword") {
		t.Fatalf("bad DM: %v", dms)
	}

	// once confirmed, the drop leaves bob's list
	svc.OnReaction(context.Background(), id, bob, numberMarkers[0], true)
	*clock = clock.Add(2 * time.Second)
	if err := svc.ListOpenFor(context.Background(), chat, bob); err != nil {
		t.Fatal(err)
	}
	if len(ad.directs[bob.ID]) != 1 {
		t.Fatal("confirmed drop still listed")
	}
}

func TestListOpenForDMRefused(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	svc, _ := newTestService(ad, &fakeQueue{})
	chat := transport.ChatTarget{ChatID: -1001}
	bob := user(2, "bob")
	createDrop(t, svc, bob)

	ad.directErr = fmt.Errorf("dm: %w", transport.ErrPermissionDenied)
	if err := svc.ListOpenFor(context.Background(), chat, bob); err != nil {
		t.Fatalf("permission refusal surfaced as error: %v", err)
	}
	texts := ad.sentTexts()
	last := texts[len(texts)-1]
	if !strings.Contains(last, "Couldn't DM you") {
		t.Fatalf("no channel fallback notice, last message %q", last)
	}
}

func TestRemindStale(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	q := &fakeQueue{}
	svc, clock := newTestService(ad, q)
	createDrop(t, svc, user(2, "bob"))
	q.reset()

	if n := svc.RemindStale(context.Background(), 24*time.Hour); n != 0 {
		t.Fatalf("fresh drop reminded: %d", n)
	}
	*clock = clock.Add(25 * time.Hour)
	if n := svc.RemindStale(context.Background(), 24*time.Hour); n != 1 {
		t.Fatalf("stale drop not reminded: %d", n)
	}
	posts := q.byKind(actionq.KindPostMessage)
	if len(posts) != 1 || !strings.Contains(posts[0].Text, "still open") {
		t.Fatalf("bad reminder post: %+v", posts)
	}
}

func TestMessageLink(t *testing.T) {
	t.Parallel()

	ref := transport.MessageRef{ChatID: -1001234567890, MessageID: 7}
	if got, want := MessageLink(ref), "https://t.me/c/1234567890/7"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := MessageLink(transport.MessageRef{ChatID: -4567, MessageID: 7}); got != "" {
		t.Fatalf("plain group produced link %q", got)
	}
}
