package distribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dropbot/internal/eventbus"
	"dropbot/internal/services/actionq"
	"dropbot/internal/transport"
	"dropbot/pkg/logx"
)

// Queue is the outbound lane the service feeds. Satisfied by
// *actionq.Service.
type Queue interface {
	Enqueue(actionq.Job)
}

// Config tunes the tracking behavior. Zero values fall back to defaults.
type Config struct {
	// UpdateWindow is the debounce window for announcement re-renders.
	UpdateWindow time.Duration
	// ReactionCooldown is the per-user-per-drop reaction rate limit.
	ReactionCooldown time.Duration
	// DirectCooldown is the per-user sale DM rate limit.
	DirectCooldown time.Duration
	// DeleteDelay is how long transient status messages stay visible.
	DeleteDelay time.Duration
	// MaxRecipients caps recipients per drop (hard ceiling MaxRecipients).
	MaxRecipients int
	// CompleteChat receives closing summaries; zero means the drop's own
	// chat.
	CompleteChat int64
}

func (c Config) withDefaults() Config {
	if c.DeleteDelay <= 0 {
		c.DeleteDelay = 10 * time.Second
	}
	if c.MaxRecipients <= 0 || c.MaxRecipients > MaxRecipients {
		c.MaxRecipients = MaxRecipients
	}
	return c
}

// listNoticeDelay is the short lifetime of list-command fallback notices.
const listNoticeDelay = 5 * time.Second

// Service owns the drop registry and every rule around it: debounced
// renders, the reaction state machine, reaction cooldowns and the sale
// notification gate.
type Service struct {
	log     logx.Logger
	bus     eventbus.Bus
	adapter transport.Adapter
	queue   Queue

	reg  *Registry
	cool *CooldownGate
	gate *NotifyGate
	co   *Coalescer

	mu  sync.Mutex
	cfg Config

	now func() time.Time
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, adapter transport.Adapter, queue Queue) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		log:     log.With(logx.String("comp", "distribution")),
		bus:     bus,
		adapter: adapter,
		queue:   queue,
		reg:     NewRegistry(),
		cool:    NewCooldownGate(cfg.ReactionCooldown),
		gate:    NewNotifyGate(cfg.DirectCooldown),
		cfg:     cfg,
		now:     time.Now,
	}
	s.co = NewCoalescer(cfg.UpdateWindow, s.flushRender)
	return s
}

// Registry exposes the open-drop store to the queue executor.
func (s *Service) Registry() *Registry { return s.reg }

// Gate exposes the sale notification gate to the queue executor.
func (s *Service) Gate() *NotifyGate { return s.gate }

// Apply swaps the tunables at runtime. Windows in flight keep their old
// duration; new ones pick up the change.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.co.SetWindow(cfg.UpdateWindow)
	s.cool.SetWindow(cfg.ReactionCooldown)
	s.gate.SetCooldown(cfg.DirectCooldown)
}

// Stop cancels pending debounced renders. Open drops are deliberately lost:
// the registry is memory only.
func (s *Service) Stop() {
	s.co.Stop()
	if n := s.reg.Len(); n > 0 {
		s.log.Info("discarding open drops on shutdown", logx.Int("open", n))
	}
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Create posts the announcement synchronously, registers the record under
// the announcement message id, and enqueues the finishing touches: the
// id-bearing re-render, the discussion thread, member pings and the
// reaction palette.
func (s *Service) Create(ctx context.Context, chat transport.ChatTarget, creator transport.User, item string, recipients []transport.User) (int, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return 0, errors.New("item must not be empty")
	}
	if len(recipients) == 0 {
		return 0, errors.New("at least one recipient required")
	}
	cfg := s.config()
	if len(recipients) > cfg.MaxRecipients {
		s.log.Warn("recipient list truncated",
			logx.Int("given", len(recipients)),
			logx.Int("max", cfg.MaxRecipients))
		recipients = recipients[:cfg.MaxRecipients]
	}

	d := &Distribution{
		ChatID:     chat.ChatID,
		Creator:    creator,
		Item:       item,
		Price:      PriceUnset,
		CreatedAt:  s.now(),
		Recipients: append([]transport.User(nil), recipients...),
		Received:   map[int]struct{}{},
	}

	ref, err := s.adapter.SendMessage(ctx, chat, Render(d))
	if err != nil {
		return 0, fmt.Errorf("post announcement: %w", err)
	}
	d.ID = ref.MessageID
	d.Announce = ref
	s.reg.Put(d)

	// Everything from here on is fire-and-forget through the lane.
	s.queue.Enqueue(actionq.Job{Kind: actionq.KindEditMessage, Ref: ref, Text: Render(d)})
	s.queue.Enqueue(actionq.Job{
		Kind:           actionq.KindCreateThread,
		Ref:            ref,
		DistributionID: d.ID,
		ThreadName:     item + " drop",
	})
	s.queue.Enqueue(actionq.Job{Kind: actionq.KindAddThreadMember, DistributionID: d.ID, User: creator})
	for _, r := range d.Recipients {
		s.queue.Enqueue(actionq.Job{Kind: actionq.KindAddThreadMember, DistributionID: d.ID, User: r})
	}

	budget := maxReactionsPerMessage
	for i := range d.Recipients {
		if budget == 0 {
			break
		}
		s.queue.Enqueue(actionq.Job{Kind: actionq.KindAddReaction, Ref: ref, Symbol: numberMarkers[i]})
		budget--
	}
	for _, sym := range []string{SymbolComplete, SymbolSale} {
		if budget == 0 {
			break
		}
		s.queue.Enqueue(actionq.Job{Kind: actionq.KindAddReaction, Ref: ref, Symbol: sym})
		budget--
	}

	s.log.Info("drop created",
		logx.Int("id", d.ID),
		logx.String("item", item),
		logx.Int("recipients", len(d.Recipients)))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDistributionCreated, Data: CreatedEvent{
		ID:         d.ID,
		Item:       item,
		Creator:    creator.Name(),
		Recipients: len(d.Recipients),
	}})
	return d.ID, nil
}

// SetPrice records the price on an open drop and schedules a re-render.
func (s *Service) SetPrice(ctx context.Context, id int, price string) error {
	price = strings.TrimSpace(price)
	if price == "" {
		price = PriceUnset
	}
	if !s.reg.SetPrice(id, price) {
		return ErrNotFound
	}
	s.co.Schedule(id)
	s.log.Info("price set", logx.Int("id", id), logx.String("price", price))
	return nil
}

// ToggleOptIn flips the user's sale notification opt-in and returns the new
// state.
func (s *Service) ToggleOptIn(user int64) bool {
	return s.gate.Toggle(user)
}

// ListOpenFor DMs the user their open drops; when the DM is refused, a
// short-lived notice lands in the chat instead.
func (s *Service) ListOpenFor(ctx context.Context, chat transport.ChatTarget, user transport.User) error {
	type entry struct {
		d    *Distribution
		slot int
	}
	var open []entry
	for _, d := range s.reg.Snapshot() {
		slot, ok := recipientSlot(d, user)
		if !ok {
			continue
		}
		if _, done := d.Received[slot]; done {
			continue
		}
		open = append(open, entry{d: d, slot: slot})
	}
	if len(open) == 0 {
		s.transient(ctx, chat, "\U0001f4ed No open drops waiting on you.", listNoticeDelay)
		return nil
	}
	sort.Slice(open, func(i, j int) bool {
		return open[i].d.CreatedAt.Before(open[j].d.CreatedAt)
	})

	var b strings.Builder
	b.WriteString("\U0001f4ec Open drops waiting on you:\n")
	for _, e := range open {
		fmt.Fprintf(&b, "• %s (%s, by %s)\n",
			e.d.Item, e.d.CreatedAt.Format("01/02 15:04"), e.d.Creator.Name())
	}

	err := s.adapter.SendDirect(ctx, user, b.String())
	switch {
	case err == nil:
		s.transient(ctx, chat, "\U0001f4e8 Sent you the list.", listNoticeDelay)
		return nil
	case errors.Is(err, transport.ErrPermissionDenied):
		s.transient(ctx, chat,
			"\U0001f4ea Couldn't DM you. Open a chat with the bot first.", listNoticeDelay)
		return nil
	default:
		return err
	}
}

// DiscardMessage schedules a message for deletion after the configured
// transient delay. Used to clean up command messages.
func (s *Service) DiscardMessage(ref transport.MessageRef) {
	s.queue.Enqueue(actionq.Job{Kind: actionq.KindDeleteMessage, Ref: ref, Delay: s.config().DeleteDelay})
}

// Notice posts a short-lived status message in chat.
func (s *Service) Notice(ctx context.Context, chat transport.ChatTarget, text string) {
	s.transient(ctx, chat, text, listNoticeDelay)
}

// Snapshot returns copies of every open drop.
func (s *Service) Snapshot() []*Distribution { return s.reg.Snapshot() }

// OpenCount reports the number of open drops.
func (s *Service) OpenCount() int { return s.reg.Len() }

// RemindStale posts a reminder for every drop older than maxAge and returns
// how many went out.
func (s *Service) RemindStale(ctx context.Context, maxAge time.Duration) int {
	now := s.now()
	n := 0
	for _, d := range s.reg.Snapshot() {
		if now.Sub(d.CreatedAt) < maxAge {
			continue
		}
		s.queue.Enqueue(actionq.Job{
			Kind:   actionq.KindPostMessage,
			Target: transport.ChatTarget{ChatID: d.ChatID},
			Text: fmt.Sprintf("⏰ Drop #%d (%s) is still open: %d/%d confirmed, created %s",
				d.ID, d.Item, len(d.Received), len(d.Recipients), d.CreatedAt.Format("01/02 15:04")),
		})
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderPosted, Data: map[string]any{
			"id": d.ID, "item": d.Item,
		}})
		n++
	}
	return n
}

// flushRender is the coalescer callback: re-render the record as it stands
// now and enqueue the edit.
func (s *Service) flushRender(id int) {
	d, ok := s.reg.Get(id)
	if !ok {
		return
	}
	s.queue.Enqueue(actionq.Job{Kind: actionq.KindEditMessage, Ref: d.Announce, Text: Render(d)})
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDistributionRender, Data: map[string]any{"id": id}})
}

// transient sends a status message and schedules its deletion. Failures are
// logged and swallowed; status text is best effort.
func (s *Service) transient(ctx context.Context, chat transport.ChatTarget, text string, delay time.Duration) {
	ref, err := s.adapter.SendMessage(ctx, chat, text)
	if err != nil {
		s.log.Warn("status message failed", logx.Err(err))
		return
	}
	s.queue.Enqueue(actionq.Job{Kind: actionq.KindDeleteMessage, Ref: ref, Delay: delay})
}

// recipientSlot finds the user's slot in the recipient list. Recipients
// mentioned by plain @username have no user id, so the username is the
// fallback key.
func recipientSlot(d *Distribution, user transport.User) (int, bool) {
	for i, r := range d.Recipients {
		if r.ID != 0 && r.ID == user.ID {
			return i, true
		}
		if r.ID == 0 && r.Username != "" && strings.EqualFold(r.Username, user.Username) {
			return i, true
		}
	}
	return 0, false
}

// MessageLink builds a t.me link for messages in supergroups. Other chats
// have no stable public link, so the result is empty.
func MessageLink(ref transport.MessageRef) string {
	const marker = int64(-1000000000000)
	if ref.ChatID > marker {
		return ""
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", marker-ref.ChatID, ref.MessageID)
}
