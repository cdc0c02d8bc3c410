package distribution

import (
	"context"

	"dropbot/internal/eventbus"
	"dropbot/internal/services/actionq"
	"dropbot/internal/transport"
	"dropbot/pkg/logx"
)

// OnReaction feeds one reaction change into the state machine. Reactions
// from bots, on unknown messages, or inside the per-user cooldown are
// dropped silently.
func (s *Service) OnReaction(ctx context.Context, id int, user transport.User, symbol string, added bool) {
	if user.IsBot {
		return
	}
	if _, ok := s.reg.Get(id); !ok {
		return
	}
	if !s.cool.Accept(id, user.ID, s.now()) {
		s.log.Debug("reaction dropped, cooldown",
			logx.Int("id", id), logx.Int64("user", user.ID))
		return
	}

	if idx, ok := markerIndex(symbol); ok {
		_, valid, covered := s.reg.Mark(id, idx, added)
		if !valid {
			return
		}
		s.co.Schedule(id)
		s.log.Debug("receipt toggled",
			logx.Int("id", id),
			logx.Int("slot", idx),
			logx.Bool("received", added))
		if added && covered {
			s.complete(ctx, id, false)
		}
		return
	}

	switch {
	case symbol == SymbolComplete && added:
		s.complete(ctx, id, true)
	case symbol == SymbolSale && added:
		s.notifySale(ctx, id)
	}
}

// complete closes a drop. The record leaves the registry first, so every
// later event on the same id is a no-op, then the closing side effects go
// out through the lane.
func (s *Service) complete(ctx context.Context, id int, forced bool) {
	d, ok := s.reg.Remove(id)
	if !ok {
		return
	}
	s.co.Cancel(id)
	s.cool.Forget(id)
	cfg := s.config()

	status := "✅ All recipients confirmed, drop closed!"
	if forced {
		status = "✅ Drop closed."
	}
	s.transient(ctx, transport.ChatTarget{ChatID: d.ChatID}, status, cfg.DeleteDelay)

	summaryChat := cfg.CompleteChat
	if summaryChat == 0 {
		summaryChat = d.ChatID
	}
	s.queue.Enqueue(actionq.Job{
		Kind:   actionq.KindPostMessage,
		Target: transport.ChatTarget{ChatID: summaryChat},
		Text:   RenderClosed(d, forced),
	})
	if !d.Thread.IsZero() {
		s.queue.Enqueue(actionq.Job{Kind: actionq.KindDeleteThread, Thread: d.Thread})
	}
	s.queue.Enqueue(actionq.Job{Kind: actionq.KindDeleteMessage, Ref: d.Announce})

	s.log.Info("drop closed",
		logx.Int("id", id),
		logx.Bool("forced", forced),
		logx.Int("received", len(d.Received)),
		logx.Int("recipients", len(d.Recipients)))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDistributionCompleted, Data: CompletedEvent{
		ID:         d.ID,
		Item:       d.Item,
		Creator:    d.Creator.Name(),
		Price:      d.Price,
		Received:   len(d.Received),
		Recipients: len(d.Recipients),
		Forced:     forced,
	}})
}

// notifySale snapshots the drop and hands the fan-out to the lane. Per-user
// gating happens inside the job, against the gate state at execution time.
func (s *Service) notifySale(ctx context.Context, id int) {
	d, ok := s.reg.Get(id)
	if !ok {
		return
	}
	cfg := s.config()
	s.transient(ctx, transport.ChatTarget{ChatID: d.ChatID},
		"\U0001f4b0 Sale noted. Opted-in recipients get a DM.", cfg.DeleteDelay)

	s.queue.Enqueue(actionq.Job{Kind: actionq.KindNotifySale, Sale: &actionq.SalePayload{
		DistributionID: d.ID,
		Item:           d.Item,
		CreatorName:    d.Creator.Name(),
		Link:           MessageLink(d.Announce),
		Recipients:     d.Recipients,
	}})
}
