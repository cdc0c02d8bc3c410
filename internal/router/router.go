// Package router turns inbound platform updates into distribution
// operations. Commands target the service, reaction changes feed the state
// machine, everything else is ignored.
package router

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"dropbot/internal/distribution"
	"dropbot/internal/transport"
	"dropbot/pkg/logx"
)

type Config struct {
	// OwnerUserIDs restricts /drop to the listed users when non-empty.
	OwnerUserIDs []int64
}

type Router struct {
	log    logx.Logger
	svc    *distribution.Service
	owners map[int64]struct{}
}

func New(cfg Config, log logx.Logger, svc *distribution.Service) *Router {
	owners := make(map[int64]struct{}, len(cfg.OwnerUserIDs))
	for _, id := range cfg.OwnerUserIDs {
		owners[id] = struct{}{}
	}
	return &Router{
		log:    log.With(logx.String("comp", "router")),
		svc:    svc,
		owners: owners,
	}
}

// Run consumes updates until ctx is canceled or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			switch u.Kind {
			case transport.UpdateMessage:
				if u.Message != nil {
					r.handleMessage(ctx, u.Message)
				}
			case transport.UpdateReaction:
				if u.Reaction != nil {
					r.handleReaction(ctx, u.Reaction)
				}
			}
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	if m.From.IsBot {
		return
	}
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	fields := strings.Fields(text)
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	chat := transport.ChatTarget{ChatID: m.ChatID}
	ref := transport.MessageRef{ChatID: m.ChatID, MessageID: m.ID}

	switch cmd {
	case "/drop":
		r.handleDrop(ctx, m, chat, fields[1:])
		r.svc.DiscardMessage(ref)
	case "/price", "/p":
		r.handlePrice(ctx, chat, fields[1:])
		r.svc.DiscardMessage(ref)
	case "/open":
		if err := r.svc.ListOpenFor(ctx, chat, m.From); err != nil {
			r.log.Warn("open list failed", logx.Err(err))
		}
		r.svc.DiscardMessage(ref)
	case "/optin":
		if r.svc.ToggleOptIn(m.From.ID) {
			r.svc.Notice(ctx, chat, "\U0001f514 Sale notifications on.")
		} else {
			r.svc.Notice(ctx, chat, "\U0001f515 Sale notifications off.")
		}
		r.svc.DiscardMessage(ref)
	}
}

func (r *Router) handleDrop(ctx context.Context, m *transport.Message, chat transport.ChatTarget, args []string) {
	if len(r.owners) > 0 {
		if _, ok := r.owners[m.From.ID]; !ok {
			r.log.Debug("drop refused, not an owner", logx.Int64("user", m.From.ID))
			return
		}
	}
	var itemWords []string
	for _, a := range args {
		if strings.HasPrefix(a, "@") {
			continue
		}
		itemWords = append(itemWords, a)
	}
	item := strings.Join(itemWords, " ")
	if item == "" || len(m.Mentions) == 0 {
		r.svc.Notice(ctx, chat, "❗ Usage: /drop <item> @recipient...")
		return
	}
	if _, err := r.svc.Create(ctx, chat, m.From, item, m.Mentions); err != nil {
		r.log.Warn("drop create failed", logx.Err(err))
		r.svc.Notice(ctx, chat, "❌ Couldn't create the drop.")
	}
}

func (r *Router) handlePrice(ctx context.Context, chat transport.ChatTarget, args []string) {
	if len(args) < 2 {
		r.svc.Notice(ctx, chat, "❗ Usage: /price <drop id> <amount>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		r.svc.Notice(ctx, chat, "❗ Usage: /price <drop id> <amount>")
		return
	}
	price := strings.Join(args[1:], " ")
	switch err := r.svc.SetPrice(ctx, id, price); {
	case err == nil:
	case errors.Is(err, distribution.ErrNotFound):
		r.svc.Notice(ctx, chat, "❌ No such drop.")
	default:
		r.log.Warn("price update failed", logx.Int("id", id), logx.Err(err))
	}
}

func (r *Router) handleReaction(ctx context.Context, ev *transport.ReactionEvent) {
	if ev.From.IsBot {
		return
	}
	for _, sym := range ev.Added {
		r.svc.OnReaction(ctx, ev.MessageID, ev.From, sym, true)
	}
	for _, sym := range ev.Removed {
		r.svc.OnReaction(ctx, ev.MessageID, ev.From, sym, false)
	}
}
