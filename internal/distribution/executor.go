package distribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dropbot/internal/eventbus"
	"dropbot/internal/services/actionq"
	"dropbot/internal/transport"
	"dropbot/pkg/logx"
)

// Executor runs queue jobs against the platform. It resolves thread handles
// through the registry at execution time, so a drop that closed while its
// thread jobs were queued simply skips them.
type Executor struct {
	log     logx.Logger
	bus     eventbus.Bus
	adapter transport.Adapter
	pacer   *actionq.Pacer
	reg     *Registry
	gate    *NotifyGate

	now func() time.Time
}

func NewExecutor(log logx.Logger, bus eventbus.Bus, adapter transport.Adapter, pacer *actionq.Pacer, reg *Registry, gate *NotifyGate) *Executor {
	return &Executor{
		log:     log.With(logx.String("comp", "executor")),
		bus:     bus,
		adapter: adapter,
		pacer:   pacer,
		reg:     reg,
		gate:    gate,
		now:     time.Now,
	}
}

func (e *Executor) Execute(ctx context.Context, job actionq.Job) error {
	switch job.Kind {
	case actionq.KindEditMessage:
		return e.adapter.EditMessage(ctx, job.Ref, job.Text)

	case actionq.KindDeleteMessage:
		if job.Delay > 0 {
			t := time.NewTimer(job.Delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
		return e.adapter.DeleteMessage(ctx, job.Ref)

	case actionq.KindAddReaction:
		err := e.adapter.AddReaction(ctx, job.Ref, job.Symbol)
		e.pacer.Pause(ctx, actionq.ClassReaction)
		return err

	case actionq.KindCreateThread:
		// The drop may have closed while this job waited in the lane.
		if _, ok := e.reg.Get(job.DistributionID); !ok {
			return nil
		}
		thread, err := e.adapter.CreateThread(ctx, job.Ref, job.ThreadName)
		if err != nil {
			return err
		}
		e.reg.SetThread(job.DistributionID, thread)
		return nil

	case actionq.KindAddThreadMember:
		d, ok := e.reg.Get(job.DistributionID)
		if !ok || d.Thread.IsZero() {
			return nil
		}
		err := e.adapter.AddThreadMember(ctx, d.Thread, job.User)
		e.pacer.Pause(ctx, actionq.ClassInvite)
		return err

	case actionq.KindDeleteThread:
		if job.Thread.IsZero() {
			return nil
		}
		return e.adapter.DeleteThread(ctx, job.Thread)

	case actionq.KindPostMessage:
		_, err := e.adapter.SendMessage(ctx, job.Target, job.Text)
		return err

	case actionq.KindNotifySale:
		return e.notifySale(ctx, job)

	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// notifySale fans a sale announcement out to eligible recipients. Gate
// checks happen here, per recipient, so the opt-in and cooldown state at
// send time decides, not the state when the reaction arrived.
func (e *Executor) notifySale(ctx context.Context, job actionq.Job) error {
	sale := job.Sale
	if sale == nil {
		return errors.New("notify-sale job without payload")
	}
	text := saleText(sale)

	for _, r := range sale.Recipients {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case r.IsBot:
			e.skip(sale, r, "bot")
			continue
		case !e.gate.OptedIn(r.ID):
			e.skip(sale, r, "opt-out")
			continue
		case !e.gate.Allow(r.ID, e.now()):
			e.skip(sale, r, "cooldown")
			continue
		}

		err := e.adapter.SendDirect(ctx, r, text)
		switch {
		case err == nil:
			e.gate.MarkNotified(r.ID, e.now())
			e.log.Debug("sale DM sent",
				logx.Int("drop", sale.DistributionID),
				logx.Int64("user", r.ID))
			e.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifySent, Data: NotifyEvent{
				Distribution: sale.DistributionID,
				Item:         sale.Item,
				UserID:       r.ID,
				User:         r.Name(),
			}})
		case errors.Is(err, transport.ErrPermissionDenied):
			e.skip(sale, r, "permission")
		default:
			e.log.Warn("sale DM failed",
				logx.Int("drop", sale.DistributionID),
				logx.Int64("user", r.ID),
				logx.Err(err))
		}
		e.pacer.Pause(ctx, actionq.ClassDirect)
	}
	return nil
}

func (e *Executor) skip(sale *actionq.SalePayload, r transport.User, reason string) {
	e.log.Debug("sale DM skipped",
		logx.Int("drop", sale.DistributionID),
		logx.Int64("user", r.ID),
		logx.String("reason", reason))
	e.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifySkipped, Data: NotifyEvent{
		Distribution: sale.DistributionID,
		Item:         sale.Item,
		UserID:       r.ID,
		User:         r.Name(),
		Reason:       reason,
	}})
}

func saleText(sale *actionq.SalePayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\U0001f4b0 %s has been sold!\n", sale.Item)
	fmt.Fprintf(&b, "\U0001f464 Drop by %s\n", sale.CreatorName)
	if sale.Link != "" {
		fmt.Fprintf(&b, "\U0001f517 %s", sale.Link)
	}
	return strings.TrimRight(b.String(), "\n")
}
