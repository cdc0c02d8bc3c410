package adapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf16"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "dropbot/internal/runtime/supervisor"
	kit "dropbot/internal/transport"
	logx "dropbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec caps outbound Bot API calls globally. This is a defensive
	// floor under the queue's pacing heuristics, not a contract with Telegram.
	RatePerSec int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)

	// message_reaction updates have no dispatcher endpoint, so they are
	// consumed at the poller before the bot would drop them.
	poller := tele.NewMiddlewarePoller(&tele.LongPoller{
		Timeout: timeout,
		// Reaction updates are not delivered unless requested explicitly.
		AllowedUpdates: []string{"message", "message_reaction"},
	}, a.filterUpdate)

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: poller,
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	a.registerHandlers()
	return a, nil
}

// filterUpdate intercepts reaction updates and lets everything else flow to
// the bot's own dispatch.
func (a *Adapter) filterUpdate(u *tele.Update) bool {
	if u.MessageReaction != nil {
		a.handleReaction(u.MessageReaction)
		return false
	}
	return true
}

func (a *Adapter) handleReaction(mr *tele.MessageReaction) {
	if mr.Chat == nil || mr.User == nil {
		return
	}
	added, removed := diffReactions(mr.OldReaction, mr.NewReaction)
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	a.sendUpdate(kit.Update{
		Kind: kit.UpdateReaction,
		Reaction: &kit.ReactionEvent{
			MessageID: mr.MessageID,
			ChatID:    mr.Chat.ID,
			From:      fromTele(mr.User),
			Added:     added,
			Removed:   removed,
		},
	})
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:       m.ID,
				ChatID:   m.Chat.ID,
				From:     fromTele(m.Sender),
				Text:     m.Text,
				Mentions: mentionsFromEntities(m.Text, m.Entities),
			},
		})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		// Adapter errors should not take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("telegram.poll", func(c context.Context) {
		a.bot.Start()
	})
	sup.Go0("telegram.stop_watch", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	sup.Go0("telegram.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	})

	a.log.Info("telegram adapter started", logx.Duration("poll_timeout", a.cfg.PollTimeout))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	a.runMu.Unlock()

	if sup == nil {
		return nil
	}
	sup.Cancel()
	if err := sup.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.limiter.Wait(ctx)
}

func (a *Adapter) SendMessage(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error) {
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text)
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditMessage(ctx context.Context, ref kit.MessageRef, text string) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Edit(stored(ref), text)
	return classify(err)
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	return classify(a.bot.Delete(stored(ref)))
}

func (a *Adapter) AddReaction(ctx context.Context, ref kit.MessageRef, symbol string) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	err := a.bot.React(&tele.Chat{ID: ref.ChatID}, stored(ref), tele.Reactions{
		Reactions: []tele.Reaction{{Type: "emoji", Emoji: symbol}},
	})
	return classify(err)
}

func (a *Adapter) RemoveReaction(ctx context.Context, ref kit.MessageRef, symbol string) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	// Telegram replaces the bot's reaction set wholesale; an empty set clears it.
	err := a.bot.React(&tele.Chat{ID: ref.ChatID}, stored(ref), tele.Reactions{})
	return classify(err)
}

func (a *Adapter) CreateThread(ctx context.Context, ref kit.MessageRef, name string) (kit.ThreadRef, error) {
	if err := a.wait(ctx); err != nil {
		return kit.ThreadRef{}, err
	}
	topic, err := a.bot.CreateTopic(&tele.Chat{ID: ref.ChatID}, &tele.Topic{Name: name})
	if err != nil {
		return kit.ThreadRef{}, classify(err)
	}
	return kit.ThreadRef{ChatID: ref.ChatID, ThreadID: topic.ThreadID}, nil
}

func (a *Adapter) AddThreadMember(ctx context.Context, thread kit.ThreadRef, user kit.User) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	// Telegram forum topics have no membership list; inviting is a mention
	// ping posted into the topic.
	_, err := a.bot.Send(&tele.Chat{ID: thread.ChatID}, mentionHTML(user), &tele.SendOptions{
		ThreadID:  thread.ThreadID,
		ParseMode: tele.ModeHTML,
	})
	return classify(err)
}

func (a *Adapter) DeleteThread(ctx context.Context, thread kit.ThreadRef) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	return classify(a.bot.DeleteTopic(&tele.Chat{ID: thread.ChatID}, &tele.Topic{ThreadID: thread.ThreadID}))
}

func (a *Adapter) SendDirect(ctx context.Context, user kit.User, text string) error {
	if user.ID == 0 {
		return fmt.Errorf("%w: user has no id", kit.ErrPermissionDenied)
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.User{ID: user.ID}, text)
	return classify(err)
}

func stored(ref kit.MessageRef) tele.Editable {
	return &tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

// classify maps Telegram 403-class failures onto the kit's permission sentinel
// so callers can skip silently without knowing telebot error values.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var terr *tele.Error
	if errors.As(err, &terr) && terr.Code == 403 {
		return fmt.Errorf("%w: %v", kit.ErrPermissionDenied, err)
	}
	if errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrNotStartedByUser) {
		return fmt.Errorf("%w: %v", kit.ErrPermissionDenied, err)
	}
	return err
}

func fromTele(u *tele.User) kit.User {
	if u == nil {
		return kit.User{}
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	return kit.User{ID: u.ID, Username: u.Username, DisplayName: name, IsBot: u.IsBot}
}

func mentionHTML(u kit.User) string {
	if u.ID != 0 {
		return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.ID, escapeHTML(u.Name()))
	}
	return escapeHTML(u.Name())
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// mentionsFromEntities extracts mentioned users in order of appearance.
// text_mention entities carry the full user; plain @username mentions only
// resolve to a username (no user ID), which is enough for display and
// index tracking but not for direct delivery.
func mentionsFromEntities(text string, entities []tele.MessageEntity) []kit.User {
	if len(entities) == 0 {
		return nil
	}
	u16 := utf16.Encode([]rune(text))
	var out []kit.User
	for _, e := range entities {
		switch e.Type {
		case tele.EntityTMention:
			if e.User != nil {
				out = append(out, fromTele(e.User))
			}
		case tele.EntityMention:
			seg := sliceUTF16(u16, e.Offset, e.Length)
			if strings.HasPrefix(seg, "@") {
				out = append(out, kit.User{Username: strings.TrimPrefix(seg, "@")})
			}
		}
	}
	return out
}

func sliceUTF16(u16 []uint16, off, length int) string {
	if off < 0 || length <= 0 || off+length > len(u16) {
		return ""
	}
	return string(utf16.Decode(u16[off : off+length]))
}

func diffReactions(prev, next []tele.Reaction) (added, removed []string) {
	has := func(set []tele.Reaction, emoji string) bool {
		for _, r := range set {
			if r.Emoji == emoji {
				return true
			}
		}
		return false
	}
	for _, r := range next {
		if r.Emoji != "" && !has(prev, r.Emoji) {
			added = append(added, r.Emoji)
		}
	}
	for _, r := range prev {
		if r.Emoji != "" && !has(next, r.Emoji) {
			removed = append(removed, r.Emoji)
		}
	}
	return added, removed
}
