// Package app assembles the bot: config, logging, the platform adapter,
// the paced queue, the distribution core and the supporting services, plus
// hot reload of the tunables.
package app

import (
	"context"
	"fmt"
	"time"

	"dropbot/internal/config"
	"dropbot/internal/distribution"
	"dropbot/internal/eventbus"
	"dropbot/internal/router"
	rtsup "dropbot/internal/runtime/supervisor"
	"dropbot/internal/services/actionq"
	"dropbot/internal/services/reminder"
	"dropbot/internal/storage"
	"dropbot/internal/transport"
	tgadapter "dropbot/internal/transport/telegram/adapter"
	"dropbot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus      eventbus.Bus
	store    storage.Store
	storeCfg storage.Config
	adapter  *tgadapter.Adapter
	queue    *actionq.Service
	dist     *distribution.Service
	router   *router.Router
	rem      *reminder.Service

	sup     *rtsup.Supervisor
	updates chan transport.Update
}

func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(mapLogging(cfg.Logging))
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(validateConfig)

	adapterCfg, err := mapAdapter(cfg.Telegram, cfg.Queue.RatePerSec)
	if err != nil {
		return nil, err
	}
	queueCfg, err := mapQueue(cfg.Queue)
	if err != nil {
		return nil, err
	}
	distCfg, err := mapDistribution(cfg.Distribution, cfg.Telegram.CompleteChat)
	if err != nil {
		return nil, err
	}
	remCfg, err := mapReminder(cfg.Reminder)
	if err != nil {
		return nil, err
	}
	storeCfg, err := mapStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	adapter, err := tgadapter.New(adapterCfg, log)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	bus := eventbus.New()
	queue := actionq.New(queueCfg, log, bus, nil)
	dist := distribution.New(distCfg, log, bus, adapter, queue)
	queue.SetExecutor(distribution.NewExecutor(log, bus, adapter, queue.Pacer(), dist.Registry(), dist.Gate()))

	return &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      log.With(logx.String("comp", "app")),
		bus:      bus,
		store:    store,
		storeCfg: storeCfg,
		adapter:  adapter,
		queue:    queue,
		dist:     dist,
		router:   router.New(router.Config{OwnerUserIDs: cfg.Telegram.OwnerUserIDs}, log, dist),
		rem:      reminder.New(remCfg, log, dist),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.updates = make(chan transport.Update, 256)
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("telegram: %w", err)
	}
	if err := a.queue.Start(runCtx); err != nil {
		a.sup.Cancel()
		return err
	}
	if err := a.rem.Start(runCtx); err != nil {
		a.sup.Cancel()
		return err
	}

	a.sup.Go("router", func(ctx context.Context) error {
		return a.router.Run(ctx, a.updates)
	})
	a.sup.Go("config.watch", a.cfgMgr.Watch)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go0("events", a.eventLoop)

	a.log.Info("started")
	return nil
}

// Done closes when the app has failed internally or its context ended.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop shuts the app down in dependency order: inbound first, then the
// core, then the lane, then the trailing goroutines.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	if err := a.rem.Stop(ctx); err != nil {
		a.log.Warn("reminder stop", logx.Err(err))
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("telegram stop", logx.Err(err))
	}
	a.dist.Stop()
	if err := a.queue.Stop(ctx); err != nil {
		a.log.Warn("queue stop", logx.Err(err))
	}
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			a.log.Warn("storage close", logx.Err(cerr))
		}
	}
	a.log.Info("stopped")
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
	return err
}

// reloadLoop applies committed config changes to the live components.
// Logging, pacing, distribution windows and the reminder schedule take
// effect immediately; token and storage changes need a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(mapLogging(cfg.Logging))

	if qc, err := mapQueue(cfg.Queue); err == nil {
		a.queue.Apply(qc)
	}
	if dc, err := mapDistribution(cfg.Distribution, cfg.Telegram.CompleteChat); err == nil {
		a.dist.Apply(dc)
	}
	if rc, err := mapReminder(cfg.Reminder); err == nil {
		if err := a.rem.Apply(rc); err != nil {
			a.log.Warn("reminder reload", logx.Err(err))
		}
	}

	if sc, err := mapStorage(cfg.Storage); err == nil && sc != a.storeCfg {
		a.log.Warn("storage config changed, restart required to take effect")
	}
	a.log.Info("config applied")
}

// eventLoop mirrors bus traffic into debug logs and feeds the audit trail.
func (a *App) eventLoop(ctx context.Context) {
	events, unsub := a.bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			a.audit(ctx, e)
		}
	}
}

func (a *App) audit(ctx context.Context, e eventbus.Event) {
	if a.store == nil {
		return
	}
	var entry storage.AuditEntry
	switch e.Type {
	case eventbus.TypeDistributionCompleted:
		ev, ok := e.Data.(distribution.CompletedEvent)
		if !ok {
			return
		}
		detail := fmt.Sprintf("%d/%d received, price %s", ev.Received, ev.Recipients, ev.Price)
		if ev.Forced {
			detail += ", forced"
		}
		entry = storage.AuditEntry{
			At:             e.Time,
			Kind:           "completed",
			DistributionID: ev.ID,
			Item:           ev.Item,
			Actor:          ev.Creator,
			Detail:         detail,
		}
	case eventbus.TypeNotifySent:
		ev, ok := e.Data.(distribution.NotifyEvent)
		if !ok {
			return
		}
		entry = storage.AuditEntry{
			At:             e.Time,
			Kind:           "notify_sent",
			DistributionID: ev.Distribution,
			Item:           ev.Item,
			Actor:          ev.User,
		}
	default:
		return
	}

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.store.AppendAudit(wctx, entry); err != nil {
		a.log.Warn("audit append failed", logx.Err(err))
	}
}
