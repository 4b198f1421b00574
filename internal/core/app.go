// Package core wires the application together: config, logging, store,
// the Discord adapter and the domain components, plus the update dispatch
// loop and background maintenance.
package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"fangate/internal/adapters/discord"
	"fangate/internal/admin"
	"fangate/internal/attach"
	"fangate/internal/config"
	"fangate/internal/fanout"
	"fangate/internal/platform"
	"fangate/internal/promo"
	"fangate/internal/runtime/supervisor"
	"fangate/internal/store"
	"fangate/internal/toggle"
	logx "fangate/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	st      store.Store
	adapter *discord.Adapter
	cache   *attach.Cache

	toggle *toggle.Controller
	fan    *fanout.Dispatcher
	promo  *promo.Publisher
	admin  *admin.Router

	cron    *cron.Cron
	sup     *supervisor.Supervisor
	updates chan platform.Update
}

// New loads and validates the config file, then builds every component.
// Nothing is started; call Start.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	mgr.SetValidator(config.Validate)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := config.Validate(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	st, err := store.Open(store.Config{
		StatePath:    cfg.Store.StatePath,
		ReceiptsPath: cfg.Store.ReceiptsPath,
		Driver:       cfg.Store.Driver,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("store opened",
		logx.Int("configs", len(st.State().Configs)),
		logx.Int("receipts", st.ReceiptCount()),
	)

	adapter, err := discord.New(cfg.Discord.Token, log.With(logx.String("comp", "discord")))
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}

	cache := attach.New(cfg.Attachments.EffectiveDir(), log.With(logx.String("comp", "attach")))

	fan := fanout.New(adapter, adapter, st,
		fanout.NewPacer(cfg.Fanout.Interval()),
		log.With(logx.String("comp", "fanout")))

	app := &App{
		cfgMgr:  mgr,
		logSvc:  logSvc,
		log:     log,
		st:      st,
		adapter: adapter,
		cache:   cache,
		toggle:  toggle.New(adapter, adapter, st, log.With(logx.String("comp", "toggle"))),
		fan:     fan,
		promo:   promo.New(adapter, log.With(logx.String("comp", "promo"))),
		admin:   admin.New(st, adapter, adapter, fan, cache, log.With(logx.String("comp", "admin"))),
		updates: make(chan platform.Update, cfg.Discord.EffectiveQueueSize()),
	}
	app.cron = app.newCron(cfg)
	return app, nil
}

func (a *App) newCron(cfg *config.Config) *cron.Cron {
	if !cfg.Maintenance.Enabled {
		return nil
	}
	opts := []cron.Option{}
	if tz := strings.TrimSpace(cfg.Maintenance.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			opts = append(opts, cron.WithLocation(loc))
		}
	}
	c := cron.New(opts...)
	if _, err := c.AddFunc(cfg.Maintenance.EffectiveSchedule(), a.cleanAttachments); err != nil {
		a.log.Warn("cleanup schedule rejected", logx.String("spec", cfg.Maintenance.EffectiveSchedule()), logx.Err(err))
		return nil
	}
	if _, err := c.AddFunc("@hourly", a.pruneJobHistory); err != nil {
		a.log.Warn("job prune schedule rejected", logx.Err(err))
	}
	return c
}

// Start opens the gateway and launches the dispatch loop, config watcher and
// maintenance schedule. Returns once everything is running.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		a.sup.Cancel()
		return err
	}

	// A panic while handling one update must not take the bot down; the
	// restart loop resumes consumption from the queue.
	a.sup.GoRestart("dispatch", a.dispatchLoop)
	a.sup.Go("config.watch", a.cfgMgr.Watch)
	a.sup.Go0("config.reload", a.reloadLoop)
	if a.cron != nil {
		a.cron.Start()
	}

	a.log.Info("bot started")
	return nil
}

// Stop shuts everything down in order: stop accepting events, stop background
// jobs, wait for in-flight work, then close the store.
func (a *App) Stop(ctx context.Context) error {
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("gateway close failed", logx.Err(err))
	}
	if n := a.adapter.Dropped(); n > 0 {
		a.log.Warn("events were dropped during this run", logx.Int64("dropped", n))
	}
	if a.cron != nil {
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("supervisor stop", logx.Err(err))
		}
	}
	if err := a.st.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("bot stopped")
	return a.logSvc.Close()
}

// reloadLoop applies hot config changes. Only the logging section takes
// effect live; anything else is logged as needing a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(sub)

	prev := a.cfgMgr.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			changed, attrs := config.SummarizeConfigChange(prev, cfg)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded", append([]logx.Field{logx.Any("sections", changed)}, attrs...)...)

			for _, section := range changed {
				switch section {
				case "logging":
					a.logSvc.Apply(logx.Config{
						Level:   cfg.Logging.Level,
						Console: cfg.Logging.Console,
						File: logx.FileConfig{
							Enabled: cfg.Logging.File.Enabled,
							Path:    cfg.Logging.File.Path,
						},
					})
				default:
					a.log.Warn("config section changed; restart required to apply", logx.String("section", section))
				}
			}
			prev = cfg
		}
	}
}

// jobRetention is how long finished fan-out job records stay queryable.
const jobRetention = 24 * time.Hour

// pruneJobHistory drops fan-out job records older than the retention window.
func (a *App) pruneJobHistory() {
	if n := a.fan.PruneJobs(jobRetention); n > 0 {
		a.log.Debug("fan-out job history pruned", logx.Int("count", n))
	}
}

// cleanAttachments removes cached gift images no channel config references.
func (a *App) cleanAttachments() {
	referenced := map[string]struct{}{}
	for _, c := range a.st.Configs() {
		if c.DMAttachment != "" && !strings.HasPrefix(c.DMAttachment, "http") {
			referenced[c.DMAttachment] = struct{}{}
		}
	}
	if _, err := a.cache.CleanOrphans(referenced); err != nil {
		a.log.Warn("attachment cleanup failed", logx.Err(err))
	}
}
