// Package app wires configuration, logging, storage, preferences, the
// export pipeline, notifications and the scheduler into one process. Export
// runs a single export; Serve runs scheduled exports until canceled.
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"planexport/internal/config"
	"planexport/internal/eventbus"
	"planexport/internal/export"
	"planexport/internal/notifier"
	"planexport/internal/prefs"
	"planexport/internal/storage"
	"planexport/internal/task/engine"
	"planexport/internal/task/scheduler"
	logx "planexport/pkg/logx"
	"planexport/pkg/systemd"
)

type App struct {
	cfgm *config.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	root  *prefs.Node

	driver   *engine.Driver
	registry *export.Registry
	notif    *notifier.Service
	sched    *scheduler.Service
	sd       *systemd.Notifier

	// exportMu serializes exports; they share the root preference keys.
	exportMu sync.Mutex

	mu  sync.RWMutex
	cfg *config.Config
}

// Options tweak New. The zero value is the production setup.
type Options struct {
	// Console receives console notifications; nil means stderr.
	Console io.Writer
	// Now overrides the export clock.
	Now func() time.Time
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Export or Serve is called.
func New(cfgPath string, opts ...Options) (*App, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Console == nil {
		o.Console = os.Stderr
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Forwarding needs the notifier, which needs a logger: start with
	// forwarding off, install the forwarder, then apply the real config.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Forward.Enabled = false
	logSvc, root := logx.New(bootCfg)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Debug("storage opened", logx.String("driver", sc.Driver))

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	driver := engine.New(engCfg, root.With(logx.String("comp", "engine")), bus)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sinks, err := buildSinks(cfg, root.With(logx.String("comp", "notifications")), o.Console)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, root, bus, sinks...)

	logSvc.SetForwarder(notif)
	logSvc.Apply(logCfg)

	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	a := &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		root:   prefs.Root(store, root.With(logx.String("comp", "prefs"))),
		driver: driver,
		registry: export.NewDefaultRegistry(export.Deps{
			Log:    root,
			Driver: driver,
			Store:  store,
			Bus:    bus,
			Now:    o.Now,
		}),
		notif: notif,
		sched: scheduler.New(scheduler.Config{
			Enabled:  cfg.Scheduler.Enabled,
			Timezone: cfg.Scheduler.Timezone,
		}, root, bus),
		sd:  systemd.New(root),
		cfg: cfg,
	}
	return a, nil
}

func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *App) setConfig(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

func (a *App) Logger() logx.Logger           { return a.log }
func (a *App) Bus() eventbus.Bus             { return a.bus }
func (a *App) Prefs() *prefs.Node            { return a.root }
func (a *App) Notifier() *notifier.Service   { return a.notif }
func (a *App) Scheduler() *scheduler.Service { return a.sched }
func (a *App) Formats() []string             { return a.registry.Formats() }
func (a *App) History() []engine.HistoryItem { return a.driver.History() }
func (a *App) Store() storage.Store          { return a.store }

// Flush shows every pending notification, most severe channel first.
func (a *App) Flush(ctx context.Context) error {
	var errs []error
	for _, ch := range []notifier.Channel{notifier.ChannelError, notifier.ChannelWarning, notifier.ChannelInfo, notifier.ChannelNews} {
		if err := a.notif.ShowNotification(ctx, ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases storage and the log file. Pending notifications are lost.
func (a *App) Close() error {
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}
