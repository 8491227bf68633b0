package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"planexport/internal/config"
	"planexport/internal/eventbus"
	"planexport/internal/notifier"
	"planexport/internal/runtime/supervisor"
	"planexport/internal/task/scheduler"
	logx "planexport/pkg/logx"
)

// Serve runs the configured scheduled exports, reloads the config on file
// changes and turns export results into notifications. It returns when ctx
// is canceled or a supervised loop fails.
func (a *App) Serve(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// a reload failing these keeps the running config
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		_, err := mapStorageConfig(cfg)
		return err
	})

	cfg := a.Config()
	if err := a.syncSchedules(cfg, nil); err != nil {
		return err
	}
	a.sched.Start(sup.Context())

	events, unsub := a.bus.Subscribe(256)
	sup.Go0("events", func(c context.Context) {
		defer unsub()
		a.pumpEvents(c, events)
	})

	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	sup.Go("config.watch", a.cfgm.Watch)
	sup.GoRestart("systemd.watchdog", a.sd.Watchdog, supervisor.WithMaxRestarts(3))

	a.sd.Ready()
	a.sd.Status("%d scheduled exports", len(cfg.Scheduler.Exports))
	a.log.Info("serving",
		logx.Bool("scheduler", a.sched.Enabled()),
		logx.Strings("schedules", a.sched.Names()),
		logx.String("config", a.cfgm.Path()),
	)

	<-sup.Context().Done()
	a.sd.Stopping()
	a.log.Info("stopping")

	a.step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step("supervisor", 2*time.Second, func(c context.Context) error { return sup.Stop(c) })
	a.step("notifications", 2*time.Second, a.Flush)

	a.log.Info("stopped")
	return sup.Err()
}

// step runs one shutdown step with an upper bound so a stuck component
// cannot stall the whole stop.
func (a *App) step(name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	c, cancel := context.WithTimeout(context.Background(), limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(c)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-c.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}

// syncSchedules registers the scheduled exports of cfg. names limits the
// update to those schedules; nil means all of them. Schedules no longer in
// cfg are removed.
func (a *App) syncSchedules(cfg *config.Config, names []string) error {
	want := make(map[string]config.ScheduledExport, len(cfg.Scheduler.Exports))
	for _, ex := range cfg.Scheduler.Exports {
		want[strings.TrimSpace(ex.Name)] = ex
	}
	for _, name := range a.sched.Names() {
		if _, ok := want[name]; !ok {
			a.sched.Remove(name)
		}
	}
	for name, ex := range want {
		if names != nil && !slices.Contains(names, name) {
			continue
		}
		timeout, err := config.ParseDurationField("scheduler.exports."+name+".timeout", ex.Timeout)
		if err != nil {
			return err
		}
		if err := a.sched.AddSchedule(name, ex.Schedule, timeout, a.scheduledExport(ex)); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}
	return nil
}

func (a *App) scheduledExport(ex config.ScheduledExport) scheduler.Job {
	req := Request{
		Project:         ex.Project,
		Format:          ex.Format,
		Output:          ex.Output,
		Range:           ex.Range,
		CommandLine:     true,
		ExpandResources: ex.ExpandResources,
		Progress:        ProgressLog,
	}
	return func(ctx context.Context) error {
		res, err := a.runExport(ctx, req)
		if err != nil {
			return err
		}
		a.log.Info("scheduled export done",
			logx.String("name", ex.Name),
			logx.Strings("files", res.Files),
			logx.Duration("took", res.Report.Duration),
		)
		return nil
	}
}

// pumpEvents announces export results and shows queued notifications.
func (a *App) pumpEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case eventbus.ExportFinished, eventbus.ExportFailed:
				a.announce(ev)
			case eventbus.NotificationQueued:
				data, ok := ev.Data.(notifier.NotificationEvent)
				if !ok {
					continue
				}
				if err := a.notif.ShowNotification(ctx, data.Channel); err != nil && ctx.Err() == nil {
					a.log.Debug("notification show failed", logx.String("channel", string(data.Channel)), logx.Err(err))
				}
			}
		}
	}
}

// reloadLoop applies published configs. Storage and notification sink
// changes need a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
			for coalescing := true; coalescing; {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					newCfg = newer
				default:
					coalescing = false
				}
			}
			a.applyConfig(ctx, newCfg)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, newCfg *config.Config) {
	oldCfg := a.Config()
	sections, attrs, schedules := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.sd.Reloading()
	defer a.sd.Ready()

	a.setConfig(newCfg)
	a.logs.Apply(mapLogConfig(newCfg))

	if engCfg, err := mapEngineConfig(newCfg); err != nil {
		a.log.Warn("invalid export config; keeping previous", logx.Err(err))
	} else {
		a.driver.Apply(engCfg)
	}
	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	prevEnabled := a.sched.Enabled()
	a.sched.Apply(scheduler.Config{Enabled: newCfg.Scheduler.Enabled, Timezone: newCfg.Scheduler.Timezone})
	if err := a.syncSchedules(newCfg, schedules); err != nil {
		a.log.Warn("schedule update failed", logx.Err(err))
	}
	switch {
	case prevEnabled && !newCfg.Scheduler.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prevEnabled && newCfg.Scheduler.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	if restart := restartSections(oldCfg, newCfg, sections); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.Strings("sections", restart))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func restartSections(oldCfg, newCfg *config.Config, sections []string) []string {
	var out []string
	for _, s := range sections {
		if s == "storage" || s == "telegram" {
			out = append(out, s)
		}
	}
	if slices.Contains(sections, "notifier") {
		on, nn := oldCfg.Notifier, newCfg.Notifier
		enabled := func(n *config.NotifierConfig) (bool, bool) {
			if n == nil {
				return false, false
			}
			return n.Enabled, n.Console
		}
		oe, oc := enabled(on)
		ne, nc := enabled(nn)
		if oe != ne || oc != nc {
			out = append(out, "notifier.sinks")
		}
	}
	return out
}
