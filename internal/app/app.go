// Package app wires the config, logging, storage, scheduler, pipeline and
// jobs into one host process and applies config reloads to them.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"releasepush/internal/config"
	"releasepush/internal/job"
	"releasepush/internal/pipeline"
	"releasepush/internal/runtime/supervisor"
	"releasepush/internal/storage"
	"releasepush/internal/task/scheduler"
	logx "releasepush/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	fetch *swapFetcher
	sink  *swapSink
	sched *scheduler.Service
	pipe  *pipeline.Pipeline

	jobsMu sync.Mutex
	jobs   map[string]*job.Job
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, root := logx.New(cfg.Logging.Options())
	log := root.With(logx.String("comp", "app"))

	sc, err := cfg.Storage.Options()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	client, err := buildFetcher(cfg.HTTP)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	sink, err := buildSink(cfg.Notifier, root.With(logx.String("comp", "notify")))
	if err != nil {
		closeStore(store)
		return nil, err
	}

	schedCfg, err := cfg.Scheduler.Options()
	if err != nil {
		closeStore(store)
		return nil, err
	}
	sched := scheduler.New(schedCfg, root.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		store: store,
		fetch: &swapFetcher{},
		sink:  &swapSink{},
		sched: sched,
		jobs:  map[string]*job.Job{},
	}
	a.fetch.Store(client)
	a.sink.Store(sink)
	a.pipe = pipeline.New(pipeline.Options{
		Fetcher:  a.fetch,
		Sink:     a.sink,
		Log:      root.With(logx.String("comp", "pipeline")),
		Location: sched.Location,
	})
	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	return a, nil
}

func closeStore(s storage.Store) {
	if s != nil {
		_ = s.Close()
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start registers every job's triggers and begins watching the config file.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.sched.Start(a.sup.Context())

	if err := a.syncJobs(a.sup.Context(), a.cfgm.Get(), nil); err != nil {
		// A broken job must not keep the healthy ones from running.
		a.log.Error("some jobs failed to initialize", logx.Err(err))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, 250*time.Millisecond, 30*time.Second)

	a.log.Info("app started", logx.Int("jobs", len(a.JobStates())))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			newCfg = latest(sub, newCfg)
			a.apply(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func latest(sub chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

// apply pushes a validated config into the running components.
func (a *App) apply(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, changedJobs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(newCfg.Logging.Options())
		case "http":
			client, err := buildFetcher(newCfg.HTTP)
			if err != nil {
				a.log.Warn("invalid http config; keeping previous", logx.Err(err))
				continue
			}
			a.fetch.Store(client)
		case "notifier":
			sink, err := buildSink(newCfg.Notifier, a.log.With(logx.String("comp", "notify")))
			if err != nil {
				a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
				continue
			}
			a.sink.Store(sink)
		case "scheduler":
			sc, err := newCfg.Scheduler.Options()
			if err != nil {
				a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
				continue
			}
			a.sched.Apply(sc)
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}

	if len(changedJobs) > 0 {
		if err := a.syncJobs(ctx, newCfg, changedJobs); err != nil {
			a.log.Error("job reload failed", logx.Err(err))
		}
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

// Stop cancels all triggers and background loops, then closes storage and
// the log sinks. Runs already in flight are left to finish on their own.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if a.sup != nil {
		a.sup.Cancel()
	}
	a.stopJobs()
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	if a.sup != nil {
		a.log.Debug("waiting for background loops", logx.Int("goroutines", int(a.sup.Active())))
		a.step(ctx, "supervisor", 2*time.Second, a.sup.Stop)
	}
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
