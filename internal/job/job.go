// Package job owns one pipeline job's lifecycle: config snapshot,
// trigger registration, run-once handling and overlap control.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"releasepush/internal/domain"
	"releasepush/internal/pipeline"
	"releasepush/internal/storage"
	"releasepush/internal/task/scheduler"
	logx "releasepush/pkg/logx"
)

// DefaultOnceDelay is how long a run-once request waits before firing.
const DefaultOnceDelay = 3 * time.Second

// ErrBusy is returned by RunNow while another run is in flight.
var ErrBusy = errors.New("job run already in progress")

type State int

const (
	StateDisabled State = iota
	StateIdle
	StateScheduledRecurring
	StateScheduledOnce
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateIdle:
		return "idle"
	case StateScheduledRecurring:
		return "scheduled_recurring"
	case StateScheduledOnce:
		return "scheduled_once"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scheduler registers triggers. *scheduler.Service implements it.
type Scheduler interface {
	RegisterCron(name, expr string, fn func(ctx context.Context)) (scheduler.Handle, error)
	RegisterOnce(name string, delay time.Duration, fn func(ctx context.Context)) (scheduler.Handle, error)
}

// ConfigStore persists the job's config after Init clears the run-once flag.
type ConfigStore interface {
	SaveConfig(ctx context.Context, name string, cfg domain.Config) error
}

// RunLog records finished and skipped runs.
type RunLog interface {
	AppendRun(ctx context.Context, e storage.RunEntry) error
}

// Runner executes one pipeline pass. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, cfg domain.Config) pipeline.Report
}

type Options struct {
	Name      string
	Scheduler Scheduler
	Runner    Runner
	Store     ConfigStore // optional
	RunLog    RunLog      // optional
	OnceDelay time.Duration
	Log       logx.Logger
}

type Job struct {
	name      string
	sched     Scheduler
	runner    Runner
	store     ConfigStore
	runLog    RunLog
	onceDelay time.Duration
	log       logx.Logger

	mu      sync.Mutex
	cfg     domain.Config
	state   State
	handles []scheduler.Handle
	// gen changes on every Init/Stop so a stale one-shot completion cannot
	// register triggers for a config that is no longer current.
	gen uint64

	running atomic.Bool
}

func New(opt Options) (*Job, error) {
	if opt.Name == "" {
		return nil, errors.New("job name required")
	}
	if opt.Scheduler == nil || opt.Runner == nil {
		return nil, errors.New("job requires a scheduler and a runner")
	}
	if opt.OnceDelay <= 0 {
		opt.OnceDelay = DefaultOnceDelay
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	return &Job{
		name:      opt.Name,
		sched:     opt.Scheduler,
		runner:    opt.Runner,
		store:     opt.Store,
		runLog:    opt.RunLog,
		onceDelay: opt.OnceDelay,
		log:       opt.Log.With(logx.String("job", opt.Name)),
		state:     StateDisabled,
	}, nil
}

func (j *Job) Name() string { return j.name }

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Config returns the current snapshot.
func (j *Job) Config() domain.Config {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cfg.WithDefaults()
}

// Init replaces the job's config and re-registers its triggers. Any previous
// registration is cancelled first. With onlyonce set, a single delayed run
// is registered and the flag is persisted as cleared; the recurring trigger
// (if enabled) takes over only after that run completes.
func (j *Job) Init(ctx context.Context, cfg domain.Config) error {
	j.Stop()

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.name, err)
	}
	if cfg.Enabled && cfg.Cron != "" {
		if err := scheduler.Validate(cfg.Cron); err != nil {
			return fmt.Errorf("job %s: %w", j.name, err)
		}
	}

	j.mu.Lock()
	j.gen++
	gen := j.gen
	runOnce := cfg.OnlyOnce
	cfg.OnlyOnce = false
	j.cfg = cfg

	var err error
	switch {
	case runOnce:
		err = j.registerOnceLocked(gen)
	case cfg.Enabled && cfg.Cron != "":
		err = j.registerCronLocked()
	default:
		j.state = j.restingStateLocked()
	}
	state := j.state
	j.mu.Unlock()
	if err != nil {
		return err
	}

	if runOnce && j.store != nil {
		// Clear the flag durably so a restart does not run again.
		if serr := j.store.SaveConfig(ctx, j.name, cfg); serr != nil {
			j.log.Warn("failed to persist cleared onlyonce flag", logx.Err(serr))
		}
	}
	j.log.Info("job initialized",
		logx.String("state", state.String()),
		logx.Bool("enabled", cfg.Enabled),
		logx.String("cron", cfg.Cron),
		logx.Int("sources", len(cfg.Sources)),
	)
	return nil
}

// Stop cancels every registered trigger. It never fails and is safe to call
// repeatedly; a run already in flight is left to finish.
func (j *Job) Stop() {
	j.mu.Lock()
	j.gen++
	hs := j.handles
	j.handles = nil
	j.state = StateStopped
	j.mu.Unlock()

	for _, h := range hs {
		if err := h.Cancel(); err != nil {
			j.log.Warn("trigger cancel failed", logx.Err(err))
		}
	}
}

// RunNow runs the pipeline synchronously with the current snapshot.
func (j *Job) RunNow(ctx context.Context) (pipeline.Report, error) {
	rep, ran := j.run(ctx, "manual")
	if !ran {
		return rep, ErrBusy
	}
	return rep, nil
}

func (j *Job) registerCronLocked() error {
	h, err := j.sched.RegisterCron(j.name, j.cfg.Cron, func(ctx context.Context) {
		j.run(ctx, "cron")
	})
	if err != nil {
		j.state = StateStopped
		return fmt.Errorf("job %s: register cron: %w", j.name, err)
	}
	j.handles = append(j.handles, h)
	j.state = StateScheduledRecurring
	return nil
}

func (j *Job) registerOnceLocked(gen uint64) error {
	h, err := j.sched.RegisterOnce(j.name+":once", j.onceDelay, func(ctx context.Context) {
		j.run(ctx, "once")
		j.afterOnce(gen)
	})
	if err != nil {
		j.state = StateStopped
		return fmt.Errorf("job %s: register one-shot: %w", j.name, err)
	}
	j.handles = append(j.handles, h)
	j.state = StateScheduledOnce
	return nil
}

// afterOnce moves the job from its one-shot to its resting schedule.
func (j *Job) afterOnce(gen uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.gen != gen {
		return
	}
	// The fired one-shot is spent; Cancel only releases its registration.
	for _, h := range j.handles {
		_ = h.Cancel()
	}
	j.handles = nil
	if j.cfg.Enabled && j.cfg.Cron != "" {
		if err := j.registerCronLocked(); err != nil {
			j.log.Error("recurring schedule not registered after run-once", logx.Err(err))
		}
		return
	}
	j.state = j.restingStateLocked()
}

func (j *Job) restingStateLocked() State {
	if j.cfg.Enabled {
		return StateIdle
	}
	return StateDisabled
}

// run executes one pass unless another is in flight (skip-if-busy).
func (j *Job) run(ctx context.Context, trigger string) (pipeline.Report, bool) {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn("trigger skipped: previous run still in flight", logx.String("trigger", trigger))
		j.record(storage.RunEntry{Job: j.name, Trigger: trigger, Skipped: true})
		return pipeline.Report{}, false
	}
	defer j.running.Store(false)

	cfg := j.Config()
	runID := uuid.NewString()
	log := j.log.With(logx.String("run", runID), logx.String("trigger", trigger))
	ctx = logx.WithContext(ctx, log)

	start := time.Now()
	log.Info("run started", logx.Int("sources", len(cfg.Sources)))

	var rep pipeline.Report
	var pc panics.Catcher
	pc.Try(func() { rep = j.runner.Run(ctx, cfg) })

	entry := storage.RunEntry{
		At:       start,
		Job:      j.name,
		RunID:    runID,
		Trigger:  trigger,
		Fetched:  rep.Fetched,
		Accepted: rep.Accepted,
		Rejected: rep.RejectedTotal(),
		Posted:   rep.Posted,
		Failed:   rep.Failed,
		TookMS:   time.Since(start).Milliseconds(),
	}
	if r := pc.Recovered(); r != nil {
		entry.Error = r.AsError().Error()
		log.Error("run panicked", logx.Err(r.AsError()), logx.Stack(string(r.Stack)))
	} else {
		log.Info("run finished",
			logx.Int("fetched", rep.Fetched),
			logx.Int("accepted", rep.Accepted),
			logx.String("rejected", rep.RejectedSummary()),
			logx.Int("posted", rep.Posted),
			logx.Int("failed", rep.Failed),
			logx.Int("source_errors", rep.SourceErrors),
			logx.Duration("took", time.Since(start)),
		)
	}
	j.record(entry)
	return rep, true
}

func (j *Job) record(e storage.RunEntry) {
	if j.runLog == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := j.runLog.AppendRun(ctx, e); err != nil {
		j.log.Debug("run log append failed", logx.Err(err))
	}
}
