package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"releasepush/internal/config"
	"releasepush/internal/domain"
	"releasepush/internal/job"
	"releasepush/internal/storage"
	logx "releasepush/pkg/logx"
)

// resolveJob picks the settings a job starts from. The stored record wins
// while the file block is unchanged since it was last seeded; an edited (or
// new) file block is written to the store as the new seed.
func (a *App) resolveJob(ctx context.Context, cfg *config.Config, name string) (domain.Config, error) {
	fileCfg, err := cfg.Job(name)
	if err != nil {
		return domain.Config{}, err
	}
	if a.store == nil {
		return fileCfg, nil
	}

	hash := cfg.JobHash(name)
	rec, ok, err := a.store.LoadJob(ctx, name)
	if err != nil {
		a.log.Warn("stored job settings unreadable; using file", logx.String("job", name), logx.Err(err))
	} else if ok && rec.SeedHash == hash {
		return rec.Config, nil
	}

	if err := a.store.PutJob(ctx, name, storage.JobRecord{
		Config:   fileCfg,
		SeedHash: hash,
		SavedAt:  time.Now(),
	}); err != nil {
		a.log.Warn("job settings not persisted", logx.String("job", name), logx.Err(err))
	}
	return fileCfg, nil
}

func (a *App) newJob(name string, cfg *config.Config) (*job.Job, error) {
	delay, err := cfg.Scheduler.OnceDelayOr(job.DefaultOnceDelay)
	if err != nil {
		return nil, err
	}
	opt := job.Options{
		Name:      name,
		Scheduler: a.sched,
		Runner:    a.pipe,
		OnceDelay: delay,
		Log:       a.log.With(logx.String("comp", "job")),
	}
	if a.store != nil {
		opt.Store = a.store
		opt.RunLog = a.store
	}
	return job.New(opt)
}

// syncJobs brings the running jobs in line with cfg. With names nil every
// configured job is (re)initialized; otherwise only the named ones are
// touched, which is how reloads leave unchanged jobs running.
func (a *App) syncJobs(ctx context.Context, cfg *config.Config, names []string) error {
	if names == nil {
		names = cfg.JobNames()
	}

	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()

	var errs []error
	for _, name := range names {
		if _, ok := cfg.Jobs[name]; !ok {
			if j := a.jobs[name]; j != nil {
				j.Stop()
				delete(a.jobs, name)
				a.log.Info("job removed", logx.String("job", name))
			}
			continue
		}

		jc, err := a.resolveJob(ctx, cfg, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		j := a.jobs[name]
		if j == nil {
			if j, err = a.newJob(name, cfg); err != nil {
				errs = append(errs, err)
				continue
			}
			a.jobs[name] = j
		}
		if err := j.Init(ctx, jc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) stopJobs() {
	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()
	for _, j := range a.jobs {
		j.Stop()
	}
}

// JobStates reports every known job's lifecycle state.
func (a *App) JobStates() map[string]job.State {
	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()
	out := make(map[string]job.State, len(a.jobs))
	for name, j := range a.jobs {
		out[name] = j.State()
	}
	return out
}

// RunOnce runs every enabled job a single time, synchronously, without
// starting the scheduler. It returns an error when a job could not run or
// one of its sources failed.
func (a *App) RunOnce(ctx context.Context) error {
	cfg := a.cfgm.Get()
	var errs []error
	for _, name := range cfg.JobNames() {
		jc, err := a.resolveJob(ctx, cfg, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !jc.Enabled {
			a.log.Info("job disabled; skipped", logx.String("job", name))
			continue
		}
		j, err := a.newJob(name, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		// No triggers: the scheduler is never started in this mode.
		jc.Cron = ""
		jc.OnlyOnce = false
		if err := j.Init(ctx, jc); err != nil {
			errs = append(errs, err)
			continue
		}
		rep, err := j.RunNow(ctx)
		j.Stop()
		if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", name, err))
			continue
		}
		if rep.SourceErrors > 0 {
			errs = append(errs, fmt.Errorf("job %s: %d of %d sources failed", name, rep.SourceErrors, rep.Sources))
		}
	}
	return errors.Join(errs...)
}
