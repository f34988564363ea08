package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "releasepush/pkg/logx"
)

// RegisterCron registers a recurring trigger. expr accepts everything
// ParseSchedule does (cron, descriptors, Go durations, HH:MM intervals).
// An invalid expression is rejected before anything is registered.
func (s *Service) RegisterCron(name, expr string, fn func(ctx context.Context)) (Handle, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}
	if fn == nil {
		return nil, errors.New("callback required")
	}
	if err := Validate(expr); err != nil {
		return nil, err
	}
	ps, _ := ParseSchedule(expr)
	spec := ps.CronSpec()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	e := s.newEntryLocked(name, kindCron, spec, fn)
	if s.c != nil {
		s.attachLocked(e)
		args := []logx.Field{logx.String("name", name), logx.String("spec", spec)}
		if next := s.previewNextRunsLocked(spec, 3); next != "" {
			args = append(args, logx.String("next", next))
		}
		s.log.Debug("schedule registered", args...)
	}
	return handle{s: s, id: e.id}, nil
}

// RegisterOnce fires fn once after delay. Negative delays fire immediately.
func (s *Service) RegisterOnce(name string, delay time.Duration, fn func(ctx context.Context)) (Handle, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}
	if fn == nil {
		return nil, errors.New("callback required")
	}
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	e := s.newEntryLocked(name, kindOnce, "@in "+delay.String(), fn)
	e.at = time.Now().Add(delay)
	id := e.id
	e.timer = time.AfterFunc(delay, func() { s.fireOnce(id) })
	s.log.Debug("one-shot registered", logx.String("name", name), logx.Duration("delay", delay))
	return handle{s: s, id: id}, nil
}

// CancelAll cancels every live registration.
func (s *Service) CancelAll() {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		_ = s.cancelEntry(id)
	}
}

// Entries lists live registrations ordered by name.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		info := EntryInfo{Name: e.name, Kind: string(e.kind), Spec: e.spec}
		switch {
		case e.kind == kindOnce:
			info.Next = e.at
		case s.c != nil && e.entryID != 0:
			info.Next = s.c.Entry(e.entryID).Next
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func (s *Service) newEntryLocked(name string, kind entryKind, spec string, fn func(ctx context.Context)) *entry {
	s.nextID++
	e := &entry{id: s.nextID, name: name, kind: kind, spec: spec, fn: fn}
	s.entries[e.id] = e
	return e
}

// attachLocked adds a cron entry to the running cron instance.
func (s *Service) attachLocked(e *entry) {
	sched, err := s.parser.Parse(e.spec)
	if err != nil {
		// Validated at registration; only reachable if the parser changed.
		s.log.Error("schedule register failed", logx.String("name", e.name), logx.String("spec", e.spec), logx.Err(err))
		return
	}
	id := e.id
	e.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.fireCron(id) }))
}

func (s *Service) fireCron(id uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.invoke(e)
}

func (s *Service) fireOnce(id uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.invoke(e)
}

func (s *Service) invoke(e *entry) {
	s.mu.Lock()
	base := s.baseCtx
	timeout := s.cfg.RunTimeout
	s.mu.Unlock()

	ctx := base
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, timeout)
		defer cancel()
	}
	s.log.Debug("trigger fired", logx.String("name", e.name), logx.String("kind", string(e.kind)))
	e.fn(ctx)
}

func (s *Service) cancelEntry(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	delete(s.entries, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.entryID != 0 && s.c != nil {
		s.c.Remove(e.entryID)
	}
	s.log.Debug("schedule removed", logx.String("name", e.name), logx.String("kind", string(e.kind)))
	return nil
}

// previewNextRunsLocked lists upcoming fire times for debug logs.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// Validate reports whether expr would be accepted by RegisterCron.
func Validate(expr string) error {
	ps, err := ParseSchedule(expr)
	if err != nil {
		return err
	}
	if _, err := standardParser.Parse(ps.CronSpec()); err != nil {
		return fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return nil
}
