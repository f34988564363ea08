package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

// fileStore keeps everything in two files next to Path:
//   - <prefix>.jobs.json  (snapshot, rewritten via tmp + rename)
//   - <prefix>.runs.jsonl (append-only JSON Lines)
type fileStore struct {
	fs  afero.Fs
	log logx.Logger

	mu sync.Mutex

	jobsPath string
	runsPath string
	runsFile afero.File
	jobs     map[string]JobRecord
}

// OpenFile opens the file driver on fs. Tests pass afero.NewMemMapFs().
func OpenFile(fs afero.Fs, path string, log logx.Logger) (Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		fs:       fs,
		log:      log,
		jobsPath: prefix + ".jobs.json",
		runsPath: prefix + ".runs.jsonl",
		jobs:     map[string]JobRecord{},
	}
	if err := s.loadJobs(); err != nil {
		return nil, err
	}

	rf, err := fs.OpenFile(s.runsPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.runsFile = rf
	return s, nil
}

func (s *fileStore) loadJobs() error {
	b, err := afero.ReadFile(s.fs, s.jobsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &s.jobs); err != nil {
		return err
	}
	if s.jobs == nil {
		s.jobs = map[string]JobRecord{}
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil
	}
	err := s.runsFile.Close()
	s.runsFile = nil
	return err
}

func (s *fileStore) LoadJob(_ context.Context, name string) (JobRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[strings.TrimSpace(name)]
	return rec, ok, nil
}

func (s *fileStore) PutJob(_ context.Context, name string, rec JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJobLocked(name, rec)
}

// SaveConfig keeps the stored seed hash; the read and the write happen
// under one lock so a concurrent reseed is never overwritten with a stale hash.
func (s *fileStore) SaveConfig(_ context.Context, name string, cfg domain.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.jobs[strings.TrimSpace(name)]
	return s.putJobLocked(name, JobRecord{Config: cfg, SeedHash: prev.SeedHash, SavedAt: time.Now()})
}

func (s *fileStore) putJobLocked(name string, rec JobRecord) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name is empty")
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now()
	}
	prev, had := s.jobs[name]
	s.jobs[name] = rec
	if err := s.flushJobsLocked(); err != nil {
		if had {
			s.jobs[name] = prev
		} else {
			delete(s.jobs, name)
		}
		return err
	}
	return nil
}

func (s *fileStore) flushJobsLocked() error {
	b, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.jobsPath + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o600); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.jobsPath)
}

func (s *fileStore) AppendRun(_ context.Context, e RunEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errors.New("run log closed")
	}
	return json.NewEncoder(s.runsFile).Encode(e)
}

// RecentRuns returns up to limit newest entries for job, newest first.
// An empty job matches every entry.
func (s *fileStore) RecentRuns(_ context.Context, job string, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fs.Open(s.runsPath)
	if errors.Is(err, os.ErrNotExist) {
		return []RunEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []RunEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e RunEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			s.log.Debug("skipping malformed run entry", logx.Err(err))
			continue
		}
		if job != "" && e.Job != job {
			continue
		}
		all = append(all, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]RunEntry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
