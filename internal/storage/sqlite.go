package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

// maxRuns bounds the run history table.
const maxRuns = 5000

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 200}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadJob(ctx context.Context, name string) (JobRecord, bool, error) {
	if s == nil || s.db == nil {
		return JobRecord{}, false, ErrDisabled
	}
	var (
		raw     string
		seed    sql.NullString
		savedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT config, seed_hash, saved_at FROM jobs WHERE name = ?`, strings.TrimSpace(name),
	).Scan(&raw, &seed, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, false, nil
	}
	if err != nil {
		return JobRecord{}, false, err
	}
	var cfg domain.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return JobRecord{}, false, fmt.Errorf("decode stored config %q: %w", name, err)
	}
	at, _ := time.Parse(time.RFC3339Nano, savedAt)
	return JobRecord{Config: cfg, SeedHash: seed.String, SavedAt: at}, true, nil
}

func (s *sqliteStore) PutJob(ctx context.Context, name string, rec JobRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name is empty")
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now()
	}
	b, err := json.Marshal(rec.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(name, config, seed_hash, saved_at) VALUES(?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET config=excluded.config, seed_hash=excluded.seed_hash, saved_at=excluded.saved_at`,
		name, string(b), nullStr(rec.SeedHash), rec.SavedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) SaveConfig(ctx context.Context, name string, cfg domain.Config) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(name, config, saved_at) VALUES(?,?,?)
		 ON CONFLICT(name) DO UPDATE SET config=excluded.config, saved_at=excluded.saved_at`,
		strings.TrimSpace(name), string(b), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, job, run_id, trigger_kind, fetched, accepted, rejected, posted, failed, skipped, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Job, e.RunID, e.Trigger,
		e.Fetched, e.Accepted, e.Rejected, e.Posted, e.Failed, boolInt(e.Skipped), nullStr(e.Error), e.TookMS,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.pruneRuns(pctx); perr != nil {
			s.log.Debug("run history prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, job string, limit int) ([]RunEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, job, run_id, trigger_kind, fetched, accepted, rejected, posted, failed, skipped, err, took_ms
		 FROM runs WHERE (? = '' OR job = ?) ORDER BY id DESC LIMIT ?`,
		job, job, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RunEntry, 0, limit)
	for rows.Next() {
		var (
			e       RunEntry
			at      string
			skipped int
			errStr  sql.NullString
		)
		if err := rows.Scan(&at, &e.Job, &e.RunID, &e.Trigger, &e.Fetched, &e.Accepted, &e.Rejected,
			&e.Posted, &e.Failed, &skipped, &errStr, &e.TookMS); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Skipped = skipped != 0
		e.Error = errStr.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) pruneRuns(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id <= (SELECT COALESCE(MAX(id), 0) - ? FROM runs)`, maxRuns)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
