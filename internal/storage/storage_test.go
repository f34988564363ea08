package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

func sampleConfig() domain.Config {
	return domain.Config{
		Enabled: true,
		Cron:    "0 9 * * *",
		Sources: []domain.SourceConfig{{Kind: domain.SourceTMDBJSON, URL: "https://x/{date}.json", Category: "series"}},
		Series:  domain.FilterSettings{Languages: []string{"zh"}, BlockGenres: domain.Tags{"16"}},
	}
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := st.LoadJob(ctx, "daily"); err != nil || ok {
		t.Fatalf("LoadJob on empty store: ok=%v err=%v", ok, err)
	}

	if err := st.PutJob(ctx, "daily", JobRecord{Config: sampleConfig(), SeedHash: "abc"}); err != nil {
		t.Fatalf("PutJob: %v", err)
	}
	rec, ok, err := st.LoadJob(ctx, "daily")
	if err != nil || !ok {
		t.Fatalf("LoadJob: ok=%v err=%v", ok, err)
	}
	if rec.SeedHash != "abc" || rec.Config.Cron != "0 9 * * *" || !rec.Config.Series.BlockGenres.Contains("16") {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.SavedAt.IsZero() {
		t.Fatalf("expected SavedAt to be set")
	}

	cfg := rec.Config
	cfg.OnlyOnce = false
	cfg.Enabled = false
	if err := st.SaveConfig(ctx, "daily", cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	rec, _, _ = st.LoadJob(ctx, "daily")
	if rec.Config.Enabled || rec.SeedHash != "abc" {
		t.Fatalf("SaveConfig must replace config and keep seed hash: %+v", rec)
	}

	for i := 0; i < 5; i++ {
		e := RunEntry{Job: "daily", RunID: string(rune('a' + i)), Trigger: "cron", Posted: i, At: time.Now()}
		if err := st.AppendRun(ctx, e); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	if err := st.AppendRun(ctx, RunEntry{Job: "other", RunID: "z", Trigger: "once"}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	runs, err := st.RecentRuns(ctx, "daily", 3)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].RunID != "e" || runs[2].RunID != "c" {
		t.Fatalf("unexpected recent runs: %+v", runs)
	}
	all, err := st.RecentRuns(ctx, "", 100)
	if err != nil || len(all) != 6 {
		t.Fatalf("expected 6 runs overall, got %d (err=%v)", len(all), err)
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	st, err := OpenFile(fs, "/data/releasepush.db", logx.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	exerciseStore(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: job snapshot and run log survive.
	st2, err := OpenFile(fs, "/data/releasepush.db", logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	rec, ok, err := st2.LoadJob(context.Background(), "daily")
	if err != nil || !ok || rec.SeedHash != "abc" {
		t.Fatalf("reloaded record: ok=%v err=%v rec=%+v", ok, err, rec)
	}
	runs, err := st2.RecentRuns(context.Background(), "other", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("reloaded runs: %v err=%v", runs, err)
	}
	if ok, _ := afero.Exists(fs, "/data/releasepush.jobs.json.tmp"); ok {
		t.Fatalf("tmp snapshot left behind")
	}
}

func TestFileStoreSaveConfigKeepsLatestSeed(t *testing.T) {
	t.Parallel()

	st, err := OpenFile(afero.NewMemMapFs(), "/data/releasepush.db", logx.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	const reseeds = 20
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= reseeds; i++ {
			if err := st.PutJob(ctx, "daily", JobRecord{Config: sampleConfig(), SeedHash: fmt.Sprintf("s%d", i)}); err != nil {
				t.Errorf("PutJob: %v", err)
			}
		}
	}()
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < reseeds; i++ {
				if err := st.SaveConfig(ctx, "daily", sampleConfig()); err != nil {
					t.Errorf("SaveConfig: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	rec, ok, err := st.LoadJob(ctx, "daily")
	want := fmt.Sprintf("s%d", reseeds)
	if err != nil || !ok || rec.SeedHash != want {
		t.Fatalf("seed hash = %q, want %q (ok=%v err=%v)", rec.SeedHash, want, ok, err)
	}
}

func TestFileStoreRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenFile(afero.NewMemMapFs(), " ", logx.Nop()); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.sqlite")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("expected disabled store, got %v err=%v", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
