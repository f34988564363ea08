package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
http:
  timeout: 5s
scheduler:
  timezone: Asia/Shanghai
  once_delay: 2s
notifier:
  driver: telegram
  token: "123:abc"
  chat_id: "-100200"
  thread_id: 7
storage:
  driver: file
  path: ./data/releasepush
jobs:
  tmdb:
    enabled: true
    cron: "0 9 * * *"
    image_base: https://img.example
    sources:
      - kind: tmdb_json
        category: series
        url: https://api.example/tv/{date}
    series:
      languages: [zh, en]
      block_genres: [16, "动画"]
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get should return the committed config")
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}

	tg, err := cfg.Notifier.Telegram()
	if err != nil {
		t.Fatalf("Telegram: %v", err)
	}
	if tg.ChatID != -100200 || tg.ThreadID != 7 {
		t.Fatalf("telegram = %+v", tg)
	}
	if !cfg.Notifier.UsesTelegram() {
		t.Fatalf("expected telegram driver")
	}

	opt, err := cfg.HTTP.Options()
	if err != nil || opt.Timeout != 5*time.Second {
		t.Fatalf("http options = %+v, %v", opt, err)
	}
	d, err := cfg.Scheduler.OnceDelayOr(time.Second)
	if err != nil || d != 2*time.Second {
		t.Fatalf("once delay = %v, %v", d, err)
	}

	names := cfg.JobNames()
	if len(names) != 1 || names[0] != "tmdb" {
		t.Fatalf("jobs = %v", names)
	}
	jc, err := cfg.Job("tmdb")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if !jc.Enabled || jc.Cron != "0 9 * * *" || len(jc.Sources) != 1 {
		t.Fatalf("job = %+v", jc)
	}
	if got := []string(jc.Series.BlockGenres); len(got) != 2 || got[0] != "16" || got[1] != "动画" {
		t.Fatalf("block genres = %v", got)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		path string
		body string
	}{
		{"unknown field", "c.json", `{"logging":{"level":"info"},"bogus":1}`},
		{"trailing data", "c.json", `{"logging":{}} {"logging":{}}`},
		{"bad yaml", "c.yaml", "logging: [unclosed"},
		{"two yaml documents", "c.yaml", "logging: {}\n---\nlogging: {}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.path, []byte(tc.body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecodeYAMLNumericJobName(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("c.yml", []byte("jobs:\n  2024:\n    enabled: true\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := cfg.Jobs["2024"]; !ok {
		t.Fatalf("numeric job key lost: %v", cfg.JobNames())
	}

	empty, err := Decode("c.yaml", nil)
	if err != nil || empty == nil {
		t.Fatalf("empty yaml file = %v, %v", empty, err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"minimal", `{}`, ""},
		{"bad timeout", `{"http":{"timeout":"soon"}}`, "http.timeout"},
		{"bad timezone", `{"scheduler":{"timezone":"Mars/Base"}}`, "scheduler.timezone"},
		{"bad driver", `{"notifier":{"driver":"pigeon"}}`, "notifier.driver"},
		{"telegram without token", `{"notifier":{"driver":"telegram","chat_id":"1"}}`, "notifier.token"},
		{"telegram dry run", `{"notifier":{"driver":"telegram","dry_run":true}}`, ""},
		{"bad chat id", `{"notifier":{"driver":"telegram","token":"t","chat_id":"abc"}}`, "notifier.chat_id"},
		{"bad job cron", `{"jobs":{"a":{"enabled":true,"cron":"not a cron"}}}`, "jobs.a"},
		{"disabled job bad cron", `{"jobs":{"a":{"enabled":false,"cron":"not a cron"}}}`, ""},
		{"unknown job field", `{"jobs":{"a":{"enabled":true,"nope":1}}}`, "jobs.a"},
		{"bad source", `{"jobs":{"a":{"sources":[{"kind":"tmdb_json","url":"u"}]}}}`, "tmdb_json requires category"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode("c.json", []byte(tc.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			err = cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestJobHashIgnoresKeyOrder(t *testing.T) {
	t.Parallel()

	a, err := Decode("a.json", []byte(`{"jobs":{"j":{"enabled":true,"cron":"@daily"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Decode("b.json", []byte(`{"jobs":{"j":{ "cron": "@daily", "enabled": true }}}`))
	if err != nil {
		t.Fatal(err)
	}
	c, err := Decode("c.json", []byte(`{"jobs":{"j":{"enabled":false,"cron":"@daily"}}}`))
	if err != nil {
		t.Fatal(err)
	}

	if a.JobHash("j") == "" || a.JobHash("j") != b.JobHash("j") {
		t.Fatalf("hash should ignore key order: %q vs %q", a.JobHash("j"), b.JobHash("j"))
	}
	if a.JobHash("j") == c.JobHash("j") {
		t.Fatalf("hash should change with content")
	}
	if a.JobHash("missing") != "" {
		t.Fatalf("unknown job should hash to empty")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg, err := Decode("o.json", []byte(`{
		"notifier":{"driver":"telegram","token":"secret-1","chat_id":"1"},
		"jobs":{"keep":{"cron":"@daily"},"edit":{"cron":"@daily"},"gone":{}}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	newCfg, err := Decode("n.json", []byte(`{
		"notifier":{"driver":"telegram","token":"secret-2","chat_id":"1"},
		"jobs":{"keep":{ "cron": "@daily" },"edit":{"cron":"@hourly"},"added":{}}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	sections, attrs, jobs := SummarizeChange(oldCfg, newCfg)
	if strings.Join(sections, ",") != "notifier,jobs" {
		t.Fatalf("sections = %v", sections)
	}
	if strings.Join(jobs, ",") != "added,edit,gone" {
		t.Fatalf("jobs = %v", jobs)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}

	if s, _, j := SummarizeChange(oldCfg, oldCfg); len(s) != 0 || len(j) != 0 {
		t.Fatalf("identical configs reported changes: %v %v", s, j)
	}
}

func TestSubscribeKeepsLatest(t *testing.T) {
	t.Parallel()

	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)

	select {
	case got := <-ch:
		if got != second {
			t.Fatalf("expected the newest config")
		}
	default:
		t.Fatalf("nothing delivered")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	m.publish(first) // must not panic on the removed subscriber
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json", `{"logging":{"level":"info"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(150 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"notifier":{"driver":"pigeon"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * reloadDebounce)
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no config published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("committed config not updated")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Watch did not return after cancel")
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration accepted")
	}
	if _, err := ParseDurationField("http.timeout", "soon"); err == nil || !strings.HasPrefix(err.Error(), "http.timeout:") {
		t.Fatalf("error should name the field: %v", err)
	}
	if d, err := ParseDurationOrDefault("x", "0s", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("zero should take the default: %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("90s = %v, %v", d, err)
	}
}
