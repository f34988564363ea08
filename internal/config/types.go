package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"releasepush/internal/domain"
	"releasepush/internal/notify"
	"releasepush/internal/source"
	"releasepush/internal/storage"
	"releasepush/internal/task/scheduler"
	logx "releasepush/pkg/logx"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`

	// Jobs maps a job name to its raw pipeline settings. The raw form is
	// kept so the block can be hashed for seed precedence.
	Jobs map[string]json.RawMessage `json:"jobs"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

type HTTPConfig struct {
	UserAgent string `json:"user_agent,omitempty"`
	Proxy     string `json:"proxy,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

type SchedulerConfig struct {
	Timezone   string `json:"timezone,omitempty"`
	OnceDelay  string `json:"once_delay,omitempty"`
	RunTimeout string `json:"run_timeout,omitempty"`
}

type NotifierConfig struct {
	// Driver is telegram or log. Empty means log.
	Driver     string  `json:"driver,omitempty"`
	Token      string  `json:"token,omitempty"`
	ChatID     string  `json:"chat_id,omitempty"`
	ThreadID   int     `json:"thread_id,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	// DryRun logs messages instead of posting them, whatever the driver.
	DryRun bool `json:"dry_run,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

const (
	DefaultHTTPTimeout = 20 * time.Second
	DefaultRunTimeout  = 10 * time.Minute
)

// Validate checks every section and decodes every job block.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := c.HTTP.Options(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scheduler.Options(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scheduler.OnceDelayOr(0); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Storage.Options(); err != nil {
		errs = append(errs, err)
	}
	switch c.Notifier.driver() {
	case "log":
	case "telegram":
		if !c.Notifier.DryRun {
			if _, err := c.Notifier.Telegram(); err != nil {
				errs = append(errs, err)
			}
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.driver: unknown driver %q", c.Notifier.Driver))
	}
	for _, name := range c.JobNames() {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("jobs: empty job name"))
			continue
		}
		jc, err := c.Job(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := jc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("jobs.%s: %w", name, err))
		}
		if jc.Enabled && jc.Cron != "" {
			if err := scheduler.Validate(jc.Cron); err != nil {
				errs = append(errs, fmt.Errorf("jobs.%s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (l LoggingConfig) Options() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
	}
}

func (h HTTPConfig) Options() (source.Options, error) {
	d, err := ParseDurationOrDefault("http.timeout", h.Timeout, DefaultHTTPTimeout)
	if err != nil {
		return source.Options{}, err
	}
	return source.Options{
		UserAgent: strings.TrimSpace(h.UserAgent),
		Proxy:     strings.TrimSpace(h.Proxy),
		Timeout:   d,
	}, nil
}

func (s SchedulerConfig) Options() (scheduler.Config, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	d, err := ParseDurationOrDefault("scheduler.run_timeout", s.RunTimeout, DefaultRunTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Timezone: tz, RunTimeout: d}, nil
}

// OnceDelayOr returns the configured run-once delay, or def when unset.
func (s SchedulerConfig) OnceDelayOr(def time.Duration) (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.once_delay", s.OnceDelay, def)
}

func (s StorageConfig) Options() (storage.Config, error) {
	d, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(s.Driver),
		Path:        strings.TrimSpace(s.Path),
		BusyTimeout: d,
	}, nil
}

func (n NotifierConfig) driver() string {
	d := strings.ToLower(strings.TrimSpace(n.Driver))
	if d == "" {
		return "log"
	}
	return d
}

// UsesTelegram reports whether messages go to Telegram.
func (n NotifierConfig) UsesTelegram() bool {
	return n.driver() == "telegram" && !n.DryRun
}

func (n NotifierConfig) Telegram() (notify.TelegramConfig, error) {
	tok := strings.TrimSpace(n.Token)
	if tok == "" {
		return notify.TelegramConfig{}, errors.New("notifier.token: required for telegram driver")
	}
	chat, err := strconv.ParseInt(strings.TrimSpace(n.ChatID), 10, 64)
	if err != nil || chat == 0 {
		return notify.TelegramConfig{}, fmt.Errorf("notifier.chat_id: invalid chat id %q", n.ChatID)
	}
	if n.ThreadID < 0 {
		return notify.TelegramConfig{}, errors.New("notifier.thread_id: must be >= 0")
	}
	return notify.TelegramConfig{
		Token:      tok,
		ChatID:     chat,
		ThreadID:   n.ThreadID,
		RatePerSec: n.RatePerSec,
	}, nil
}

// JobNames returns the configured job names in sorted order.
func (c *Config) JobNames() []string {
	return sortedKeys(c.Jobs)
}

// Job decodes the named job block.
func (c *Config) Job(name string) (domain.Config, error) {
	raw, ok := c.Jobs[name]
	if !ok {
		return domain.Config{}, fmt.Errorf("jobs.%s: not configured", name)
	}
	jc, err := domain.DecodeConfig(raw)
	if err != nil {
		return domain.Config{}, fmt.Errorf("jobs.%s: %w", name, err)
	}
	return jc, nil
}

// JobHash fingerprints the named job block independent of key order and
// whitespace. It returns "" for an unknown job.
func (c *Config) JobHash(name string) string {
	raw, ok := c.Jobs[name]
	if !ok {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Sprintf("%016x", hashBytes(raw))
	}
	// encoding/json sorts map keys, which makes the output canonical.
	canon, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%016x", hashBytes(raw))
	}
	return fmt.Sprintf("%016x", hashBytes(canon))
}
