package config

import (
	"bytes"
	"reflect"
	"strings"

	logx "releasepush/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes the bot token),
// and (3) the job names that were added, removed or edited.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.timeout", strings.TrimSpace(newCfg.HTTP.Timeout)),
			logx.Bool("http.proxy_set", strings.TrimSpace(newCfg.HTTP.Proxy) != ""),
			logx.Bool("http.user_agent_set", strings.TrimSpace(newCfg.HTTP.UserAgent) != ""),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.once_delay", strings.TrimSpace(newCfg.Scheduler.OnceDelay)),
			logx.String("scheduler.run_timeout", strings.TrimSpace(newCfg.Scheduler.RunTimeout)),
		)
	}

	// Notifier (never log token)
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.String("notifier.driver", newCfg.Notifier.driver()),
			logx.Bool("notifier.dry_run", newCfg.Notifier.DryRun),
			logx.Bool("notifier.token_set", strings.TrimSpace(newCfg.Notifier.Token) != ""),
			logx.Bool("notifier.token_changed", strings.TrimSpace(oldCfg.Notifier.Token) != strings.TrimSpace(newCfg.Notifier.Token)),
			logx.Int("notifier.thread_id", newCfg.Notifier.ThreadID),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	jobs := changedJobs(oldCfg, newCfg)
	if len(jobs) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs, logx.Strings("jobs.changed", jobs))
	}

	return changed, attrs, jobs
}

func changedJobs(oldCfg, newCfg *Config) []string {
	seen := make(map[string]struct{}, len(oldCfg.Jobs)+len(newCfg.Jobs))
	for k := range oldCfg.Jobs {
		seen[k] = struct{}{}
	}
	for k := range newCfg.Jobs {
		seen[k] = struct{}{}
	}

	var out []string
	for _, name := range sortedKeys(seen) {
		o, okOld := oldCfg.Jobs[name]
		n, okNew := newCfg.Jobs[name]
		if okOld != okNew {
			out = append(out, name)
			continue
		}
		if bytes.Equal(o, n) || oldCfg.JobHash(name) == newCfg.JobHash(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}
