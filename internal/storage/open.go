package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/afero"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

// Store is the persistence API used by the host and jobs.
type Store interface {
	LoadJob(ctx context.Context, name string) (JobRecord, bool, error)
	PutJob(ctx context.Context, name string, rec JobRecord) error
	// SaveConfig replaces the stored config and keeps the seed hash.
	SaveConfig(ctx context.Context, name string, cfg domain.Config) error
	AppendRun(ctx context.Context, e RunEntry) error
	RecentRuns(ctx context.Context, job string, limit int) ([]RunEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return OpenFile(afero.NewOsFs(), cfg.Path, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
