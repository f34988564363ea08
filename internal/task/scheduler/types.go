package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "releasepush/pkg/logx"
)

// ErrStopped is returned when registering on a stopped service.
var ErrStopped = errors.New("scheduler stopped")

// Config controls the scheduler service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Shanghai"; empty means Local
	// RunTimeout bounds each callback's context; 0 means no deadline.
	RunTimeout time.Duration
}

// Handle cancels one registration. Cancel is idempotent.
type Handle interface {
	Cancel() error
}

type entryKind string

const (
	kindCron entryKind = "cron"
	kindOnce entryKind = "once"
)

type entry struct {
	id   uint64
	name string
	kind entryKind
	spec string // normalized cron spec; once entries carry the delay
	fn   func(ctx context.Context)

	at      time.Time // once: fire time
	entryID cron.EntryID
	timer   *time.Timer
}

// EntryInfo describes one live registration.
type EntryInfo struct {
	Name string
	Kind string
	Spec string
	Next time.Time
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron

	baseCtx context.Context
	cancel  context.CancelFunc
	stopped bool

	nextID  uint64
	entries map[uint64]*entry
}

type handle struct {
	s  *Service
	id uint64
}

func (h handle) Cancel() error {
	if h.s == nil {
		return nil
	}
	return h.s.cancelEntry(h.id)
}
