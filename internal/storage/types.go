package storage

import (
	"errors"
	"time"

	"releasepush/internal/domain"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// JobRecord is the persisted state of one job.
//
// SeedHash is the hash of the config-file block the record was last seeded
// from; the host compares it to decide whether the file or the store wins.
type JobRecord struct {
	Config   domain.Config `json:"config"`
	SeedHash string        `json:"seed_hash,omitempty"`
	SavedAt  time.Time     `json:"saved_at"`
}

// RunEntry records one pipeline run. Keep it compact and schema-stable.
type RunEntry struct {
	At       time.Time `json:"at"`
	Job      string    `json:"job"`
	RunID    string    `json:"run_id"`
	Trigger  string    `json:"trigger"`
	Fetched  int       `json:"fetched"`
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
	Posted   int       `json:"posted"`
	Failed   int       `json:"failed"`
	Skipped  bool      `json:"skipped,omitempty"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}
