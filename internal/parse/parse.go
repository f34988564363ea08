// Package parse turns raw source documents into normalized domain.Items.
//
// Every strategy extracts fields independently: a missing or malformed field
// yields its documented default and never drops the item or the batch. Only a
// payload that cannot be decoded at all is reported, as *ParseError.
package parse

import (
	"fmt"
	"strings"
	"time"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

// Options carries per-source context into a parser.
type Options struct {
	// Category is the default category for sources that do not tag items.
	Category domain.Category
	// BaseURL resolves relative links (schedule pages).
	BaseURL string
	// Ref is the run time; day-only dates resolve against its month.
	Ref time.Time
	Log logx.Logger
}

// Parse dispatches to the strategy for kind.
func Parse(kind domain.SourceKind, data []byte, opt Options) ([]domain.Item, error) {
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	if opt.Ref.IsZero() {
		opt.Ref = time.Now()
	}
	switch kind {
	case domain.SourceCalendarHTML:
		return Calendar(data, opt.Log)
	case domain.SourceScheduleHTML:
		return Schedule(data, opt.BaseURL, opt.Ref, opt.Log)
	case domain.SourceTMDBJSON:
		return Feed(data, opt.Category, opt.Log)
	case domain.SourceRSS:
		return RSS(data, opt.Category, opt.Ref.Location(), opt.Log)
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// normSpace collapses runs of whitespace and trims the ends.
func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// setReleaseDate fills ReleaseDateRaw/ReleaseDate. An unparseable date is
// logged and leaves ReleaseDate empty.
func setReleaseDate(it *domain.Item, raw string, log logx.Logger) {
	it.ReleaseDateRaw = raw
	if strings.TrimSpace(raw) == "" {
		return
	}
	key, err := NormalizeDate(raw)
	if err != nil {
		log.Warn("release date not recognized; item excluded from same-day matching",
			logx.String("title", it.Title), logx.String("date", raw), logx.Err(err))
		return
	}
	it.ReleaseDate = key
}
