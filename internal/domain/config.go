package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultImageBase         = "https://image.tmdb.org/t/p/w1280"
	DefaultReferenceLanguage = "zh"
)

// SourceKind selects the parsing strategy for a source.
type SourceKind string

const (
	SourceCalendarHTML SourceKind = "calendar_html"
	SourceScheduleHTML SourceKind = "schedule_html"
	SourceTMDBJSON     SourceKind = "tmdb_json"
	SourceRSS          SourceKind = "rss"
)

// Config is the persisted per-job configuration.
//
// A running job only ever sees a copy taken at Init time.
type Config struct {
	Enabled  bool   `json:"enabled"`
	OnlyOnce bool   `json:"onlyonce"`
	Cron     string `json:"cron"`

	ImageBase         string `json:"image_base,omitempty"`
	ReferenceLanguage string `json:"reference_language,omitempty"`

	Sources []SourceConfig `json:"sources"`

	Series FilterSettings `json:"series"`
	Movie  FilterSettings `json:"movie"`
}

type SourceConfig struct {
	Name string     `json:"name,omitempty"`
	Kind SourceKind `json:"kind"`
	// URL may contain "{date}", expanded to YYYYMMDD of the run day.
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
	// MatchToday keeps only items whose release date is the run day.
	MatchToday bool `json:"match_today,omitempty"`
	// Digest posts one aggregated message for the whole source.
	Digest bool `json:"digest,omitempty"`
}

// FilterSettings are the per-category filter knobs.
type FilterSettings struct {
	Languages          []string `json:"languages,omitempty"`
	BlockGenres        Tags     `json:"block_genres,omitempty"`
	RequireCover       bool     `json:"require_cover,omitempty"`
	BackdropOnly       bool     `json:"backdrop_only,omitempty"`
	LocalizedTitleOnly bool     `json:"localized_title_only,omitempty"`
	Providers          []int64  `json:"providers,omitempty"`
}

// Filters returns the settings for a category. Unknown categories use the
// series settings.
func (c Config) Filters(cat Category) FilterSettings {
	if cat == CategoryMovie {
		return c.Movie
	}
	return c.Series
}

// SourceCategory resolves the category a source's items default to.
func (s SourceConfig) SourceCategory() Category {
	if cat, ok := ParseCategory(s.Category); ok {
		return cat
	}
	return CategorySeries
}

// Label is a stable identifier for logs.
func (s SourceConfig) Label() string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	return string(s.Kind)
}

// WithDefaults returns a copy with defaults applied and nil lists normalized.
// Slices are copied so the result shares no backing arrays with c.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.ImageBase) == "" {
		c.ImageBase = DefaultImageBase
	}
	if strings.TrimSpace(c.ReferenceLanguage) == "" {
		c.ReferenceLanguage = DefaultReferenceLanguage
	}
	c.Cron = strings.TrimSpace(c.Cron)
	c.Sources = append([]SourceConfig{}, c.Sources...)
	c.Series = c.Series.clone()
	c.Movie = c.Movie.clone()
	return c
}

func (f FilterSettings) clone() FilterSettings {
	f.Languages = append([]string{}, f.Languages...)
	f.BlockGenres = append(Tags{}, f.BlockGenres...)
	f.Providers = append([]int64{}, f.Providers...)
	return f
}

// Validate checks structural consistency. Cron syntax is checked by the
// scheduler when the job is initialized.
func (c Config) Validate() error {
	var errs []error
	for i, s := range c.Sources {
		path := fmt.Sprintf("sources[%d]", i)
		switch s.Kind {
		case SourceCalendarHTML, SourceScheduleHTML, SourceRSS:
		case SourceTMDBJSON:
			if _, ok := ParseCategory(s.Category); !ok {
				errs = append(errs, fmt.Errorf("%s: tmdb_json requires category series|movie, got %q", path, s.Category))
			}
		case "":
			errs = append(errs, fmt.Errorf("%s: kind required", path))
		default:
			errs = append(errs, fmt.Errorf("%s: unknown kind %q", path, s.Kind))
		}
		if strings.TrimSpace(s.URL) == "" {
			errs = append(errs, fmt.Errorf("%s: url required", path))
		}
	}
	return errors.Join(errs...)
}

// DecodeConfig strictly decodes a job config document.
func DecodeConfig(raw []byte) (Config, error) {
	var c Config
	if len(bytes.TrimSpace(raw)) == 0 {
		return c, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Tags is a list of string keys that also accepts JSON numbers, so genre
// block-lists may mix ids (28) and names ("动画").
type Tags []string

func (t *Tags) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Tags, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("tag %s: want string or number", string(r))
		}
		out = append(out, n.String())
	}
	*t = out
	return nil
}

// Contains reports membership after trimming.
func (t Tags) Contains(s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range t {
		if v == s {
			return true
		}
	}
	return false
}
