package domain

import (
	"strings"
	"testing"
)

func TestParseCategory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"series", CategorySeries, true},
		{" TV ", CategorySeries, true},
		{"电视", CategorySeries, true},
		{"电影", CategoryMovie, true},
		{"Movie", CategoryMovie, true},
		{"anime", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseCategory(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseCategory(%q) = %q, %v", tc.in, got, ok)
		}
	}
}

func TestItemAccessors(t *testing.T) {
	t.Parallel()

	it := Item{PosterURL: "/p.jpg", Genres: []string{" 动画 ", ""}, GenreIDs: []int{16}}
	if !it.HasCover(false) || it.HasCover(true) {
		t.Fatalf("poster-only cover checks wrong")
	}
	if it.ImagePath() != "/p.jpg" {
		t.Fatalf("ImagePath = %q", it.ImagePath())
	}
	it.BackdropURL = "/b.jpg"
	if !it.HasCover(true) || it.ImagePath() != "/b.jpg" {
		t.Fatalf("backdrop should be preferred")
	}
	if got := strings.Join(it.GenreKeys(), ","); got != "动画,16" {
		t.Fatalf("GenreKeys = %q", got)
	}

	var empty Item
	empty.Normalize()
	if empty.Countries == nil || empty.Genres == nil || empty.GenreIDs == nil {
		t.Fatalf("Normalize left nil lists")
	}
}

func TestDecodeConfig(t *testing.T) {
	t.Parallel()

	cfg, err := DecodeConfig([]byte(`{
		"enabled": true,
		"cron": " 0 9 * * * ",
		"sources": [{"kind": "calendar_html", "url": "https://example.com/cal"}],
		"movie": {"block_genres": [28, " 恐怖 "], "providers": [8]}
	}`))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	cfg = cfg.WithDefaults()
	if cfg.Cron != "0 9 * * *" || cfg.ImageBase != DefaultImageBase || cfg.ReferenceLanguage != DefaultReferenceLanguage {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	movie := cfg.Filters(CategoryMovie)
	if !movie.BlockGenres.Contains("28") || !movie.BlockGenres.Contains("恐怖") || len(movie.Providers) != 1 {
		t.Fatalf("movie filters = %+v", movie)
	}
	if cfg.Filters(CategorySeries).Languages == nil {
		t.Fatalf("series languages should be normalized to empty")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, err := DecodeConfig([]byte(`{"unknown": 1}`)); err == nil {
		t.Fatalf("unknown field accepted")
	}
	if _, err := DecodeConfig([]byte(`{"series": {"block_genres": [{}]}}`)); err == nil {
		t.Fatalf("object tag accepted")
	}
	if cfg, err := DecodeConfig(nil); err != nil || cfg.Enabled {
		t.Fatalf("empty document = %+v, %v", cfg, err)
	}
}

func TestWithDefaultsDoesNotAlias(t *testing.T) {
	t.Parallel()

	orig := Config{Series: FilterSettings{Languages: []string{"zh"}}, Sources: []SourceConfig{{Kind: SourceRSS, URL: "u"}}}
	cp := orig.WithDefaults()
	cp.Series.Languages[0] = "en"
	cp.Sources[0].URL = "changed"
	if orig.Series.Languages[0] != "zh" || orig.Sources[0].URL != "u" {
		t.Fatalf("WithDefaults shares backing arrays")
	}
}

func TestValidateSources(t *testing.T) {
	t.Parallel()

	cfg := Config{Sources: []SourceConfig{
		{Kind: "", URL: "u"},
		{Kind: "ftp", URL: "u"},
		{Kind: SourceTMDBJSON, URL: "u"},
		{Kind: SourceRSS},
	}}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"sources[0]: kind required", "sources[1]: unknown kind", "sources[2]: tmdb_json requires category", "sources[3]: url required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestSourceLabelAndCategory(t *testing.T) {
	t.Parallel()

	s := SourceConfig{Kind: SourceScheduleHTML}
	if s.Label() != "schedule_html" || s.SourceCategory() != CategorySeries {
		t.Fatalf("defaults: %q %q", s.Label(), s.SourceCategory())
	}
	s.Name, s.Category = "huo720", "movie"
	if s.Label() != "huo720" || s.SourceCategory() != CategoryMovie {
		t.Fatalf("explicit: %q %q", s.Label(), s.SourceCategory())
	}
}

func TestMessageText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		m    Message
		want string
	}{
		{Message{Title: "T", Body: "B"}, "T\nB"},
		{Message{Title: "T"}, "T"},
		{Message{Body: "B"}, "B"},
	}
	for _, tc := range cases {
		if got := tc.m.Text(); got != tc.want {
			t.Fatalf("Text() = %q, want %q", got, tc.want)
		}
	}
}
