package domain

import (
	"strconv"
	"strings"
)

// Category is the content-type tag of an Item.
type Category string

const (
	CategorySeries Category = "series"
	CategoryMovie  Category = "movie"
)

// ParseCategory maps config/source spellings to a Category.
// Unknown values report ok=false.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "series", "tv", "show", "电视", "剧集":
		return CategorySeries, true
	case "movie", "movies", "film", "电影":
		return CategoryMovie, true
	default:
		return "", false
	}
}

// Label returns the display label used in notification bodies.
func (c Category) Label() string {
	switch c {
	case CategoryMovie:
		return "电影"
	case CategorySeries:
		return "剧集"
	default:
		return ""
	}
}

// Item is one releasable series or movie entry, normalized from any source.
//
// String fields are never "absent": an empty string means the source did not
// provide the value. Slice fields are never nil after parsing.
type Item struct {
	Title         string
	OriginalTitle string
	EnglishTitle  string

	PosterURL   string
	BackdropURL string

	Category      Category
	CategoryLabel string

	ReleaseDateRaw string
	// ReleaseDate is the canonical MMDD key, empty when unknown.
	ReleaseDate string

	Countries []string
	Genres    []string
	GenreIDs  []int

	OriginalLanguage string
	LanguageLabel    string
	ProviderID       *int64

	Description string

	// Episode schedule extras.
	Episode string
	Status  string
	Link    string
}

// HasCover reports whether the item carries a displayable image.
// backdropOnly restricts the check to the landscape image.
func (it Item) HasCover(backdropOnly bool) bool {
	if strings.TrimSpace(it.BackdropURL) != "" {
		return true
	}
	if backdropOnly {
		return false
	}
	return strings.TrimSpace(it.PosterURL) != ""
}

// ImagePath returns the preferred image: backdrop, then poster, then "".
func (it Item) ImagePath() string {
	if s := strings.TrimSpace(it.BackdropURL); s != "" {
		return s
	}
	return strings.TrimSpace(it.PosterURL)
}

// GenreKeys returns every key a genre block-list may match: display names
// plus numeric ids rendered in decimal.
func (it Item) GenreKeys() []string {
	out := make([]string, 0, len(it.Genres)+len(it.GenreIDs))
	for _, g := range it.Genres {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	for _, id := range it.GenreIDs {
		out = append(out, strconv.Itoa(id))
	}
	return out
}

// Normalize enforces the non-nil list invariants.
func (it *Item) Normalize() {
	if it.Countries == nil {
		it.Countries = []string{}
	}
	if it.Genres == nil {
		it.Genres = []string{}
	}
	if it.GenreIDs == nil {
		it.GenreIDs = []int{}
	}
}
