package parse

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

// feedKeys names the per-category fields of the TMDB-derived daily feed.
type feedKeys struct {
	title, originalTitle, date, provider string
}

var (
	seriesKeys = feedKeys{title: "name", originalTitle: "original_name", date: "first_air_date", provider: "network_id"}
	movieKeys  = feedKeys{title: "title", originalTitle: "original_title", date: "release_date", provider: "provider_id"}
)

// Feed parses a JSON array of flat item objects. A payload that is not an
// array is a *ParseError; individual malformed entries are skipped and
// wrong-typed fields take their defaults.
func Feed(data []byte, category domain.Category, log logx.Logger) ([]domain.Item, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Format: "json", Err: err}
	}

	keys := seriesKeys
	if category == domain.CategoryMovie {
		keys = movieKeys
	} else {
		category = domain.CategorySeries
	}

	items := make([]domain.Item, 0, len(raw))
	for i, r := range raw {
		obj, err := decodeObject(r)
		if err != nil {
			log.Warn("feed entry skipped", logx.Int("index", i), logx.Err(err))
			continue
		}
		items = append(items, feedItem(obj, keys, category, log))
	}
	return items, nil
}

type object map[string]json.RawMessage

func decodeObject(r json.RawMessage) (object, error) {
	var obj object
	dec := json.NewDecoder(bytes.NewReader(r))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = object{}
	}
	return obj, nil
}

func feedItem(obj object, k feedKeys, cat domain.Category, log logx.Logger) domain.Item {
	it := domain.Item{
		OriginalTitle:    obj.str(k.originalTitle),
		Category:         cat,
		CategoryLabel:    cat.Label(),
		OriginalLanguage: obj.str("original_language"),
		LanguageLabel:    obj.str("original_language_zh"),
		BackdropURL:      obj.str("backdrop_path"),
		PosterURL:        obj.str("poster_path"),
		Description:      obj.str("overview"),
		ProviderID:       obj.int64Ptr(k.provider),
		GenreIDs:         obj.ints("genre_ids"),
		Genres:           obj.strs("genre_ids_zh"),
	}
	it.Title = obj.str(k.title)
	if it.Title == "" {
		it.Title = it.OriginalTitle
	}
	if cat == domain.CategorySeries {
		it.Countries = obj.strs("origin_country")
	}
	setReleaseDate(&it, obj.str(k.date), log)
	it.Normalize()
	return it
}

func (o object) str(key string) string {
	r, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func (o object) int64Ptr(key string) *int64 {
	r, ok := o[key]
	if !ok {
		return nil
	}
	n, ok := number(r)
	if !ok {
		return nil
	}
	v, err := n.Int64()
	if err != nil {
		return nil
	}
	return &v
}

// ints keeps the integer entries of an array and drops the rest.
func (o object) ints(key string) []int {
	out := []int{}
	for _, r := range o.array(key) {
		n, ok := number(r)
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(n.String()); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// strs keeps strings and renders numbers in decimal.
func (o object) strs(key string) []string {
	out := []string{}
	for _, r := range o.array(key) {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		if n, ok := number(r); ok {
			out = append(out, n.String())
		}
	}
	return out
}

func (o object) array(key string) []json.RawMessage {
	r, ok := o[key]
	if !ok {
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(r, &arr); err != nil {
		return nil
	}
	return arr
}

func number(r json.RawMessage) (json.Number, bool) {
	dec := json.NewDecoder(bytes.NewReader(r))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	n, ok := v.(json.Number)
	return n, ok
}
