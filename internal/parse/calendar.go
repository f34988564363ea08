package parse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

// PlaceholderCover is the calendar site's stand-in image for entries without
// a poster. It is treated as "no cover".
const PlaceholderCover = "https://img.huo720.com/files/movie-default.gif"

// Class attributes are matched exactly, so "...rounded-3" does not also match
// the "...rounded-3 fw-bold" variant.
var (
	calContainer   = exactClass("div", "bg-white rounded-3 border mb-3")
	calTitle       = exactClass("div", "fs-5 fw-bold text-truncate")
	calEnglish     = exactClass("div", "fs-6 fw-light text-truncate mb-2")
	calPoster      = exactClass("img", "w-100 rounded-start")
	calCategory    = exactClass("span", "p-1 me-1 border rounded-3")
	calDate        = exactClass("span", "me-1 py-1 px-2 border rounded-3")
	calDateBold    = exactClass("span", "me-1 py-1 px-2 border rounded-3 fw-bold")
	calMeta        = exactClass("span", "me-1 text-secondary")
	calDescription = exactClass("div", "pt-2 text-truncate d-none d-md-block")
)

func exactClass(tag, class string) string {
	return fmt.Sprintf(`%s[class=%q]`, tag, class)
}

// Calendar parses the upcoming-release calendar page: one container per
// entry, each field with its own default.
func Calendar(html []byte, log logx.Logger) ([]domain.Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ParseError{Format: "html", Err: err}
	}

	var items []domain.Item
	doc.Find(calContainer).Each(func(_ int, s *goquery.Selection) {
		items = append(items, calendarItem(s, log))
	})
	if items == nil {
		items = []domain.Item{}
	}
	return items, nil
}

func calendarItem(s *goquery.Selection, log logx.Logger) domain.Item {
	it := domain.Item{
		Title:         firstText(s, calTitle),
		EnglishTitle:  firstText(s, calEnglish),
		CategoryLabel: firstText(s, calCategory),
		Description:   firstText(s, calDescription),
	}

	if src, ok := s.Find(calPoster).First().Attr("src"); ok {
		src = strings.TrimSpace(src)
		if src != PlaceholderCover {
			it.PosterURL = src
		}
	}

	it.Category = domain.CategorySeries
	if cat, ok := domain.ParseCategory(it.CategoryLabel); ok {
		it.Category = cat
	}

	// The date appears under one of two class variants; the bold one is
	// consulted only when the plain node is missing.
	date := firstText(s, calDate)
	if s.Find(calDate).Length() == 0 {
		date = firstText(s, calDateBold)
	}
	setReleaseDate(&it, date, log)

	meta := s.Find(calMeta)
	meta.Each(func(i int, m *goquery.Selection) {
		v := normSpace(m.Text())
		if i == 0 {
			if v != "" {
				it.Countries = []string{v}
			}
			return
		}
		if v != "" {
			it.Genres = append(it.Genres, v)
		}
	})

	it.Normalize()
	return it
}

func firstText(s *goquery.Selection, sel string) string {
	return normSpace(s.Find(sel).First().Text())
}
