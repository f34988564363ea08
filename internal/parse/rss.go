package parse

import (
	"bytes"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

// RSS parses an RSS/Atom/JSON feed. Entries map to items of the given
// category; the first image (or image enclosure) becomes the poster.
// Publish times are keyed to a day in loc; nil means Local.
func RSS(data []byte, category domain.Category, loc *time.Location, log logx.Logger) ([]domain.Item, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Format: "feed", Err: err}
	}
	if category == "" {
		category = domain.CategorySeries
	}
	if loc == nil {
		loc = time.Local
	}

	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		it := domain.Item{
			Title:          normSpace(entry.Title),
			Category:       category,
			CategoryLabel:  category.Label(),
			Description:    plainText(entry.Description),
			Link:           strings.TrimSpace(entry.Link),
			PosterURL:      entryImage(entry),
			ReleaseDateRaw: strings.TrimSpace(entry.Published),
		}
		for _, c := range entry.Categories {
			if c = normSpace(c); c != "" {
				it.Genres = append(it.Genres, c)
			}
		}
		if entry.PublishedParsed != nil {
			it.ReleaseDate = DayKey(entry.PublishedParsed.In(loc))
		} else if it.ReleaseDateRaw != "" {
			setReleaseDate(&it, it.ReleaseDateRaw, log)
		}
		it.Normalize()
		items = append(items, it)
	}
	return items, nil
}

func entryImage(entry *gofeed.Item) string {
	if entry.Image != nil && strings.TrimSpace(entry.Image.URL) != "" {
		return strings.TrimSpace(entry.Image.URL)
	}
	for _, enc := range entry.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") && strings.TrimSpace(enc.URL) != "" {
			return strings.TrimSpace(enc.URL)
		}
	}
	return ""
}

// plainText strips markup from feed descriptions.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return normSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return normSpace(s)
	}
	return normSpace(doc.Text())
}
