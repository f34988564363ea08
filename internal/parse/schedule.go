package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

// Schedule parses a weekly episode schedule table. Each td.ihbg cell is one
// day: its dt carries the day header ("14号 周一") and every dd > a is one
// airing episode.
//
// Day headers carry only the day of month, so they resolve to MMDD using the
// month of ref.
func Schedule(html []byte, baseURL string, ref time.Time, log logx.Logger) ([]domain.Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ParseError{Format: "html", Err: err}
	}
	base, _ := url.Parse(strings.TrimSpace(baseURL))

	items := []domain.Item{}
	doc.Find("table td.ihbg").Each(func(_ int, day *goquery.Selection) {
		dt := day.Find("dt").First()
		if dt.Length() == 0 {
			return
		}
		header := normSpace(dt.Text())
		key := scheduleDayKey(header, ref)
		if key == "" {
			log.Warn("schedule day header not recognized", logx.String("header", header))
		}

		day.Find("dd").Each(func(_ int, dd *goquery.Selection) {
			a := dd.Find("a").First()
			if a.Length() == 0 {
				return
			}
			it := domain.Item{
				Title:          ownText(a),
				Category:       domain.CategorySeries,
				ReleaseDateRaw: header,
				ReleaseDate:    key,
			}
			if href, ok := a.Attr("href"); ok {
				it.Link = resolveLink(base, href)
			}
			spans := a.Find("span")
			if spans.Length() > 0 {
				it.Episode = normSpace(spans.Eq(0).Text())
			}
			if spans.Length() > 1 {
				it.Status = normSpace(spans.Eq(1).Text())
			}
			it.Normalize()
			items = append(items, it)
		})
	})
	return items, nil
}

// ownText returns the text nodes directly under s, without descendants.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return normSpace(b.String())
}

// scheduleDayKey extracts the leading day number of header and pairs it with
// ref's month. Returns "" when no day number leads the header.
func scheduleDayKey(header string, ref time.Time) string {
	first := header
	if i := strings.IndexFunc(header, unicode.IsSpace); i >= 0 {
		first = header[:i]
	}
	first = strings.TrimSuffix(first, "号")
	first = strings.TrimSuffix(first, "日")
	d, err := strconv.Atoi(first)
	if err != nil || d < 1 || d > 31 {
		return ""
	}
	return fmt.Sprintf("%02d%02d", int(ref.Month()), d)
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil || u.IsAbs() {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
