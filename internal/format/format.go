// Package format renders items into notification messages.
package format

import (
	"strings"

	"releasepush/internal/domain"
)

const (
	ReleaseTitlePrefix = "【今日上映】"
	DigestTitle        = "【今日播出】"
)

// Render builds the title/body/image triple for one item. Body lines whose
// source field is empty are omitted.
func Render(it domain.Item, imageBase string) domain.Message {
	var b lines
	category := it.CategoryLabel
	if category == "" {
		category = it.Category.Label()
	}
	b.add("类型", category)
	b.add("日期", it.ReleaseDateRaw)
	lang := it.LanguageLabel
	if lang == "" {
		lang = it.OriginalLanguage
	}
	b.add("语言", lang)
	b.add("地区", strings.Join(it.Countries, ", "))
	b.add("标签", strings.Join(it.Genres, ", "))
	b.add("简介", it.Description)

	return domain.Message{
		Title:    Title(it),
		Body:     b.String(),
		ImageURL: ImageURL(it.ImagePath(), imageBase),
	}
}

// Title is the release prefix plus the display name, with the English
// title in parentheses when it adds something.
func Title(it domain.Item) string {
	name := strings.TrimSpace(it.Title)
	if name == "" {
		name = strings.TrimSpace(it.OriginalTitle)
	}
	en := strings.TrimSpace(it.EnglishTitle)
	if en != "" && !strings.EqualFold(en, name) {
		if name == "" {
			name = en
		} else {
			name += " (" + en + ")"
		}
	}
	return ReleaseTitlePrefix + name
}

// ImageURL resolves an image path against base. Absolute URLs are kept;
// an empty path yields "".
func ImageURL(path, base string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if isAbsolute(path) {
		return path
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return path
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

func isAbsolute(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "//")
}

// Digest renders a whole schedule as a single text message, one
// "<title> <episode> [status]" line per item.
func Digest(items []domain.Item, title string) domain.Message {
	if title == "" {
		title = DigestTitle
	}
	var sb strings.Builder
	for _, it := range items {
		parts := make([]string, 0, 3)
		for _, p := range []string{it.Title, it.Episode, it.Status} {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		sb.WriteString(strings.Join(parts, " "))
		sb.WriteByte('\n')
	}
	return domain.Message{Title: title, Body: strings.TrimRight(sb.String(), "\n")}
}

type lines struct {
	sb strings.Builder
}

func (l *lines) add(label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if l.sb.Len() > 0 {
		l.sb.WriteByte('\n')
	}
	l.sb.WriteString(label)
	l.sb.WriteString(": ")
	l.sb.WriteString(value)
}

func (l *lines) String() string { return l.sb.String() }
