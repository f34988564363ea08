package parse

import (
	"strings"
	"time"
)

// dateLayouts are tried in order; the first match wins.
var dateLayouts = []string{
	"01月02日",
	"1月2日",
	"2006年01月02日",
	"2006年1月2日",
	"2006-01-02",
	"2006/01/02",
	"01-02",
}

// NormalizeDate converts a locale-formatted date into the canonical MMDD key.
//
//	"03月05日"   -> "0305"
//	"2024-03-05" -> "0305"
func NormalizeDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &DateError{Raw: raw}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("0102"), nil
		}
	}
	return "", &DateError{Raw: raw}
}

// DayKey returns the MMDD key of t in its own location.
func DayKey(t time.Time) string { return t.Format("0102") }
