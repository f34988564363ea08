package format

import (
	"strings"
	"testing"

	"releasepush/internal/domain"
)

func TestRenderFull(t *testing.T) {
	t.Parallel()

	it := domain.Item{
		Title:          "繁花",
		EnglishTitle:   "Blossoms Shanghai",
		CategoryLabel:  "电视",
		ReleaseDateRaw: "03月05日",
		LanguageLabel:  "汉语",
		Countries:      []string{"中国大陆"},
		Genres:         []string{"剧情", "爱情"},
		Description:    "九十年代的上海。",
		BackdropURL:    "/b.jpg",
		PosterURL:      "/p.jpg",
	}
	msg := Render(it, "https://image.tmdb.org/t/p/w1280/")

	if msg.Title != "【今日上映】繁花 (Blossoms Shanghai)" {
		t.Fatalf("unexpected title: %q", msg.Title)
	}
	want := strings.Join([]string{
		"类型: 电视",
		"日期: 03月05日",
		"语言: 汉语",
		"地区: 中国大陆",
		"标签: 剧情, 爱情",
		"简介: 九十年代的上海。",
	}, "\n")
	if msg.Body != want {
		t.Fatalf("unexpected body:\n%s\nwant:\n%s", msg.Body, want)
	}
	if msg.ImageURL != "https://image.tmdb.org/t/p/w1280/b.jpg" {
		t.Fatalf("unexpected image: %q", msg.ImageURL)
	}
}

func TestRenderOmitsEmptySections(t *testing.T) {
	t.Parallel()

	msg := Render(domain.Item{Title: "A", Category: domain.CategoryMovie}, domain.DefaultImageBase)
	if msg.Body != "类型: 电影" {
		t.Fatalf("unexpected body: %q", msg.Body)
	}
	if strings.Contains(msg.Body, "简介") {
		t.Fatalf("empty description must not produce a line")
	}
	if msg.ImageURL != "" {
		t.Fatalf("expected no image, got %q", msg.ImageURL)
	}
	if msg.Title != "【今日上映】A" {
		t.Fatalf("unexpected title: %q", msg.Title)
	}
}

func TestImageURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path, base, want string
	}{
		{"/x.jpg", "https://img/w1280", "https://img/w1280/x.jpg"},
		{"x.jpg", "https://img/w1280/", "https://img/w1280/x.jpg"},
		{"https://cdn/a.jpg", "https://img/w1280", "https://cdn/a.jpg"},
		{"", "https://img/w1280", ""},
		{"/x.jpg", "", "/x.jpg"},
	}
	for _, tc := range cases {
		if got := ImageURL(tc.path, tc.base); got != tc.want {
			t.Fatalf("ImageURL(%q, %q)=%q want %q", tc.path, tc.base, got, tc.want)
		}
	}

	it := domain.Item{PosterURL: "/p.jpg"}
	if got := Render(it, "https://img").ImageURL; got != "https://img/p.jpg" {
		t.Fatalf("expected poster fallback, got %q", got)
	}
}

func TestTitleVariants(t *testing.T) {
	t.Parallel()

	if got := Title(domain.Item{Title: "Dune", EnglishTitle: "dune"}); got != "【今日上映】Dune" {
		t.Fatalf("duplicate english title should be dropped: %q", got)
	}
	if got := Title(domain.Item{OriginalTitle: "Severance"}); got != "【今日上映】Severance" {
		t.Fatalf("expected original title fallback: %q", got)
	}
	if got := Title(domain.Item{}); got != ReleaseTitlePrefix {
		t.Fatalf("expected bare prefix for empty item: %q", got)
	}
}

func TestDigest(t *testing.T) {
	t.Parallel()

	items := []domain.Item{
		{Title: "黑镜", Episode: "S07E01", Status: "完结"},
		{Title: "大西洋帝国", Episode: "S02E03"},
		{},
	}
	msg := Digest(items, "")
	if msg.Title != DigestTitle {
		t.Fatalf("unexpected title: %q", msg.Title)
	}
	if msg.Body != "黑镜 S07E01 完结\n大西洋帝国 S02E03" {
		t.Fatalf("unexpected body: %q", msg.Body)
	}
	if msg.ImageURL != "" {
		t.Fatalf("digest carries no image")
	}
}
