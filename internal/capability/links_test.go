package capability

import (
	"fmt"
	"strings"
	"testing"
)

const page = "https://example.com/blog"

func TestSelectLinksDedupesFragmentsAndQueries(t *testing.T) {
	anchors := []Link{
		{Href: "https://example.com/post", Text: "Post"},
		{Href: "https://example.com/post#comments", Text: "Post with comments"},
		{Href: "https://example.com/post?utm_source=feed", Text: "p"},
		{Href: "https://example.com/other", Text: "Other"},
	}
	got := SelectLinks(page, anchors, 10)
	if len(got) != 2 {
		t.Fatalf("want 2 links, got %d: %+v", len(got), got)
	}
	// the longest visible text wins for the collapsed key and ranks first
	if got[0].Text != "Post with comments" {
		t.Fatalf("got[0]: %+v", got[0])
	}
}

func TestSelectLinksResolvesRelativeAndFiltersSchemes(t *testing.T) {
	anchors := []Link{
		{Href: "/about", Text: "About"},
		{Href: "mailto:hi@example.com", Text: "Mail"},
		{Href: "javascript:void(0)", Text: "JS"},
		{Href: "  "},
	}
	got := SelectLinks(page, anchors, 10)
	if len(got) != 1 {
		t.Fatalf("want 1 link, got %+v", got)
	}
	if got[0].Href != "https://example.com/about" {
		t.Fatalf("href: %q", got[0].Href)
	}
}

func TestSelectLinksTruncatesToCount(t *testing.T) {
	var anchors []Link
	for i := 0; i < 50; i++ {
		anchors = append(anchors, Link{
			Href: fmt.Sprintf("https://example.com/p/%d", i),
			Text: fmt.Sprintf("post %02d", i),
		})
	}
	if got := SelectLinks(page, anchors, 3); len(got) != 3 {
		t.Fatalf("count=3: got %d", len(got))
	}
	// count is clamped, never trusted verbatim
	if got := SelectLinks(page, anchors, 500); len(got) != 20 {
		t.Fatalf("count=500: got %d", len(got))
	}
	if got := SelectLinks(page, anchors, -2); len(got) != 1 {
		t.Fatalf("count=-2: got %d", len(got))
	}
}

func TestSelectLinksFallsBackToPageURL(t *testing.T) {
	got := SelectLinks(page, nil, 5)
	if len(got) != 1 || got[0].Href != page {
		t.Fatalf("got %+v", got)
	}
}

func TestFormatLinks(t *testing.T) {
	out := FormatLinks(page, []Link{
		{Href: "https://example.com/a", Text: "Alpha"},
		{Href: "https://example.com/b"},
	})
	if !strings.Contains(out, "1. Alpha - https://example.com/a") {
		t.Fatalf("missing titled line:\n%s", out)
	}
	if !strings.Contains(out, "2. https://example.com/b") {
		t.Fatalf("missing bare line:\n%s", out)
	}
}
