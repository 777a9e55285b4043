package capability

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	minLinkCount = 1
	maxLinkCount = 20
)

// SelectLinks normalises, de-duplicates and ranks raw anchors, then truncates
// to count (clamped to [1, 20]). Two hrefs that differ only by fragment or
// query collapse onto the same key; the anchor with the longer visible text
// wins. When nothing survives filtering the page URL itself is returned, so
// downstream notify steps never see a contentless result silently.
func SelectLinks(pageURL string, anchors []Link, count int) []Link {
	if count < minLinkCount {
		count = minLinkCount
	}
	if count > maxLinkCount {
		count = maxLinkCount
	}

	base, _ := url.Parse(pageURL)

	type ranked struct {
		link  Link
		order int
	}
	seen := make(map[string]ranked)
	order := 0
	for _, a := range anchors {
		href := strings.TrimSpace(a.Href)
		if href == "" {
			continue
		}
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		key := normalizeKey(u)
		resolved := Link{Href: u.String(), Text: strings.TrimSpace(a.Text)}
		if prev, ok := seen[key]; ok {
			if len(resolved.Text) > len(prev.link.Text) {
				seen[key] = ranked{link: resolved, order: prev.order}
			}
			continue
		}
		seen[key] = ranked{link: resolved, order: order}
		order++
	}

	out := make([]ranked, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	// longer visible text first, discovery order as the stable tie-break
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].link.Text) != len(out[j].link.Text) {
			return len(out[i].link.Text) > len(out[j].link.Text)
		}
		return out[i].order < out[j].order
	})

	if len(out) == 0 {
		return []Link{{Href: pageURL}}
	}
	if len(out) > count {
		out = out[:count]
	}
	links := make([]Link, len(out))
	for i, r := range out {
		links[i] = r.link
	}
	return links
}

// normalizeKey strips fragment and query so near-identical anchors collapse.
func normalizeKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawQuery = ""
	c.Host = strings.ToLower(c.Host)
	c.Scheme = strings.ToLower(c.Scheme)
	return c.String()
}

// FormatLinks renders selected links as the numbered list notify steps send.
func FormatLinks(pageURL string, links []Link) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Links extracted from %s:\n", pageURL)
	for i, l := range links {
		if l.Text != "" {
			fmt.Fprintf(&b, "%d. %s - %s\n", i+1, l.Text, l.Href)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, l.Href)
		}
	}
	return b.String()
}
