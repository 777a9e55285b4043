package feeds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/mohammad-safakhou/errander/internal/capability"
)

const maxItemsPerFeed = 20

// Fetcher retrieves RSS/Atom feeds and strips markup from summaries before
// they are mailed.
type Fetcher struct {
	parser  *gofeed.Parser
	policy  *bluemonday.Policy
	timeout time.Duration
}

// New returns a Fetcher with a strict sanitising policy (all tags removed).
func New() *Fetcher {
	return &Fetcher{
		parser:  gofeed.NewParser(),
		policy:  bluemonday.StrictPolicy(),
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses one feed.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]capability.FeedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}

	items := make([]capability.FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(items) >= maxItemsPerFeed {
			break
		}
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		summary = strings.TrimSpace(f.policy.Sanitize(summary))
		if len(summary) > 500 {
			summary = summary[:500] + "..."
		}
		out := capability.FeedItem{
			Title:   strings.TrimSpace(item.Title),
			Link:    item.Link,
			Summary: summary,
		}
		if item.PublishedParsed != nil {
			out.Published = *item.PublishedParsed
		}
		items = append(items, out)
	}
	return items, nil
}

// Format renders feed items as mailable text grouped under a heading.
func Format(heading string, items []capability.FeedItem) string {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n\n")
	if len(items) == 0 {
		b.WriteString("No updates.\n")
		return b.String()
	}
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, item.Title, item.Link)
		if item.Summary != "" {
			fmt.Fprintf(&b, "   %s\n", item.Summary)
		}
	}
	return b.String()
}

var _ capability.FeedFetcher = (*Fetcher)(nil)
