package jobs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/errander/internal/capability"
)

type indexedItem struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// MatchItems returns the feed items whose title or summary matches any of
// the keywords, using an in-memory full-text index so multi-word keywords
// and stemming behave sensibly (plain substring matching misses
// "engineers" for "engineer").
func MatchItems(items []capability.FeedItem, keywords []string) ([]capability.FeedItem, error) {
	if len(items) == 0 || len(keywords) == 0 {
		return nil, nil
	}
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("build match index: %w", err)
	}
	defer idx.Close()

	for i, item := range items {
		doc := indexedItem{Title: item.Title, Summary: item.Summary}
		if err := idx.Index(strconv.Itoa(i), doc); err != nil {
			return nil, fmt.Errorf("index item %d: %w", i, err)
		}
	}

	query := bleve.NewMatchQuery(strings.Join(keywords, " "))
	req := bleve.NewSearchRequest(query)
	req.Size = len(items)
	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}

	hit := make(map[int]bool, len(res.Hits))
	for _, h := range res.Hits {
		if i, err := strconv.Atoi(h.ID); err == nil {
			hit[i] = true
		}
	}
	var out []capability.FeedItem
	for i, item := range items {
		if hit[i] {
			out = append(out, item)
		}
	}
	return out, nil
}
