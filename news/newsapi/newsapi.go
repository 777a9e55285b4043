package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammad-safakhou/errander/config"
)

// Article is one entry from the NewsAPI everything endpoint.
type Article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type response struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
}

// Client queries NewsAPI for topical headlines and formats them as a digest.
type Client struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// New builds a Client from config.
func New(cfg config.NewsConfig) *Client {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Digest fetches recent articles on topic and renders them as mailable text.
func (c *Client) Digest(ctx context.Context, topic string) (string, error) {
	articles, err := c.fetch(ctx, topic)
	if err != nil {
		return "", err
	}
	if len(articles) == 0 {
		return fmt.Sprintf("No recent news found for %q.", topic), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "News digest for %q:\n\n", topic)
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. %s (%s)\n   %s\n", i+1, a.Title, a.Source.Name, a.URL)
		if desc := strings.TrimSpace(a.Description); desc != "" {
			fmt.Fprintf(&b, "   %s\n", desc)
		}
	}
	return b.String(), nil
}

func (c *Client) fetch(ctx context.Context, topic string) ([]Article, error) {
	params := url.Values{}
	params.Add("q", topic)
	params.Add("sortBy", "publishedAt")
	params.Add("pageSize", fmt.Sprintf("%d", c.maxResults))
	params.Add("apiKey", c.apiKey)

	reqURL := fmt.Sprintf("%s?%s", c.endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi returned status %d", resp.StatusCode)
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %q", out.Status)
	}
	if len(out.Articles) > c.maxResults {
		out.Articles = out.Articles[:c.maxResults]
	}
	return out.Articles, nil
}
