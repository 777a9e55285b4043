package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/errander/config"
	"github.com/mohammad-safakhou/errander/internal/capability"
)

// Client is a thin HTTP client for the OpenAI API. It backs the planner
// oracle (chat completions) and the image-generation capability.
type Client struct {
	apiKey          string
	baseURL         string
	completionModel string
	imageModel      string
	temperature     float64
	maxTokens       int
	httpClient      *http.Client
}

// New builds a Client from config.
func New(cfg config.OpenAIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &Client{
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		completionModel: cfg.CompletionModel,
		imageModel:      cfg.ImageModel,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a single-turn chat completion and returns the raw text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model:       c.completionModel,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	var out chatResponse
	if err := c.post(ctx, "/v1/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return out.Choices[0].Message.Content, nil
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// GenerateImage produces one image for prompt. The request deliberately
// omits response_format: not every model accepts it, and the API may answer
// with either an inline base64 payload or a hosted URL. Both forms are
// returned as-is for the caller to persist.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (capability.ImageResult, error) {
	body := imageRequest{Model: c.imageModel, Prompt: prompt, N: 1}
	var out imageResponse
	if err := c.post(ctx, "/v1/images/generations", body, &out); err != nil {
		return capability.ImageResult{}, err
	}
	if len(out.Data) == 0 {
		return capability.ImageResult{}, fmt.Errorf("no image in generation response")
	}
	d := out.Data[0]
	if d.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return capability.ImageResult{}, fmt.Errorf("decode image payload: %w", err)
		}
		return capability.ImageResult{Data: data}, nil
	}
	if d.URL != "" {
		return capability.ImageResult{URL: d.URL}, nil
	}
	return capability.ImageResult{}, fmt.Errorf("image response carried neither b64_json nor url")
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("openai %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ capability.ImageGenerator = (*Client)(nil)
