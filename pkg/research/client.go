// Package research implements the secondary web-search tool: a single
// round trip to an OpenAI-compatible chat-completion endpoint whose models
// ground answers in live web search. No retry, no streaming.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/seiklabs/mcpgate/pkg/errors"
)

const defaultModel = "sonar"

// Client calls the web-search completion API.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// Option customizes the research client.
type Option func(*Client)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout sets the HTTP timeout for the single round trip.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// New creates a research client for the given endpoint.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   defaultModel,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the normalized answer of one research query.
type Result struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	ModelUsed string   `json:"model_used"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Search runs one web-search completion for the given question.
func (c *Client) Search(ctx context.Context, question string) (*Result, error) {
	if question == "" {
		return nil, errors.New(errors.CodeMissingParameter, "research requires a question", nil)
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a research assistant. Answer concisely and cite sources."},
			{Role: "user", Content: question},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to encode research request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to build research request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeUpstream, "research request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(errors.CodeUpstream, "failed to read research response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.CodeUpstream,
			"research endpoint returned status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.New(errors.CodeUpstream, "failed to decode research response", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New(errors.CodeUpstream, "research response contained no choices", nil)
	}

	model := decoded.Model
	if model == "" {
		model = c.model
	}
	sources := decoded.Citations
	if sources == nil {
		sources = []string{}
	}

	return &Result{
		Answer:    decoded.Choices[0].Message.Content,
		Sources:   sources,
		ModelUsed: model,
	}, nil
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
