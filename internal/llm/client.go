// Package llm talks to OpenAI-compatible chat-completion and embedding APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/content-syndication-pipeline/internal/config"
)

const (
	defaultHTTPTimeout    = 90 * time.Second
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryAttempts  = 3
	appTitle              = "Content Syndication Pipeline"
)

// Client is a thin OpenAI-compatible API client with retry on 408/429/5xx.
type Client struct {
	baseURL    string
	apiKey     string
	referer    string
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient builds a client for baseURL (e.g. https://openrouter.ai/api/v1).
func NewClient(baseURL, apiKey string, cfg config.LLMConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	c := &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:           strings.TrimSpace(apiKey),
		referer:          strings.TrimSpace(cfg.Referer),
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: attempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx reply from the API.
type StatusError struct {
	Code int
	Body string
	// Wait is the server's Retry-After hint, zero when absent.
	Wait time.Duration
}

func (e *StatusError) Error() string {
	body := strings.Join(strings.Fields(e.Body), " ")
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("http %d: %s", e.Code, body)
}

// temporary reports whether the status is worth another attempt.
func (e *StatusError) temporary() bool {
	return e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// chatMessage content is a string, or a list of parts for image input.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends a JSON-mode completion and returns the message content.
func (c *Client) Chat(ctx context.Context, model, system, user string) (string, error) {
	return c.complete(ctx, chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.7,
		MaxTokens:      4000,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
}

// Look asks a vision model about the image at imageURL and returns the
// JSON-mode reply.
func (c *Client) Look(ctx context.Context, model, prompt, imageURL string) (string, error) {
	return c.complete(ctx, chatRequest{
		Model: model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageRef{URL: imageURL}},
			},
		}},
		Temperature:    0.2,
		MaxTokens:      500,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
}

func (c *Client) complete(ctx context.Context, payload chatRequest) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("api key not configured")
	}
	var resp chatResponse
	if err := c.postJSON(ctx, "/chat/completions", payload, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("api error: %s", strings.TrimSpace(resp.Error.Message))
	}
	for _, choice := range resp.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if choice.Message.Refusal != "" {
			return "", fmt.Errorf("model refused: %s", choice.Message.Refusal)
		}
	}
	return "", errors.New("empty completion")
}

// postJSON posts payload to path and decodes the reply into out. Transport
// errors and temporary statuses are retried with doubling waits.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	for attempt := 1; ; attempt++ {
		body, err := c.send(ctx, path, encoded)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}

		var hint time.Duration
		var status *StatusError
		switch {
		case ctx.Err() != nil:
			return err
		case errors.As(err, &status):
			if !status.temporary() {
				return err
			}
			hint = status.Wait
		}
		if attempt >= c.retryMaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		if err := c.pause(ctx, c.backoff(attempt, hint)); err != nil {
			return err
		}
	}
}

func (c *Client) send(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", appTitle)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		serr := &StatusError{Code: resp.StatusCode, Body: string(data)}
		if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
			serr.Wait = time.Duration(secs) * time.Second
		}
		return nil, serr
	}
	return data, nil
}

// backoff is base * 2^(attempt-1), or the server's hint when it gave one,
// never above the configured maximum.
func (c *Client) backoff(attempt int, hint time.Duration) time.Duration {
	wait := hint
	if wait <= 0 {
		wait = c.retryBaseDelay << (attempt - 1)
	}
	if c.retryMaxDelay > 0 && wait > c.retryMaxDelay {
		wait = c.retryMaxDelay
	}
	return wait
}

func (c *Client) pause(ctx context.Context, d time.Duration) error {
	if c.sleeper != nil {
		c.sleeper(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeObject unmarshals the outermost JSON object in a model reply,
// ignoring fences or prose around it.
func decodeObject(reply string, target any) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return errors.New("no JSON object in reply")
	}
	return json.Unmarshal([]byte(reply[start:end+1]), target)
}
