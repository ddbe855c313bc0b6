// Package llm talks to the company LLM gateway. The gateway speaks the
// chat-completions dialect but requires its own trace headers on every
// request.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/jinwoohan/appgrader/internal/errs"
	"github.com/jinwoohan/appgrader/internal/ratelimit"
)

// Provider generates one completion for a system/user prompt pair.
type Provider interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Options configures a gateway client.
type Options struct {
	BaseURL     string
	Model       string
	APIKey      string
	Credential  string
	SystemName  string
	UserID      string
	Temperature float64
	MaxTokens   int
}

// Client is the gateway-backed Provider. Requests pass through the shared
// rate limiter and a circuit breaker that opens after consecutive
// gateway failures.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker[string]
	log     *zap.Logger
}

// NewClient creates a gateway client.
func NewClient(opts Options, limiter *ratelimit.Limiter, log *zap.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "llm-gateway",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Client{
		opts:    opts,
		http:    &http.Client{Timeout: 120 * time.Second},
		limiter: limiter,
		breaker: breaker,
		log:     log,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends one chat completion request and returns the raw response
// text. Transient and permanent failures are classified for the caller's
// retry policy; Generate itself never retries.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	return c.breaker.Execute(func() (string, error) {
		return c.generate(ctx, system, user)
	})
}

func (c *Client) generate(ctx context.Context, system, user string) (string, error) {
	body := chatRequest{
		Model: c.opts.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.opts.BaseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	// Gateway trace headers. Prompt/completion ids correlate the request
	// pair in the gateway's audit log.
	req.Header.Set("x-dep-ticket", c.opts.Credential)
	req.Header.Set("Send-System-Name", c.opts.SystemName)
	req.Header.Set("User-ID", c.opts.UserID)
	req.Header.Set("User-Type", "AD")
	req.Header.Set("Prompt-Msg-Id", uuid.NewString())
	req.Header.Set("Completion-Msg-Id", uuid.NewString())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errs.Transient("llm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", errs.FromStatus("llm", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errs.Transient("llm", fmt.Errorf("decoding response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", errs.Transient("llm", fmt.Errorf("no choices in response"))
	}

	c.log.Debug("completion received",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(parsed.Choices[0].Message.Content)))
	return parsed.Choices[0].Message.Content, nil
}
