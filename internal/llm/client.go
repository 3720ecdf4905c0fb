// Package llm wraps the external LLM capability behind the single
// complete(request) -> response contract the reasoning patterns depend on.
// The wrapper adds retry with exponential backoff, request rate limiting and
// usage accounting; the concrete provider stays outside this module.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/praxis-dev/praxis/internal/metrics"
)

// Message is one chat message in a completion request.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request is the provider-agnostic completion request shape.
type Request struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the provider-agnostic completion response shape.
type Response struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
	Model string `json:"model,omitempty"`
}

// Completer is the external LLM capability. Any provider satisfying this
// contract is acceptable.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// RetryConfig tunes the retry/backoff behavior around provider calls.
type RetryConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryConfig mirrors the configuration defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		BackoffMax:  5 * time.Second,
	}
}

// Client wraps a Completer with rate limiting, retries and metrics.
type Client struct {
	provider Completer
	limiter  *rate.Limiter
	retry    RetryConfig
	model    string
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit installs a requests-per-minute limiter. Zero disables it.
func WithRateLimit(rpm int) Option {
	return func(c *Client) {
		if rpm > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
		}
	}
}

// WithRetry overrides the retry configuration.
func WithRetry(rc RetryConfig) Option {
	return func(c *Client) { c.retry = rc }
}

// WithDefaultModel sets the model used when a request leaves Model empty.
func WithDefaultModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// NewClient wraps the given provider.
func NewClient(provider Completer, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		provider: provider,
		retry:    DefaultRetryConfig(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete executes one completion with rate limiting and retry. The
// returned usage is whatever the provider reported on the successful attempt.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retry.BackoffBase
	policy.MaxInterval = c.retry.BackoffMax
	policy.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	var resp *Response
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.LLMRetries.Inc()
		}
		r, err := c.provider.Complete(ctx, req)
		if err != nil {
			c.logger.Warn("LLM completion attempt failed",
				zap.Int("attempt", attempt),
				zap.String("model", req.Model),
				zap.Error(err),
			)
			return err
		}
		resp = r
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retry.MaxRetries)), ctx))
	if err != nil {
		metrics.LLMRequests.WithLabelValues(req.Model, "error").Inc()
		return nil, fmt.Errorf("llm completion failed after %d attempts: %w", attempt, err)
	}

	metrics.LLMRequests.WithLabelValues(req.Model, "ok").Inc()
	if resp.Usage.TotalTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(req.Model).Add(float64(resp.Usage.TotalTokens))
	}
	return resp, nil
}
