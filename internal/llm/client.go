// Package llm talks to hosted language models. Providers normalize their
// transport shapes into Response; Client adds timeouts, retries, a
// concurrency cap and latency stats on top of any provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Completer is the narrow interface the tree and search packages depend on.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Response is a provider-independent model reply.
type Response struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Provider is one model backend.
type Provider interface {
	Generate(ctx context.Context, prompt string) (Response, error)
	Model() string
	Close()
}

// Options tune a Client. A zero Timeout or MaxConcurrent and a negative
// MaxRetries fall back to defaults.
type Options struct {
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	Stats         *LLMStats
	Logger        *slog.Logger
}

// Client wraps a Provider with per-call timeouts, bounded retries with
// jittered backoff, and a cap on in-flight calls.
type Client struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
	sem        chan struct{}
	stats      *LLMStats
	log        *slog.Logger
	backoff    func(attempt int) time.Duration
}

func NewClient(p Provider, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	opts.MaxRetries = min(opts.MaxRetries, MaxRetries)
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.Stats == nil {
		opts.Stats = NewLLMStats(time.Hour)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		provider:   p,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		sem:        make(chan struct{}, opts.MaxConcurrent),
		stats:      opts.Stats,
		log:        opts.Logger.With("component", "llm", "model", p.Model()),
		backoff:    Backoff,
	}
}

// Complete returns the model's text for prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Generate runs one prompt through the provider, retrying transient errors.
func (c *Client) Generate(ctx context.Context, prompt string) (Response, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.log.Warn("retrying model call", "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				c.stats.RecordFailure(time.Since(start).Milliseconds())
				return Response{}, ctx.Err()
			}
		}

		resp, err := c.once(ctx, prompt)
		if err == nil {
			c.stats.Record(time.Since(start).Milliseconds())
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			break
		}
	}

	c.stats.RecordFailure(time.Since(start).Milliseconds())
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}
	return Response{}, fmt.Errorf("model call: %w", lastErr)
}

func (c *Client) once(ctx context.Context, prompt string) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Generate(callCtx, prompt)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		// The per-call deadline fired, not the caller's.
		return Response{}, &RetryableError{Message: "model call timed out"}
	}
	return resp, err
}

func (c *Client) Model() string { return c.provider.Model() }

func (c *Client) Stats() *LLMStats { return c.stats }

func (c *Client) Close() { c.provider.Close() }

// NewProvider selects a backend by name.
func NewProvider(name, anthropicKey, anthropicModel, openAIKey, openAIModel, openAIBaseURL string) (Provider, error) {
	switch name {
	case "anthropic", "":
		return NewAnthropicProvider(anthropicKey, anthropicModel, ""), nil
	case "openai":
		return NewOpenAIProvider(openAIKey, openAIModel, openAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}
