// Package completion implements the client for the hosted completion
// backend: building the chat request, the rate-limit-aware retry loop, and
// reduction of the backend's structured reply into plain text.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/chloebot/chloe/config"
	"github.com/chloebot/chloe/errors"
	"github.com/chloebot/chloe/server/metrics"
	"go.uber.org/zap"
)

// Completer is the gateway-facing contract: one sanitized prompt in, one
// generated reply out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// chatRequest is the completion backend's wire format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	N           int           `json:"n"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the expected success shape: choices[0].message.content.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client calls the completion backend. A 429 response is retried after the
// server-provided delay (unbounded by default, see RetryPolicy); every
// other failure is returned immediately with its taxonomy type. Identical
// concurrent prompts are coalesced into a single backend call, and a
// circuit breaker guards individual attempts so a hard-down backend fails
// fast instead of burning its own retry budget.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	group      singleflight.Group
	tokens     Tokenizer
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// cfg holds the hot-reloadable tunables; swapped whole on Reconfigure.
	cfg atomic.Pointer[config.CompletionConfig]
}

var _ Completer = (*Client)(nil)

// NewClient creates a completion client. The HTTP client carries no
// timeout: a completion is allowed to take as long as the backend needs,
// and cancellation — when wanted — comes in through the context.
func NewClient(cfg config.CompletionConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	c := &Client{
		httpClient: &http.Client{},
		logger:     logger,
		metrics:    m,
	}
	c.cfg.Store(&cfg)

	failureThreshold := cfg.CircuitBreaker.FailureThreshold
	if failureThreshold == 0 {
		failureThreshold = 5
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion-backend",
		MaxRequests: cfg.CircuitBreaker.MaxRequests,
		Interval:    cfg.CircuitBreaker.Interval,
		Timeout:     cfg.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		// Being rate limited is the backend working as intended, not a
		// failure worth tripping on.
		IsSuccessful: func(err error) bool {
			var rle *rateLimitError
			return err == nil || stderrors.As(err, &rle)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Completion breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

// SetTokenizer attaches an optional prompt tokenizer used for token
// accounting. A nil tokenizer disables the accounting.
func (c *Client) SetTokenizer(t Tokenizer) {
	c.tokens = t
}

// Reconfigure atomically swaps the tunable parameters (model, prompt
// settings, retry policy). Breaker settings are fixed at construction.
func (c *Client) Reconfigure(cfg config.CompletionConfig) {
	c.cfg.Store(&cfg)
	c.logger.Info("Completion client reconfigured",
		zap.String("model", cfg.Model),
		zap.Float64("temperature", cfg.Temperature),
		zap.Int("retry_max_attempts", cfg.Retry.MaxAttempts),
	)
}

// Complete sends the prompt to the completion backend and returns the
// generated text. Identical in-flight prompts share one backend call.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	v, err, shared := c.group.Do(prompt, func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if shared {
		c.logger.Debug("Coalesced identical in-flight prompt")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	cfg := c.cfg.Load()
	policy := RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	if c.tokens != nil {
		n := c.tokens.CountTokens(prompt)
		c.metrics.PromptTokens.Observe(float64(n))
		c.logger.Debug("Prompt tokenized", zap.Int("tokens", n))
	}

	body, err := json.Marshal(chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: cfg.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   cfg.MaxTokens,
		N:           1,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return "", errors.NewFatal("failed to encode completion request", err)
	}

	start := time.Now()
	defer func() {
		c.metrics.CompletionDuration.Observe(time.Since(start).Seconds())
	}()

	for retries := 0; ; retries++ {
		content, err := c.send(ctx, cfg.URL, cfg.APIKey, body)
		if err == nil {
			return content, nil
		}

		var rle *rateLimitError
		if !stderrors.As(err, &rle) {
			return "", err
		}

		if policy.Exhausted(retries) {
			return "", errors.NewTransient(
				fmt.Sprintf("rate limit retries exhausted after %d attempts", retries), err)
		}

		delay := policy.Delay(rle.retryAfter)
		c.metrics.CompletionRetries.Inc()
		c.logger.Warn("Rate limited by completion backend",
			zap.Duration("retry_after", delay),
			zap.Int("retries", retries+1),
		)

		select {
		case <-ctx.Done():
			return "", errors.NewTransient("canceled while waiting out rate limit", ctx.Err())
		case <-time.After(delay):
		}
	}
}

// send performs a single breaker-guarded attempt.
func (c *Client) send(ctx context.Context, url, apiKey string, body []byte) (string, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, url, apiKey, body)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return "", errors.NewTransient("completion backend circuit open", err)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) do(ctx context.Context, url, apiKey string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.NewFatal("failed to build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewTransient("completion request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return "", &rateLimitError{retryAfter: parseRetryAfter(resp.Header)}
	case resp.StatusCode >= 500:
		return "", errors.NewTransient(
			fmt.Sprintf("completion backend returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return "", errors.NewFatal(
			fmt.Sprintf("completion backend rejected request with %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.NewMalformedResponse("failed to decode completion response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.NewMalformedResponse("completion response has no choices", nil)
	}

	return parsed.Choices[0].Message.Content, nil
}
