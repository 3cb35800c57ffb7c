// Package tutor implements the tutoring transport on top of an
// OpenAI-compatible chat-completions API. Every request goes through a token
// bucket, a circuit breaker and a retry loop so a struggling provider fails
// fast instead of piling up open tutoring sessions.
package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/circuitbreaker"
	"github.com/notewise/notewise-backend/pkg/logger"
	"github.com/notewise/notewise-backend/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the tutor API client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.openai.com/v1
	BaseURL string

	// APIKey is sent as a Bearer token
	APIKey string

	// Model is the chat model name
	Model string

	// Temperature and MaxTokens are passed through to the provider
	Temperature float64
	MaxTokens   int

	// MaxHistory bounds how many conversation turns are replayed per request
	MaxHistory int

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RateLimiterConfig for provider rate limiting
	RateLimiterConfig RateLimiterConfig

	// Retrier overrides the default retry policy
	Retrier *retry.Retrier

	// Breaker overrides the default circuit breaker
	Breaker *circuitbreaker.Breaker

	// HTTPClient overrides the default HTTP client
	HTTPClient *http.Client

	// Logger for structured logging
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, apiKey, model string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		APIKey:            apiKey,
		Model:             model,
		Temperature:       0.4,
		MaxTokens:         400,
		MaxHistory:        20,
		Timeout:           30 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the chat-completions API client.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *logger.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.Breaker
	retrier     *retry.Retrier
}

// NewClient creates a new tutor API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = 20
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	log := config.Logger.With(logger.Component("tutor_client"))

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	breaker := config.Breaker
	if breaker == nil {
		breaker = circuitbreaker.TutorAPIBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}, countsAgainstBreaker)
	}

	retrier := config.Retrier
	if retrier == nil {
		retrier = retry.TutorAPIRetrier()
	}

	return &Client{
		config:      config,
		httpClient:  httpClient,
		logger:      log,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker:     breaker,
		retrier:     retrier,
	}
}

// Complete sends the conversation and returns the assistant's reply text.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	req := ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	start := time.Now()
	var resp ChatResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, http.MethodPost, "/chat/completions", req, &resp)
		})
	})
	if err != nil {
		c.logger.Warn("tutor completion failed",
			logger.Err(err),
			logger.Latency(time.Since(start)),
		)
		return "", classify(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", shared.WrapError("tutor", "Complete", shared.ErrExternalService, "empty completion", nil)
	}

	c.logger.Debug("tutor completion",
		logger.String("model", resp.Model),
		logger.Int("total_tokens", resp.Usage.TotalTokens),
		logger.Latency(time.Since(start)),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs one attempt. Failures that may succeed later are wrapped
// with retry.Retryable.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	if err := c.rateLimiter.Allow(ctx); err != nil {
		return err
	}

	err := c.doSingleRequest(ctx, method, path, body, result)
	if err == nil {
		return nil
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		c.rateLimiter.RecordRateLimitHit(rateLimitErr.RetryAfter)
		return retry.Retryable(err)
	}
	if isTemporary(err) {
		return retry.Retryable(err)
	}
	return err
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 5 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter, Message: "provider rate limit exceeded"}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIErrorDTO{}
		_ = json.Unmarshal(respBody, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// isTemporary reports whether a single-attempt error is worth retrying.
func isTemporary(err error) bool {
	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// countsAgainstBreaker ignores failures that say nothing about provider health.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, shared.ErrRateLimited) {
		return false
	}
	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// classify maps client failures onto the shared error kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return shared.ErrTutorUnavailable
	case errors.Is(err, shared.ErrRateLimited):
		return shared.WrapError("tutor", "Complete", shared.ErrRateLimited, "provider rate limit exceeded", err)
	case errors.Is(err, context.DeadlineExceeded):
		return shared.WrapError("tutor", "Complete", shared.ErrTimeout, "provider timed out", err)
	case errors.Is(err, context.Canceled):
		return err
	}

	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return shared.WrapError("tutor", "Complete", shared.ErrUnauthorized, "provider rejected credentials", err)
	}
	if isTemporary(err) {
		return shared.WrapError("tutor", "Complete", shared.ErrServiceUnavailable, "provider unavailable", err)
	}
	return shared.WrapError("tutor", "Complete", shared.ErrExternalService, "provider request failed", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus reports the client's protective state.
type ClientStatus struct {
	RateLimiter    RateLimiterStatus
	CircuitBreaker string
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		RateLimiter:    c.rateLimiter.Status(),
		CircuitBreaker: c.breaker.State().String(),
	}
}

// Available reports whether new conversations should be attempted.
func (c *Client) Available() bool {
	return !c.breaker.IsOpen()
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}
