package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
	"unicode/utf8"
)

// RetryConfig configures retry behavior for embedding calls.
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first
	RetryDelay  time.Duration // Backoff unit; the wait after attempt n is n*RetryDelay
}

// DefaultRetryConfig returns the standard embedding retry policy.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		RetryDelay:  time.Second,
	}
}

// RetryingEmbedder wraps an Embedder with linear-backoff retries.
type RetryingEmbedder struct {
	inner  Embedder
	config *RetryConfig
	logger *slog.Logger
}

// NewRetryingEmbedder wraps an existing embedder with retry logic.
func NewRetryingEmbedder(inner Embedder, config *RetryConfig) *RetryingEmbedder {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &RetryingEmbedder{
		inner:  inner,
		config: config,
		logger: slog.Default().With("component", "llm.retry"),
	}
}

// Name returns the underlying embedder name.
func (r *RetryingEmbedder) Name() string {
	return r.inner.Name()
}

// Embed calls the inner embedder, retrying transient failures with a
// linearly growing delay. The wait after a failed attempt n is
// n*RetryDelay, so the default policy sleeps 1s then 2s across its
// three attempts.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	preview := firstRunes(text, 50)
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		r.logger.Debug("embedding attempt",
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"text_preview", preview)

		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * r.config.RetryDelay
		r.logger.Warn("embedding failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"text_preview", preview,
			"error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Caller cancelled; per-attempt deadlines are worth retrying
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Credential problems never fix themselves
	if errors.Is(err, ErrCredentialMissing) || errors.Is(err, ErrCredentialPlaceholder) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := err.Error()

	// Rate limiting (429) - retryable
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests") {
		return true
	}

	// Server errors (5xx) - retryable
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}

	// Client errors (4xx except 429) - not retryable
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") {
		return false
	}

	// Default: retry on unknown errors
	return true
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
