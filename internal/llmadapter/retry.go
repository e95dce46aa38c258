package llmadapter

import (
	"context"
	"errors"
	"time"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// ProviderErrorKind is how a provider-specific error is classified before
// deciding whether to retry, grounded on the teacher's
// engine/retry.go::IsRetryableError but narrowed to the taxonomy spec §7
// names explicitly: rate_limit/overloaded/timeout are llm_transient and
// retried; auth/malformed/content_filter are llm_permanent and fail fast.
type ProviderErrorKind string

const (
	KindRateLimit      ProviderErrorKind = "rate_limit"
	KindOverloaded     ProviderErrorKind = "overloaded"
	KindTimeout        ProviderErrorKind = "timeout"
	KindAuth           ProviderErrorKind = "auth"
	KindMalformed      ProviderErrorKind = "malformed"
	KindContentFilter  ProviderErrorKind = "content_filter"
	KindUnknown        ProviderErrorKind = "unknown"
)

// ProviderError is how a Provider implementation reports a classified
// failure; Complete callers use errors.As to recover the Kind.
type ProviderError struct {
	Kind  ProviderErrorKind
	Cause error
}

func (e *ProviderError) Error() string { return string(e.Kind) + ": " + e.Cause.Error() }
func (e *ProviderError) Unwrap() error { return e.Cause }

func isRetryableKind(kind ProviderErrorKind) bool {
	switch kind {
	case KindRateLimit, KindOverloaded, KindTimeout:
		return true
	default:
		return false
	}
}

func classify(err error) (ProviderErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, isRetryableKind(pe.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}
	return KindUnknown, false
}

// computeBackoff implements spec §4.2 exactly: delay = min(max_delay,
// initial_delay * 2^attempt).
func computeBackoff(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.InitialDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

func waitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// callWithRetry invokes fn, retrying on retryable provider errors up to
// cfg.MaxRetries with exponential backoff. Non-retryable errors (auth,
// malformed request, content filter) fail immediately per spec §4.2.
func callWithRetry(ctx context.Context, cfg RetryConfig, fn func() (Completion, error)) (Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		completion, err := fn()
		if err == nil {
			return completion, nil
		}
		kind, retryable := classify(err)
		if !retryable {
			return Completion{}, schema.NewErrorf(schema.ErrCodeLLMPermanent, "llm call failed (%s): %s", kind, err).WithCause(err)
		}
		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}
		if waitErr := waitForBackoff(ctx, computeBackoff(cfg, attempt)); waitErr != nil {
			return Completion{}, waitErr
		}
	}
	return Completion{}, schema.NewErrorf(schema.ErrCodeLLMTransient, "llm call failed after %d retries: %s", cfg.MaxRetries, lastErr).WithCause(lastErr)
}
