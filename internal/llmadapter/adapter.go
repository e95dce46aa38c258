// Package llmadapter implements the LLM Adapter: provider-agnostic chat
// completion with continuation stitching for length-truncated outputs,
// retry/backoff on transient provider errors, and token-budget
// accounting. It is the narrow boundary between the orchestration core
// and remote LLM providers (spec §1: "LLM providers are external; the
// core speaks to them through a narrow adapter").
package llmadapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// FinishReason mirrors the provider-neutral completion outcome.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Params carries provider-specific completion options.
type Params struct {
	Temperature float64
	MaxTokens   int
	// ExtendedThinkingBudget, when non-zero, is forwarded to providers that
	// support an extended-thinking/reasoning token budget.
	ExtendedThinkingBudget int
}

// Usage reports token accounting for a single completion hop.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Completion is the result of one provider round trip (before
// continuation stitching is applied by the Adapter).
type Completion struct {
	Content      string
	FinishReason FinishReason
	Usage        Usage
}

// Provider is a single vendor's chat-completion client. Concrete
// implementations (OpenAIProvider, and any other registered vendor) are
// the only place that knows a specific wire protocol.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model string, system string, messages []Message, params Params) (Completion, error)
}

// Result is what the Adapter returns after continuation stitching and
// retry have run to completion (or exhausted their budgets).
type Result struct {
	Content      string
	FinishReason FinishReason
	Truncated    bool
	Metrics      schema.Metrics
}

// ContinuationConfig controls continuation stitching for every call made
// through an Adapter. It is fixed when the Adapter is constructed and is
// not read from llm_config, so all agent kinds share one setting.
// TokenBuffer is carried but not used by the stitching loop.
type ContinuationConfig struct {
	Enabled     bool
	MaxAttempts int
	TokenBuffer int
}

// DefaultContinuationConfig returns the spec's defaults.
func DefaultContinuationConfig() ContinuationConfig {
	return ContinuationConfig{Enabled: true, MaxAttempts: 5, TokenBuffer: 1000}
}

// RetryConfig controls the backoff policy for llm_transient errors.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns the spec's defaults (initial=1s, max=30s, max_retries=5).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Adapter is the provider-agnostic contract the Agent Runtime calls.
type Adapter struct {
	providers  map[string]Provider
	continuation ContinuationConfig
	retry      RetryConfig
	limiter    *RateLimiterRegistry
	logger     *slog.Logger
}

// NewAdapter constructs an Adapter over a set of registered providers.
func NewAdapter(providers map[string]Provider, continuation ContinuationConfig, retry RetryConfig, limiter *RateLimiterRegistry, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{providers: providers, continuation: continuation, retry: retry, limiter: limiter, logger: logger}
}

// HasProvider reports whether providerName is registered.
func (a *Adapter) HasProvider(providerName string) bool {
	_, ok := a.providers[providerName]
	return ok
}

// Complete is the contract operation: complete(provider, model, system,
// messages, params) → {content, finish_reason, usage}, with continuation
// stitching and retry/backoff applied transparently.
func (a *Adapter) Complete(ctx context.Context, provider, model, system string, messages []Message, params Params) (Result, error) {
	prov, ok := a.providers[provider]
	if !ok {
		return Result{}, schema.NewErrorf(schema.ErrCodeConfig, "unknown llm provider %q", provider).
			WithDetails(map[string]any{"provider": provider})
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, provider); err != nil {
			return Result{}, err
		}
	}

	start := time.Now()
	stitched, metrics, err := a.completeWithContinuation(ctx, prov, model, system, messages, params)
	metrics.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		return Result{}, err
	}
	stitched.Metrics = metrics
	return stitched, nil
}
