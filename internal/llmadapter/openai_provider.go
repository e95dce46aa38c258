package llmadapter

import (
	"context"
	"errors"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts an OpenAI-compatible chat-completion API (OpenAI
// itself, or any vendor exposing the same wire format) to the Provider
// contract, grounded on TimAnthonyAlexander-loom's llm/openai.go.
type OpenAIProvider struct {
	name   string
	client *openai.Client
}

// NewOpenAIProvider constructs a provider registered under name (so the
// same wire client can back several config-level provider aliases), using
// apiKey and an optional baseURL override for OpenAI-compatible gateways.
func NewOpenAIProvider(name, apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{name: name, client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Complete(ctx context.Context, model, system string, messages []Message, params Params) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(params.Temperature),
		Messages:    toOpenAIMessages(system, messages),
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, &ProviderError{Kind: classifyOpenAIError(err), Cause: err}
	}
	if len(resp.Choices) == 0 {
		return Completion{}, &ProviderError{Kind: KindMalformed, Cause: errors.New("no choices in response")}
	}

	choice := resp.Choices[0]
	return Completion{
		Content:      choice.Message.Content,
		FinishReason: toFinishReason(string(choice.FinishReason)),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func toOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func toFinishReason(raw string) FinishReason {
	switch raw {
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	case "stop", "":
		return FinishStop
	default:
		return FinishStop
	}
}

func classifyOpenAIError(err error) ProviderErrorKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return KindRateLimit
		case 401, 403:
			return KindAuth
		case 400, 422:
			return KindMalformed
		case 500, 502, 503, 504:
			return KindOverloaded
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return KindRateLimit
	case strings.Contains(msg, "overloaded"), strings.Contains(msg, "service unavailable"):
		return KindOverloaded
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "content filter"), strings.Contains(msg, "content_filter"):
		return KindContentFilter
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"):
		return KindAuth
	default:
		return KindMalformed
	}
}
