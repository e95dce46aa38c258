package llmadapter

import (
	"context"
	"strings"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

const continuationPrompt = "Continue exactly from where you left off, maintaining the output format."

// completeWithContinuation issues the initial request, then re-issues
// continuation requests while finish_reason=length and the continuation
// budget allows, concatenating verbatim per spec §4.2. A small
// defensive pass trims an LLM's accidental repetition of the previous
// chunk's tail before concatenating (see SPEC_FULL.md §3.2) — with no
// overlap, the concatenation is exactly verbatim as the contract requires.
func (a *Adapter) completeWithContinuation(ctx context.Context, prov Provider, model, system string, messages []Message, params Params) (Result, schema.Metrics, error) {
	var metrics schema.Metrics
	conv := append([]Message{}, messages...)

	completion, err := callWithRetry(ctx, a.retry, func() (Completion, error) {
		return prov.Complete(ctx, model, system, conv, params)
	})
	if err != nil {
		return Result{}, metrics, err
	}
	metrics.PromptTokens += completion.Usage.PromptTokens
	metrics.CompletionTokens += completion.Usage.CompletionTokens

	accumulated := completion.Content
	finish := completion.FinishReason

	if !a.continuation.Enabled {
		return a.finalize(accumulated, finish, metrics, false)
	}

	attempts := 0
	for finish == FinishLength && attempts < a.continuation.MaxAttempts {
		attempts++
		conv = append(conv, Message{Role: "assistant", Content: accumulated}, Message{Role: "user", Content: continuationPrompt})

		next, err := callWithRetry(ctx, a.retry, func() (Completion, error) {
			return prov.Complete(ctx, model, system, conv, params)
		})
		if err != nil {
			return Result{}, metrics, err
		}
		metrics.PromptTokens += next.Usage.PromptTokens
		metrics.CompletionTokens += next.Usage.CompletionTokens
		metrics.Continuations++

		accumulated += trimOverlap(accumulated, next.Content)
		finish = next.FinishReason
	}

	truncated := finish == FinishLength && attempts >= a.continuation.MaxAttempts
	return a.finalize(accumulated, finish, metrics, truncated)
}

func (a *Adapter) finalize(content string, finish FinishReason, metrics schema.Metrics, truncated bool) (Result, schema.Metrics, error) {
	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens
	return Result{Content: content, FinishReason: finish, Truncated: truncated}, metrics, nil
}

// trimOverlap compares the last 200 bytes of the accumulated text with the
// first 200 bytes of the new chunk using DiffMain. When the diff opens with
// an equal segment (text both windows start with) that the accumulated
// window also ends with, that segment is dropped from the new chunk. A
// re-emitted suffix that does not also begin the 200-byte window is not
// detected; the new chunk is then returned unchanged.
func trimOverlap(accumulated, next string) string {
	const maxOverlapCheck = 200
	tail := accumulated
	if len(tail) > maxOverlapCheck {
		tail = tail[len(tail)-maxOverlapCheck:]
	}
	head := next
	if len(head) > maxOverlapCheck {
		head = head[:maxOverlapCheck]
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(tail, head, false)
	if len(diffs) == 0 {
		return next
	}
	// DiffMain's leading equal segment is the common prefix of tail and
	// head; it is trimmed only when tail also ends with it.
	first := diffs[0]
	if first.Type == diffmatchpatch.DiffEqual && strings.HasSuffix(tail, first.Text) && strings.HasPrefix(head, first.Text) && len(first.Text) > 0 {
		return next[len(first.Text):]
	}
	return next
}
