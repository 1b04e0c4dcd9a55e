// Package resilience wraps a single model's call with retry+backoff, wraps
// a whole council round with fallback-model substitution to reach quorum,
// validates response content, and classifies errors for caller-side
// downgrade decisions.
package resilience

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/teemulinna/council/internal/modelclient"
)

// defaultQuorum is the minimum number of valid Stage-1 responses before
// fallback substitution stops.
const defaultQuorum = 3

// errorPatterns are rejected when found in the first 100 characters of a
// response, case-insensitively.
var errorPatterns = []string{
	"error:", "failed to", "unable to", "rate limit", "quota exceeded",
}

// Layer is the Resilience Layer: it mediates all Model Client calls on
// behalf of the orchestrator.
type Layer struct {
	client     modelclient.Client
	quorum     int
	retryBase  time.Duration
	retryCount uint64
}

// Option configures a Layer.
type Option func(*Layer)

// WithQuorum overrides the default quorum of 3.
func WithQuorum(q int) Option {
	return func(l *Layer) { l.quorum = q }
}

// WithRetry overrides the default backoff base (1s) and retry count (2).
func WithRetry(base time.Duration, count uint64) Option {
	return func(l *Layer) {
		l.retryBase = base
		l.retryCount = count
	}
}

// New builds a Layer that dispatches calls through client.
func New(client modelclient.Client, opts ...Option) *Layer {
	l := &Layer{
		client:     client,
		quorum:     defaultQuorum,
		retryBase:  time.Second,
		retryCount: 2,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CallResult pairs a node's response with the failure that prevented it,
// exactly one of which is non-nil.
type CallResult struct {
	Response *modelclient.Response
	Failure  *modelclient.Failure
}

// callOne performs a single model call with exponential backoff: for retry
// attempt i>=1, delay is retryBase*2^(i-1); on first success no further
// sleep occurs.
func (l *Layer) callOne(ctx context.Context, modelID string, messages []modelclient.Message, opts modelclient.CallOptions) CallResult {
	backoff := retry.WithMaxRetries(l.retryCount, withExponentialBackoff(l.retryBase))

	var last CallResult
	retryErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, failure := l.client.Call(ctx, modelID, messages, opts)
		if failure == nil {
			last = CallResult{Response: resp}
			return nil
		}
		last = CallResult{Failure: failure}
		if isRetryable(failure.Kind) {
			return retry.RetryableError(failure)
		}
		return failure
	})
	if retryErr != nil && last.Failure == nil {
		last = CallResult{Failure: &modelclient.Failure{Kind: modelclient.FailureUnknown, Message: "retry failed", Err: retryErr}}
	}
	return last
}

// withExponentialBackoff builds a retry.Backoff with the documented
// doubling sequence d, 2d, 4d, ... starting from base.
func withExponentialBackoff(base time.Duration) retry.Backoff {
	b, err := retry.NewExponential(base)
	if err != nil {
		// base is always positive in practice (Layer defaults to 1s); fall
		// back to a constant backoff rather than panicking.
		b, _ = retry.NewConstant(base)
	}
	return b
}

func isRetryable(kind modelclient.FailureKind) bool {
	switch kind {
	case modelclient.FailureUnauthorized, modelclient.FailureMalformed:
		return false
	default:
		return true
	}
}

// ValidateResponse implements the response validation rule: reject nil,
// empty or <10-char content, or content whose first 100 chars match one of
// errorPatterns.
func ValidateResponse(resp *modelclient.Response) bool {
	if resp == nil {
		return false
	}
	content := strings.TrimSpace(resp.Content)
	if len(content) < 10 {
		return false
	}
	head := content
	if len(head) > 100 {
		head = head[:100]
	}
	headLower := strings.ToLower(head)
	for _, pattern := range errorPatterns {
		if strings.Contains(headLower, pattern) {
			return false
		}
	}
	return true
}

// ExecuteWithFallback fans out to all primaryModels in parallel, then, if
// fewer than the configured quorum produced valid responses, dispatches one
// further parallel round to at most (quorum - valid) fallback models not
// already tried, taken in sorted order. No later round follows, even if
// that round also falls short of quorum. The returned map has one entry per model
// actually attempted; a nil Response/Failure.Response means no valid
// content was ultimately obtained for that model.
func (l *Layer) ExecuteWithFallback(ctx context.Context, primaryModels, fallbackPool []string, messages []modelclient.Message, opts modelclient.CallOptions) map[string]CallResult {
	results := make(map[string]CallResult, len(primaryModels))
	tried := make(map[string]bool, len(primaryModels))

	l.fanOut(ctx, primaryModels, messages, opts, results, tried)

	valid := countValid(results)
	if valid >= l.quorum {
		return results
	}

	needed := l.quorum - valid
	var available []string
	for _, m := range fallbackPool {
		if !tried[m] {
			available = append(available, m)
		}
	}
	sort.Strings(available) // deterministic selection order

	if needed > len(available) {
		needed = len(available)
	}
	if needed > 0 {
		l.fanOut(ctx, available[:needed], messages, opts, results, tried)
	}

	return results
}

func (l *Layer) fanOut(ctx context.Context, models []string, messages []modelclient.Message, opts modelclient.CallOptions, results map[string]CallResult, tried map[string]bool) {
	type outcome struct {
		model  string
		result CallResult
	}
	out := make(chan outcome, len(models))
	for _, m := range models {
		tried[m] = true
		go func(model string) {
			out <- outcome{model: model, result: l.callOne(ctx, model, messages, opts)}
		}(m)
	}
	for range models {
		o := <-out
		results[o.model] = o.result
	}
}

func countValid(results map[string]CallResult) int {
	n := 0
	for _, r := range results {
		if ValidateResponse(r.Response) {
			n++
		}
	}
	return n
}

// CanProceedWithPartial reports whether at least minRequired responses in
// results have valid content.
func CanProceedWithPartial(results map[string]CallResult, minRequired int) bool {
	return countValid(results) >= minRequired
}
