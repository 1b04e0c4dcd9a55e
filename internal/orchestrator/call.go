package orchestrator

import (
	"context"
	"sort"

	"github.com/teemulinna/council/internal/modelclient"
	"github.com/teemulinna/council/internal/resilience"
)

// callOutcome is the result of dispatching one model call through the
// cache, budget, and resilience pipeline.
type callOutcome struct {
	usedModel     string
	resp          *modelclient.Response
	cacheHit      bool
	costUSD       float64
	failureReason string
}

func (o callOutcome) ok() bool { return o.resp != nil }

// approxTokenCount is a cheap pre-call token estimate: roughly 4 characters
// per token, plus headroom for the completion the call is expected to
// produce.
func approxTokenCount(messages []modelclient.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars/4 + 500
}

// call runs the Response-Cache-then-Model-Client pipeline described in
// §4.7: a cache hit short-circuits for free; otherwise the budget is
// checked, the Resilience Layer is invoked with primaryModel and a
// deterministic fallback pool, and a successful result is recorded against
// the Cost Accountant and written back to the cache.
func (o *Orchestrator) call(ctx context.Context, primaryModel string, fallbackPool []string, messages []modelclient.Message, temperature float64) callOutcome {
	if cached, hit, err := o.respCache.Get(ctx, primaryModel, messages); err == nil && hit {
		resp := cached
		return callOutcome{usedModel: primaryModel, resp: &resp, cacheHit: true}
	}

	estimate := o.cost.Estimate([]string{primaryModel}, approxTokenCount(messages))
	if !o.cost.CanProceed(estimate) {
		return callOutcome{failureReason: "budget_exceeded"}
	}

	results := o.resilient.ExecuteWithFallback(ctx, []string{primaryModel}, fallbackPool, messages, modelclient.CallOptions{Temperature: temperature})

	if r, ok := results[primaryModel]; ok && resilience.ValidateResponse(r.Response) {
		return o.recordSuccess(ctx, primaryModel, messages, r.Response)
	}

	var fallbackModels []string
	for m := range results {
		if m != primaryModel {
			fallbackModels = append(fallbackModels, m)
		}
	}
	sort.Strings(fallbackModels)
	for _, m := range fallbackModels {
		if r := results[m]; resilience.ValidateResponse(r.Response) {
			return o.recordSuccess(ctx, m, messages, r.Response)
		}
	}

	reason := "no valid response"
	if r, ok := results[primaryModel]; ok && r.Failure != nil {
		reason = string(r.Failure.Kind) + ": " + r.Failure.Message
	}
	return callOutcome{failureReason: reason}
}

func (o *Orchestrator) recordSuccess(ctx context.Context, usedModel string, messages []modelclient.Message, resp *modelclient.Response) callOutcome {
	rec := o.cost.RecordUsage(usedModel, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	_ = o.respCache.Set(ctx, usedModel, messages, *resp, o.cacheTTL)
	return callOutcome{usedModel: usedModel, resp: resp, costUSD: rec.TotalCostUSD}
}
