package resilience

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/teemulinna/council/internal/modelclient"
)

// fakeClient returns a scripted response or failure per model, counting
// calls so tests can assert retry behavior.
type fakeClient struct {
	calls   atomic.Int32
	script  map[string][]scriptedCall
	callIdx map[string]*int32
}

type scriptedCall struct {
	resp    *modelclient.Response
	failure *modelclient.Failure
}

func newFakeClient(script map[string][]scriptedCall) *fakeClient {
	return &fakeClient{script: script, callIdx: make(map[string]*int32)}
}

func (f *fakeClient) Call(_ context.Context, modelID string, _ []modelclient.Message, _ modelclient.CallOptions) (*modelclient.Response, *modelclient.Failure) {
	f.calls.Add(1)
	idxPtr, ok := f.callIdx[modelID]
	if !ok {
		var z int32
		idxPtr = &z
		f.callIdx[modelID] = idxPtr
	}
	idx := atomic.AddInt32(idxPtr, 1) - 1

	calls := f.script[modelID]
	if int(idx) >= len(calls) {
		idx = int32(len(calls) - 1)
	}
	sc := calls[idx]
	return sc.resp, sc.failure
}

func ok(content string) *modelclient.Response {
	return &modelclient.Response{Content: content}
}

func TestValidateResponseRejectsShortContent(t *testing.T) {
	t.Parallel()
	require.False(t, ValidateResponse(ok("short")))
	require.False(t, ValidateResponse(nil))
	require.True(t, ValidateResponse(ok("this is a sufficiently long valid response")))
}

func TestValidateResponseRejectsErrorPatterns(t *testing.T) {
	t.Parallel()
	require.False(t, ValidateResponse(ok("Error: something went wrong here")))
	require.False(t, ValidateResponse(ok("I am unable to answer this question right now")))
	require.False(t, ValidateResponse(ok("Rate limit exceeded, please try again later")))
}

func TestExecuteWithFallbackNoFallbackNeededWhenQuorumMet(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]scriptedCall{
		"m1": {{resp: ok("a valid response from model one")}},
		"m2": {{resp: ok("a valid response from model two")}},
		"m3": {{resp: ok("a valid response from model three")}},
	})
	layer := New(client, WithQuorum(3))

	results := layer.ExecuteWithFallback(context.Background(), []string{"m1", "m2", "m3"}, []string{"f1", "f2"}, nil, modelclient.CallOptions{})
	require.Len(t, results, 3)
	require.Equal(t, 3, countValid(results))
}

func TestExecuteWithFallbackInvokesOnlyEnoughFallbacks(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]scriptedCall{
		"m1": {{resp: ok("a valid response from model one")}},
		"m2": {{failure: &modelclient.Failure{Kind: modelclient.FailureMalformed}}},
		"m3": {{failure: &modelclient.Failure{Kind: modelclient.FailureMalformed}}},
		"f1": {{resp: ok("a valid fallback response one")}},
		"f2": {{resp: ok("a valid fallback response two")}},
	})
	layer := New(client, WithQuorum(3))

	results := layer.ExecuteWithFallback(context.Background(), []string{"m1", "m2", "m3"}, []string{"f1", "f2"}, nil, modelclient.CallOptions{})
	// 1 primary success + need 2 more -> both fallbacks tried.
	require.Contains(t, results, "f1")
	require.Contains(t, results, "f2")
	require.Equal(t, 3, countValid(results))
}

func TestExecuteWithFallbackExhaustsAvailableFallbacks(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]scriptedCall{
		"m1": {{failure: &modelclient.Failure{Kind: modelclient.FailureMalformed}}},
		"m2": {{failure: &modelclient.Failure{Kind: modelclient.FailureMalformed}}},
		"m3": {{failure: &modelclient.Failure{Kind: modelclient.FailureMalformed}}},
		"f1": {{resp: ok("a valid fallback response one")}},
	})
	layer := New(client, WithQuorum(3))

	results := layer.ExecuteWithFallback(context.Background(), []string{"m1", "m2", "m3"}, []string{"f1"}, nil, modelclient.CallOptions{})
	require.Equal(t, 1, countValid(results))
	require.Len(t, results, 4)
}

func TestCallOneRetriesOnRetryableFailure(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]scriptedCall{
		"m1": {
			{failure: &modelclient.Failure{Kind: modelclient.FailureTransportTimeout}},
			{resp: ok("succeeded on second attempt with enough content")},
		},
	})
	layer := New(client, WithRetry(time.Millisecond, 2))

	result := layer.callOne(context.Background(), "m1", nil, modelclient.CallOptions{})
	require.NotNil(t, result.Response)
	require.Equal(t, int32(2), client.calls.Load())
}

func TestCallOneDoesNotRetryOnUnauthorized(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]scriptedCall{
		"m1": {{failure: &modelclient.Failure{Kind: modelclient.FailureUnauthorized}}},
	})
	layer := New(client, WithRetry(time.Millisecond, 2))

	result := layer.callOne(context.Background(), "m1", nil, modelclient.CallOptions{})
	require.Nil(t, result.Response)
	require.Equal(t, int32(1), client.calls.Load())
}

func TestCanProceedWithPartial(t *testing.T) {
	t.Parallel()

	results := map[string]CallResult{
		"m1": {Response: ok("a valid response long enough to pass")},
		"m2": {Response: ok("another valid response long enough")},
		"m3": {Failure: &modelclient.Failure{Kind: modelclient.FailureMalformed}},
	}
	require.True(t, CanProceedWithPartial(results, 2))
	require.False(t, CanProceedWithPartial(results, 3))
}

func TestErrorRecoveryMapping(t *testing.T) {
	t.Parallel()

	var er ErrorRecovery
	require.Equal(t, StrategyRateLimit, er.GetRecoveryStrategy(&modelclient.Failure{Kind: modelclient.FailureRateLimited}))
	require.Equal(t, StrategyTimeout, er.GetRecoveryStrategy(&modelclient.Failure{Kind: modelclient.FailureTransportTimeout}))
	require.Equal(t, StrategyAuthError, er.GetRecoveryStrategy(&modelclient.Failure{Kind: modelclient.FailureUnauthorized}))
	require.Equal(t, StrategyQuotaExceeded, er.GetRecoveryStrategy(&modelclient.Failure{Kind: modelclient.FailureQuotaExceeded}))
	require.True(t, ShouldUseCheaperModel(StrategyQuotaExceeded))
	require.False(t, ShouldUseCheaperModel(StrategyTimeout))
}
