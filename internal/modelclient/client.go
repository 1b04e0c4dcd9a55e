// Package modelclient implements the Model Client component: a one-shot
// chat call to an upstream provider that returns text plus token usage, or
// a typed failure. Implementations are stateless and safe for concurrent
// use; callers control cancellation via ctx.
package modelclient

import (
	"context"
	"time"
)

// Message is one turn of a chat-completion request.
type Message struct {
	Role    string
	Content string
}

// Usage reports token counts for a single call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a successful upstream reply.
type Response struct {
	Content   string
	Usage     Usage
	Reasoning string // optional extended-thinking/reasoning trace, when the provider surfaces one
}

// FailureKind classifies why a call did not produce a usable response.
type FailureKind string

// Failure kinds per spec.md §4.1 and §7.
const (
	FailureTransportTimeout FailureKind = "transport_timeout"
	FailureHTTPStatus       FailureKind = "http_status"
	FailureMalformed        FailureKind = "malformed"
	FailureUnauthorized     FailureKind = "unauthorized"
	FailureRateLimited      FailureKind = "rate_limited"
	FailureQuotaExceeded    FailureKind = "quota_exceeded"
	FailureUnknown          FailureKind = "unknown"
)

// Failure is a typed call failure. It implements error so it can be wrapped
// and compared with errors.As by callers that need the Kind.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// CallOptions configures a single Call.
type CallOptions struct {
	// Temperature is the sampling temperature. Zero-value is a valid
	// temperature (0.0), so callers must always set it explicitly; the
	// orchestrator resolves the effective temperature per §4.7 before
	// calling in.
	Temperature float64
	// Timeout bounds the call. Zero means the client's own default
	// (120s for response calls, 30s for catalog fetches per §5).
	Timeout time.Duration
}

// Client performs one-shot chat calls against a single upstream provider.
type Client interface {
	// Call issues a single chat-completion request. On success it returns
	// a Response and a nil Failure. On failure it returns a nil Response
	// and a non-nil, classified Failure.
	Call(ctx context.Context, modelID string, messages []Message, opts CallOptions) (*Response, *Failure)
}

func timeoutOrDefault(d time.Duration, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

const (
	defaultResponseTimeout = 120 * time.Second
	defaultCatalogTimeout  = 30 * time.Second
)
