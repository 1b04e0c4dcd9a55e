package modelclient

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client against the Anthropic Messages API.
// It mirrors the call shape used throughout the project for the chairman
// summary call: a single client.Messages.New with a system prompt and one
// user message.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient builds a client authenticated with apiKey. The
// underlying SDK client is safe for concurrent use.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Call implements Client.
func (c *AnthropicClient) Call(ctx context.Context, modelID string, messages []Message, opts CallOptions) (*Response, *Failure) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(opts.Timeout, defaultResponseTimeout))
	defer cancel()

	var system []anthropic.TextBlockParam
	var msgs []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   4096,
		System:      system,
		Messages:    msgs,
		Temperature: anthropic.Float(opts.Temperature),
	})
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &Failure{Kind: FailureMalformed, Message: "anthropic response contained no text block"}
	}

	return &Response{
		Content: text.String(),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

func classifyAnthropicError(err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTransportTimeout, Message: "anthropic call timed out", Err: err}
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &Failure{Kind: FailureUnauthorized, Message: "anthropic rejected credentials", Err: err}
		case http.StatusTooManyRequests:
			return &Failure{Kind: FailureRateLimited, Message: "anthropic rate limited the request", Err: err}
		case http.StatusPaymentRequired:
			return &Failure{Kind: FailureQuotaExceeded, Message: "anthropic quota exceeded", Err: err}
		default:
			return &Failure{Kind: FailureHTTPStatus, Message: "anthropic returned an error status", Err: err}
		}
	}
	return &Failure{Kind: FailureUnknown, Message: "anthropic call failed", Err: err}
}
