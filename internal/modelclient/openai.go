package modelclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements Client against the OpenAI Chat Completions API.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient builds a client authenticated with apiKey.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

// Call implements Client.
func (c *OpenAIClient) Call(ctx context.Context, modelID string, messages []Message, opts CallOptions) (*Response, *Failure) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(opts.Timeout, defaultResponseTimeout))
	defer cancel()

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(modelID),
		Messages:    msgs,
		Temperature: openai.Float(opts.Temperature),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &Failure{Kind: FailureMalformed, Message: "openai response contained no choices"}
	}

	return &Response{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func classifyOpenAIError(err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTransportTimeout, Message: "openai call timed out", Err: err}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &Failure{Kind: FailureUnauthorized, Message: "openai rejected credentials", Err: err}
		case http.StatusTooManyRequests:
			return &Failure{Kind: FailureRateLimited, Message: "openai rate limited the request", Err: err}
		case http.StatusPaymentRequired:
			return &Failure{Kind: FailureQuotaExceeded, Message: "openai quota exceeded", Err: err}
		default:
			return &Failure{Kind: FailureHTTPStatus, Message: "openai returned an error status", Err: err}
		}
	}
	return &Failure{Kind: FailureUnknown, Message: "openai call failed", Err: err}
}
