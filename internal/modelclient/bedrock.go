package modelclient

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client used
// by this adapter, so tests can substitute a fake implementation.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements Client against the AWS Bedrock Converse API.
type BedrockClient struct {
	runtime RuntimeClient
}

// NewBedrockClient builds a client from static credentials and a region,
// avoiding a dependency on the aws-sdk-go-v2/config module (not present in
// this repository's dependency set).
func NewBedrockClient(region, accessKeyID, secretAccessKey string) *BedrockClient {
	cfg := aws.Config{
		Region: region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey}, nil
		}),
	}
	return &BedrockClient{runtime: bedrockruntime.NewFromConfig(cfg)}
}

// Call implements Client.
func (c *BedrockClient) Call(ctx context.Context, modelID string, messages []Message, opts CallOptions) (*Response, *Failure) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(opts.Timeout, defaultResponseTimeout))
	defer cancel()

	var system []brtypes.SystemContentBlock
	var msgs []brtypes.Message
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case "assistant":
			msgs = append(msgs, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		default:
			msgs = append(msgs, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}

	temp := float32(opts.Temperature)
	out, err := c.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		System:   system,
		Messages: msgs,
		InferenceConfig: &brtypes.InferenceConfiguration{
			Temperature: aws.Float32(temp),
		},
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, &Failure{Kind: FailureMalformed, Message: "bedrock converse returned no message output"}
	}
	var text strings.Builder
	for _, block := range msgOut.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text.WriteString(tb.Value)
		}
	}
	if text.Len() == 0 {
		return nil, &Failure{Kind: FailureMalformed, Message: "bedrock converse returned no text content"}
	}

	var usage Usage
	if out.Usage != nil {
		usage = Usage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}

	return &Response{Content: text.String(), Usage: usage}, nil
}

func classifyBedrockError(err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTransportTimeout, Message: "bedrock call timed out", Err: err}
	}
	var throttled *brtypes.ThrottlingException
	if errors.As(err, &throttled) {
		return &Failure{Kind: FailureRateLimited, Message: "bedrock throttled the request", Err: err}
	}
	var quota *brtypes.ServiceQuotaExceededException
	if errors.As(err, &quota) {
		return &Failure{Kind: FailureQuotaExceeded, Message: "bedrock quota exceeded", Err: err}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == 401 || respErr.HTTPStatusCode() == 403 {
			return &Failure{Kind: FailureUnauthorized, Message: "bedrock rejected credentials", Err: err}
		}
		return &Failure{Kind: FailureHTTPStatus, Message: "bedrock returned an error status", Err: err}
	}
	return &Failure{Kind: FailureUnknown, Message: "bedrock call failed", Err: err}
}
