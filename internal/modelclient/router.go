package modelclient

import (
	"context"
	"fmt"

	"github.com/teemulinna/council/internal/catalog"
)

// Router dispatches a Call to the concrete client registered for the
// target model's provider, per catalog.ModelByID.
type Router struct {
	byProvider map[string]Client
}

// NewRouter builds a Router from a provider-name-to-client map, e.g.
// {"anthropic": anthropicClient, "openai": openaiClient, "bedrock": bedrockClient}.
func NewRouter(byProvider map[string]Client) *Router {
	return &Router{byProvider: byProvider}
}

// Call implements Client, routing by the model's catalog provider.
func (r *Router) Call(ctx context.Context, modelID string, messages []Message, opts CallOptions) (*Response, *Failure) {
	info, ok := catalog.ModelByID(modelID)
	if !ok {
		return nil, &Failure{Kind: FailureMalformed, Message: fmt.Sprintf("unknown model %q", modelID)}
	}
	client, ok := r.byProvider[info.Provider]
	if !ok {
		return nil, &Failure{Kind: FailureMalformed, Message: fmt.Sprintf("no client registered for provider %q", info.Provider)}
	}
	return client.Call(ctx, modelID, messages, opts)
}
