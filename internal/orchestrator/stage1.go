package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/teemulinna/council/internal/graph"
	"github.com/teemulinna/council/internal/modelclient"
	"github.com/teemulinna/council/internal/streaming"
)

// layerNodes groups compiled's participant execution order into ranks: a
// node's rank is one past the highest rank among its in-set predecessors,
// so siblings with no dependency on one another share a rank and may run
// concurrently while a child never starts before its parents' rank.
func layerNodes(order []string, incoming map[string][]string) [][]string {
	rank := make(map[string]int, len(order))
	inOrder := make(map[string]bool, len(order))
	for _, id := range order {
		inOrder[id] = true
	}
	for _, id := range order {
		maxParent := -1
		for _, p := range incoming[id] {
			if !inOrder[p] {
				continue
			}
			if r, ok := rank[p]; ok && r > maxParent {
				maxParent = r
			}
		}
		rank[id] = maxParent + 1
	}

	maxRank := 0
	for _, r := range rank {
		if r > maxRank {
			maxRank = r
		}
	}
	layers := make([][]string, maxRank+1)
	for _, id := range order {
		layers[rank[id]] = append(layers[rank[id]], id)
	}
	return layers
}

// runStage1 executes every participant node in topologically-safe layers,
// parallelizing siblings within a layer while preserving deterministic
// per-node event order. fallbackPool is the set of sibling model ids each
// node may fall back to if its own model fails.
func (o *Orchestrator) runStage1(ctx context.Context, conversationID string, roundNumber int, query string, compiled graph.Compiled, emit streaming.Emitter) (map[string]NodeResult, []string) {
	results := make(map[string]NodeResult)
	var order []string // participant ids in the order they were attempted, valid or not

	fallbackPool := make([]string, 0, len(compiled.ExecutionOrder))
	seenModel := make(map[string]bool)
	for _, id := range compiled.ExecutionOrder {
		m := compiled.NodeMap[id].ModelID
		if !seenModel[m] {
			seenModel[m] = true
			fallbackPool = append(fallbackPool, m)
		}
	}

	for _, layer := range layerNodes(compiled.ExecutionOrder, compiled.Incoming) {
		for _, id := range layer {
			emit.Emit(streaming.NodeStateEvent(conversationID, id, streaming.NodeActive))
		}

		type outcome struct {
			id       string
			result   NodeResult
			failed   *FailureResult
			duration time.Duration
		}
		out := make([]outcome, len(layer))
		var wg sync.WaitGroup
		for i, id := range layer {
			wg.Add(1)
			go func(i int, nodeID string) {
				defer wg.Done()
				node := compiled.NodeMap[nodeID]
				pattern := resolvePattern(node)
				temp := resolveTemperature(node, pattern)
				systemPrompt := effectiveSystemPrompt(node, pattern)
				upstream := upstreamContextFor(nodeID, compiled.Incoming, results)
				userMessage := effectiveUserMessage(query, pattern, upstream)
				messages := []modelclient.Message{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: userMessage},
				}

				others := siblingModels(fallbackPool, node.ModelID)
				started := time.Now()
				outcomeCall := o.call(ctx, node.ModelID, others, messages, temp)
				duration := time.Since(started)
				if !outcomeCall.ok() {
					out[i] = outcome{id: nodeID, failed: &FailureResult{NodeID: nodeID, Reason: outcomeCall.failureReason}, duration: duration}
					return
				}
				out[i] = outcome{id: nodeID, duration: duration, result: NodeResult{
					NodeID:           nodeID,
					ModelID:          outcomeCall.usedModel,
					Content:          outcomeCall.resp.Content,
					PromptTokens:     outcomeCall.resp.Usage.PromptTokens,
					CompletionTokens: outcomeCall.resp.Usage.CompletionTokens,
					CostUSD:          outcomeCall.costUSD,
					CacheHit:         outcomeCall.cacheHit,
				}}
			}(i, id)
		}
		wg.Wait()

		// This loop runs after the whole layer's goroutines have finished,
		// so events are emitted in the layer's deterministic node order
		// rather than wall-clock completion order.
		for _, oc := range out {
			node := compiled.NodeMap[oc.id]
			order = append(order, oc.id)
			if oc.failed != nil {
				emit.Emit(streaming.NodeStateEvent(conversationID, oc.id, streaming.NodeError))
				emit.Emit(streaming.Error(conversationID, oc.id, oc.failed.Reason))
				o.logger.LogExecution(ExecutionLogEntry{
					ConversationID: conversationID, RoundNumber: roundNumber, Stage: 1,
					NodeID: oc.id, RoleID: node.RoleID, ModelID: node.ModelID,
					OutputFragment: oc.failed.Reason, Duration: oc.duration,
				})
				continue
			}
			results[oc.id] = oc.result
			emit.Emit(streaming.Response(conversationID, oc.id, oc.result.Content, oc.result.PromptTokens, oc.result.CompletionTokens, oc.result.CostUSD))
			emit.Emit(streaming.NodeStateEvent(conversationID, oc.id, streaming.NodeComplete))
			o.logger.LogExecution(ExecutionLogEntry{
				ConversationID: conversationID, RoundNumber: roundNumber, Stage: 1,
				NodeID: oc.id, RoleID: node.RoleID, ModelID: oc.result.ModelID,
				OutputFragment: oc.result.Content, PromptTokens: oc.result.PromptTokens,
				CompletionTokens: oc.result.CompletionTokens, CostUSD: oc.result.CostUSD,
				Duration: oc.duration,
			})
			o.logger.LogDecision(DecisionEntry{
				ConversationID: conversationID, RoundNumber: roundNumber, NodeID: oc.id,
				DecisionType: DecisionResponseGenerated,
				Data:          map[string]any{"model": oc.result.ModelID, "cacheHit": oc.result.CacheHit},
			})
		}
	}

	return results, order
}

func siblingModels(pool []string, exclude string) []string {
	out := make([]string, 0, len(pool))
	for _, m := range pool {
		if m != exclude {
			out = append(out, m)
		}
	}
	return out
}
