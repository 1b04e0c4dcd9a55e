package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teemulinna/council/internal/graph"
	"github.com/teemulinna/council/internal/modelclient"
	"github.com/teemulinna/council/internal/streaming"
)

// runStage3 identifies the chairman node and synthesizes a final answer
// from its upstream nodes' Stage 1 responses, or from every Stage 1
// response if the chairman has no incoming edges. Returns nil if the
// council has no chairman.
func (o *Orchestrator) runStage3(ctx context.Context, conversationID string, roundNumber int, query string, compiled graph.Compiled, stage1 map[string]NodeResult, order []string, emit streaming.Emitter) *FinalResult {
	if compiled.Chairman == nil {
		return nil
	}
	chairman := *compiled.Chairman

	upstreamIDs := compiled.Incoming[chairman.ID]
	var contributorIDs []string
	if len(upstreamIDs) == 0 {
		contributorIDs = order
	} else {
		contributorIDs = upstreamIDs
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n", query)
	for _, id := range contributorIDs {
		res, ok := stage1[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n%s's response:\n%s\n", res.NodeID, res.Content)
	}

	systemPrompt := chairman.UserOverridePrompt
	if systemPrompt == "" {
		systemPrompt = chairmanRolePrompt()
	}
	pattern := resolvePattern(chairman)
	temp := resolveTemperature(chairman, pattern)

	messages := []modelclient.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}

	emit.Emit(streaming.NodeStateEvent(conversationID, chairman.ID, streaming.NodeActive))

	started := time.Now()
	oc := o.call(ctx, chairman.ModelID, nil, messages, temp)
	duration := time.Since(started)
	if !oc.ok() {
		emit.Emit(streaming.NodeStateEvent(conversationID, chairman.ID, streaming.NodeError))
		emit.Emit(streaming.Error(conversationID, chairman.ID, oc.failureReason))
		o.logger.LogExecution(ExecutionLogEntry{
			ConversationID: conversationID, RoundNumber: roundNumber, Stage: 3,
			NodeID: chairman.ID, RoleID: chairman.RoleID, ModelID: chairman.ModelID,
			OutputFragment: oc.failureReason, Duration: duration,
		})
		return nil
	}

	result := &FinalResult{
		NodeID:           chairman.ID,
		Content:          oc.resp.Content,
		PromptTokens:     oc.resp.Usage.PromptTokens,
		CompletionTokens: oc.resp.Usage.CompletionTokens,
		CostUSD:          oc.costUSD,
	}

	emit.Emit(streaming.FinalAnswer(conversationID, result.Content, result.PromptTokens, result.CompletionTokens, result.CostUSD))
	emit.Emit(streaming.NodeStateEvent(conversationID, chairman.ID, streaming.NodeComplete))

	o.logger.LogExecution(ExecutionLogEntry{
		ConversationID: conversationID, RoundNumber: roundNumber, Stage: 3,
		NodeID: chairman.ID, RoleID: chairman.RoleID, ModelID: oc.usedModel,
		OutputFragment: result.Content, PromptTokens: result.PromptTokens,
		CompletionTokens: result.CompletionTokens, CostUSD: result.CostUSD,
		Duration: duration,
	})
	o.logger.LogDecision(DecisionEntry{
		ConversationID: conversationID, RoundNumber: roundNumber, NodeID: chairman.ID,
		DecisionType: DecisionFinalSynthesis,
		Data:          map[string]any{"model": oc.usedModel},
	})

	return result
}
