package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teemulinna/council/internal/graph"
	"github.com/teemulinna/council/internal/modelclient"
	"github.com/teemulinna/council/internal/ranking"
	"github.com/teemulinna/council/internal/streaming"
)

const rankingFormatInstructions = `
Rank the responses above from best to worst. End your reply with a block in exactly this format:

FINAL RANKING:
1. Response X
2. Response Y
...
`

// buildLabelMapping assigns labels A, B, C, ... to valid Stage 1 results in
// the order their nodes were attempted, per §3's Label mapping definition.
func buildLabelMapping(order []string, results map[string]NodeResult) (labelToNode map[string]string, nodeToLabel map[string]string, labeledOrder []string) {
	labelToNode = make(map[string]string)
	nodeToLabel = make(map[string]string)
	next := 'A'
	for _, id := range order {
		if _, ok := results[id]; !ok {
			continue
		}
		label := fmt.Sprintf("Response %c", next)
		labelToNode[label] = id
		nodeToLabel[id] = label
		labeledOrder = append(labeledOrder, id)
		next++
	}
	return labelToNode, nodeToLabel, labeledOrder
}

func buildRankingPrompt(query string, labeledOrder []string, results map[string]NodeResult, nodeToLabel map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n\n", query)
	for _, id := range labeledOrder {
		fmt.Fprintf(&b, "%s:\n%s\n\n", nodeToLabel[id], results[id].Content)
	}
	b.WriteString(rankingFormatInstructions)
	return b.String()
}

// runStage2 asks every node that produced a valid Stage 1 response to rank
// its peers, serially (deterministic streaming is favored over
// concurrency for this stage, per §5), and aggregates the parsed results.
func (o *Orchestrator) runStage2(ctx context.Context, conversationID string, roundNumber int, query string, compiled graph.Compiled, stage1 map[string]NodeResult, order []string, emit streaming.Emitter) ([]RankingResult, map[string]string) {
	labelToNode, nodeToLabel, labeledOrder := buildLabelMapping(order, stage1)
	if len(labeledOrder) < 2 {
		return nil, labelToNode
	}

	prompt := buildRankingPrompt(query, labeledOrder, stage1, nodeToLabel)

	var out []RankingResult
	for _, id := range labeledOrder {
		node := compiled.NodeMap[id]
		pattern := resolvePattern(node)
		temp := resolveTemperature(node, pattern)
		systemPrompt := effectiveSystemPrompt(node, pattern)

		messages := []modelclient.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		}

		started := time.Now()
		oc := o.call(ctx, node.ModelID, nil, messages, temp)
		duration := time.Since(started)
		if !oc.ok() {
			emit.Emit(streaming.Error(conversationID, id, oc.failureReason))
			o.logger.LogExecution(ExecutionLogEntry{
				ConversationID: conversationID, RoundNumber: roundNumber, Stage: 2,
				NodeID: id, RoleID: node.RoleID, ModelID: node.ModelID,
				OutputFragment: oc.failureReason, Duration: duration,
			})
			continue
		}

		parsed := ranking.Parse(oc.resp.Content)
		emit.Emit(streaming.Ranking(conversationID, id, parsed, oc.resp.Content))
		out = append(out, RankingResult{NodeID: id, Rankings: parsed, Reasoning: oc.resp.Content})

		o.logger.LogExecution(ExecutionLogEntry{
			ConversationID: conversationID, RoundNumber: roundNumber, Stage: 2,
			NodeID: id, RoleID: node.RoleID, ModelID: oc.usedModel,
			OutputFragment: oc.resp.Content, PromptTokens: oc.resp.Usage.PromptTokens,
			CompletionTokens: oc.resp.Usage.CompletionTokens, CostUSD: oc.costUSD,
			Duration: duration,
		})
		o.logger.LogDecision(DecisionEntry{
			ConversationID: conversationID, RoundNumber: roundNumber, NodeID: id,
			DecisionType: DecisionRankingProvided,
			Data:          map[string]any{"rankings": parsed},
		})
	}

	return out, labelToNode
}

// aggregateRankings maps Stage 2's anonymous labels back to node ids and
// computes the mean position per node, per §4.7's Aggregate rankings rule.
func aggregateRankings(stage2 []RankingResult, labelToNode map[string]string) []ranking.AggregateEntry {
	evaluations := make([]ranking.EvaluatorRanking, len(stage2))
	for i, r := range stage2 {
		evaluations[i] = ranking.EvaluatorRanking{EvaluatorModel: r.NodeID, RankingText: r.Reasoning}
	}
	return ranking.Aggregate(evaluations, labelToNode)
}
