// Package orchestrator implements the Stage Orchestrator: it drives Stage
// 1 (DAG-ordered parallel fan-out with upstream-context injection), Stage
// 2 (peer ranking), and Stage 3 (chairman synthesis), wiring together the
// Graph Compiler, Resilience Layer, Response Cache, Cost Accountant,
// Ranking Parser, and Safety Filter behind the streaming.Executor
// interface the Streaming Session drives.
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teemulinna/council/internal/cache"
	"github.com/teemulinna/council/internal/cost"
	"github.com/teemulinna/council/internal/graph"
	"github.com/teemulinna/council/internal/modelclient"
	"github.com/teemulinna/council/internal/resilience"
	"github.com/teemulinna/council/internal/safety"
	"github.com/teemulinna/council/internal/streaming"
)

const queryCacheModelID = "council:complete"

// Orchestrator drives one council execution end to end.
type Orchestrator struct {
	resilient         *resilience.Layer
	respCache         cache.Cache
	cost              *cost.Accountant
	cacheTTL          time.Duration
	maxInputChars     int
	queryCacheEnabled bool
	logger            Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithCacheTTL(d time.Duration) Option { return func(o *Orchestrator) { o.cacheTTL = d } }
func WithMaxInputChars(n int) Option      { return func(o *Orchestrator) { o.maxInputChars = n } }
func WithQueryCache(enabled bool) Option  { return func(o *Orchestrator) { o.queryCacheEnabled = enabled } }
func WithLogger(l Logger) Option          { return func(o *Orchestrator) { o.logger = l } }

// WithResilience overrides the default quorum-of-1 Resilience Layer, e.g.
// to customize retry backoff. Must be passed after the client is known, so
// it replaces the Layer New already built rather than configuring it.
func WithResilience(layer *resilience.Layer) Option {
	return func(o *Orchestrator) { o.resilient = layer }
}

// New builds an Orchestrator dispatching calls through client. The
// Resilience Layer it constructs uses a quorum of 1, since each Stage 1/2
// call targets a single node's bound model with its own distinct prompt —
// the stage-wide quorum policy documented for the Resilience Layer is
// realized one node at a time here. Stage 1 calls fall back across sibling
// models on failure; Stage 2 and Stage 3 calls pass no fallback models.
func New(client modelclient.Client, respCache cache.Cache, acct *cost.Accountant, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resilient:         resilience.New(client, resilience.WithQuorum(1)),
		respCache:         respCache,
		cost:              acct,
		cacheTTL:          24 * time.Hour,
		maxInputChars:     10000,
		queryCacheEnabled: true,
		logger:            NopLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute implements streaming.Executor, running a fresh round 1
// execution. Use ExecuteRound directly to track round numbers across a
// multi-round conversation.
func (o *Orchestrator) Execute(ctx context.Context, conversationID, query string, cfg streaming.CouncilConfig, emit streaming.Emitter) error {
	return o.ExecuteRound(ctx, conversationID, 1, query, cfg, emit)
}

// ExecuteRound runs one full council execution: sanitization, graph
// compilation, a query-cache lookup, the three stages, and completion
// assembly.
func (o *Orchestrator) ExecuteRound(ctx context.Context, conversationID string, roundNumber int, query string, cfg streaming.CouncilConfig, emit streaming.Emitter) error {
	cleanQuery, err := safety.SanitizeUserInput(query, o.maxInputChars)
	if err != nil {
		emit.Emit(streaming.Error(conversationID, "", err.Error()))
		return err
	}

	if o.queryCacheEnabled {
		if bundle, hit := o.lookupQueryCache(ctx, cleanQuery); hit {
			o.replay(conversationID, bundle, emit)
			return nil
		}
	}

	nodes := make([]graph.Node, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		nodes[i] = graph.Node{
			ID: n.ID, ModelID: n.ModelID, RoleID: n.RoleID, PatternID: n.PatternID,
			UserOverridePrompt: n.UserOverridePrompt, Temperature: n.Temperature,
			SpeakingOrder: n.SpeakingOrder, IsChairman: n.IsChairman,
		}
	}
	edges := make([]graph.Edge, len(cfg.Edges))
	for i, e := range cfg.Edges {
		edges[i] = graph.Edge{Source: e.Source, Target: e.Target}
	}
	compiled := graph.Compile(nodes, edges)

	o.logger.LogDecision(DecisionEntry{ConversationID: conversationID, RoundNumber: roundNumber, DecisionType: DecisionStageStart, Data: map[string]any{"stage": 1}})
	emit.Emit(streaming.StageUpdate(conversationID, 1))
	stage1, order := o.runStage1(ctx, conversationID, roundNumber, cleanQuery, compiled, emit)

	if len(stage1) == 0 {
		err := newExecutionError(ErrorNoResponses, "no valid stage 1 responses")
		emit.Emit(streaming.Error(conversationID, "", err.Error()))
		return err
	}

	var stage2 []RankingResult
	labelToNode := map[string]string{}
	if len(stage1) >= 2 {
		if err := o.checkBudgetForStage(stage1); err != nil {
			return o.abortOnBudget(conversationID, roundNumber, stage1, order, emit, err)
		}
		o.logger.LogDecision(DecisionEntry{ConversationID: conversationID, RoundNumber: roundNumber, DecisionType: DecisionStageStart, Data: map[string]any{"stage": 2}})
		emit.Emit(streaming.StageUpdate(conversationID, 2))
		stage2, labelToNode = o.runStage2(ctx, conversationID, roundNumber, cleanQuery, compiled, stage1, order, emit)
	}

	var stage3 *FinalResult
	if compiled.Chairman != nil {
		if err := o.checkBudgetForStage(stage1); err != nil {
			return o.abortOnBudget(conversationID, roundNumber, stage1, order, emit, err)
		}
		o.logger.LogDecision(DecisionEntry{ConversationID: conversationID, RoundNumber: roundNumber, DecisionType: DecisionStageStart, Data: map[string]any{"stage": 3}})
		emit.Emit(streaming.StageUpdate(conversationID, 3))
		stage3 = o.runStage3(ctx, conversationID, roundNumber, cleanQuery, compiled, stage1, order, emit)
	}

	aggregate := aggregateRankings(stage2, labelToNode)

	totalTokens := 0
	totalCost := 0.0
	for _, r := range stage1 {
		totalTokens += r.PromptTokens + r.CompletionTokens
		totalCost += r.CostUSD
	}
	if stage3 != nil {
		totalTokens += stage3.PromptTokens + stage3.CompletionTokens
		totalCost += stage3.CostUSD
	}

	modelsUsed := map[string]bool{}
	stage1List := make([]NodeResult, 0, len(stage1))
	for _, id := range order {
		if r, ok := stage1[id]; ok {
			stage1List = append(stage1List, r)
			modelsUsed[r.ModelID] = true
		}
	}

	metadata := Metadata{
		LabelMapping:       labelToNode,
		AggregateRankings:  aggregate,
		TotalCostUSD:       totalCost,
		CacheHit:           false,
		ModelsUsed:         len(modelsUsed),
		RemainingBudgetUSD: o.cost.Remaining(),
		CacheStats:         o.respCache.Stats(),
	}

	bundle := CompletedBundle{
		Stage1:   stage1List,
		Stage2:   stage2,
		Stage3:   stage3,
		Metadata: metadata,
		CachedAt: time.Now(),
	}

	if o.queryCacheEnabled {
		o.storeQueryCache(ctx, cleanQuery, bundle)
	}

	emit.Emit(streaming.Complete(conversationID, totalTokens, totalCost))
	o.logger.LogDecision(DecisionEntry{ConversationID: conversationID, RoundNumber: roundNumber, DecisionType: DecisionExecutionComplete})

	return nil
}

// stageBudgetTokenEstimate is the rough per-call token budget used to
// gate a not-yet-started stage against the remaining budget; it mirrors
// call's own approxTokenCount headroom for a ranking-sized prompt.
const stageBudgetTokenEstimate = 1500

// checkBudgetForStage estimates the cost of one more round of calls against
// the models that produced stage1 and reports a budget_exceeded error if
// the Cost Accountant cannot proceed, per §5's mid-execution exhaustion
// rule and scenario 5.
func (o *Orchestrator) checkBudgetForStage(stage1 map[string]NodeResult) error {
	seen := make(map[string]bool, len(stage1))
	models := make([]string, 0, len(stage1))
	for _, r := range stage1 {
		if !seen[r.ModelID] {
			seen[r.ModelID] = true
			models = append(models, r.ModelID)
		}
	}
	estimate := o.cost.Estimate(models, stageBudgetTokenEstimate)
	if !o.cost.CanProceed(estimate) {
		return newExecutionError(ErrorBudgetExceeded, "budget exceeded before next stage")
	}
	return nil
}

// abortOnBudget emits a terminal error + zeroed-remainder complete frame
// for stage1's already-produced responses, per §5: "Stages 1-2 completed
// to date are not rolled back."
func (o *Orchestrator) abortOnBudget(conversationID string, roundNumber int, stage1 map[string]NodeResult, order []string, emit streaming.Emitter, err error) error {
	emit.Emit(streaming.Error(conversationID, "", err.Error()))

	totalTokens := 0
	totalCost := 0.0
	for _, id := range order {
		if r, ok := stage1[id]; ok {
			totalTokens += r.PromptTokens + r.CompletionTokens
			totalCost += r.CostUSD
		}
	}
	emit.Emit(streaming.Complete(conversationID, totalTokens, totalCost))
	o.logger.LogDecision(DecisionEntry{ConversationID: conversationID, RoundNumber: roundNumber, DecisionType: DecisionExecutionComplete, Data: map[string]any{"error": err.Error()}})
	return err
}

func (o *Orchestrator) lookupQueryCache(ctx context.Context, query string) (CompletedBundle, bool) {
	messages := []modelclient.Message{{Role: "user", Content: query}}
	cached, hit, err := o.respCache.Get(ctx, queryCacheModelID, messages)
	if err != nil || !hit {
		return CompletedBundle{}, false
	}
	var bundle CompletedBundle
	if err := json.Unmarshal([]byte(cached.Content), &bundle); err != nil {
		return CompletedBundle{}, false
	}
	return bundle, true
}

func (o *Orchestrator) storeQueryCache(ctx context.Context, query string, bundle CompletedBundle) {
	b, err := json.Marshal(bundle)
	if err != nil {
		return
	}
	messages := []modelclient.Message{{Role: "user", Content: query}}
	_ = o.respCache.Set(ctx, queryCacheModelID, messages, modelclient.Response{Content: string(b)}, o.cacheTTL)
}

// replay synthesizes the full event sequence for a query-cache hit, with
// cost zeroed and metadata.cache_hit=true, per §4.9.
func (o *Orchestrator) replay(conversationID string, bundle CompletedBundle, emit streaming.Emitter) {
	emit.Emit(streaming.StageUpdate(conversationID, 1))
	totalTokens := 0
	for _, r := range bundle.Stage1 {
		emit.Emit(streaming.NodeStateEvent(conversationID, r.NodeID, streaming.NodeActive))
		emit.Emit(streaming.Response(conversationID, r.NodeID, r.Content, r.PromptTokens, r.CompletionTokens, 0))
		emit.Emit(streaming.NodeStateEvent(conversationID, r.NodeID, streaming.NodeComplete))
		totalTokens += r.PromptTokens + r.CompletionTokens
	}

	if len(bundle.Stage2) > 0 {
		emit.Emit(streaming.StageUpdate(conversationID, 2))
		for _, r := range bundle.Stage2 {
			emit.Emit(streaming.Ranking(conversationID, r.NodeID, r.Rankings, r.Reasoning))
		}
	}

	if bundle.Stage3 != nil {
		emit.Emit(streaming.StageUpdate(conversationID, 3))
		emit.Emit(streaming.NodeStateEvent(conversationID, bundle.Stage3.NodeID, streaming.NodeActive))
		emit.Emit(streaming.FinalAnswer(conversationID, bundle.Stage3.Content, bundle.Stage3.PromptTokens, bundle.Stage3.CompletionTokens, 0))
		emit.Emit(streaming.NodeStateEvent(conversationID, bundle.Stage3.NodeID, streaming.NodeComplete))
		totalTokens += bundle.Stage3.PromptTokens + bundle.Stage3.CompletionTokens
	}

	emit.Emit(streaming.Complete(conversationID, totalTokens, 0))
}
