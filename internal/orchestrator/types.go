package orchestrator

import (
	"time"

	"github.com/teemulinna/council/internal/cache"
	"github.com/teemulinna/council/internal/ranking"
)

// NodeResult is one participant node's validated Stage 1 response.
type NodeResult struct {
	NodeID           string
	ModelID          string
	Content          string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	CacheHit         bool
}

// FailureResult is one participant node's Stage 1 failure.
type FailureResult struct {
	NodeID string
	Reason string
}

// RankingResult is one evaluator node's Stage 2 output.
type RankingResult struct {
	NodeID    string
	Rankings  []string
	Reasoning string
}

// FinalResult is the Stage 3 chairman synthesis output.
type FinalResult struct {
	NodeID           string
	Content          string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Metadata is the completion-time summary assembled alongside the final
// result, per §4.7's Completion paragraph.
type Metadata struct {
	LabelMapping       map[string]string        `json:"labelMapping"`
	AggregateRankings  []ranking.AggregateEntry  `json:"aggregateRankings"`
	TotalCostUSD       float64                   `json:"totalCostUsd"`
	CacheHit           bool                      `json:"cacheHit"`
	ModelsUsed         int                       `json:"modelsUsed"`
	RemainingBudgetUSD float64                   `json:"remainingBudgetUsd"`
	CacheStats         cache.Stats               `json:"cacheStats"`
}

// CompletedBundle is the full, replayable result of one execution; it is
// what the Query-Result Cache stores and what a cache hit replays as
// synthesized events.
type CompletedBundle struct {
	Stage1   []NodeResult    `json:"stage1"`
	Stage2   []RankingResult `json:"stage2"`
	Stage3   *FinalResult    `json:"stage3,omitempty"`
	Metadata Metadata        `json:"metadata"`
	CachedAt time.Time       `json:"cachedAt"`
}
