package web

import (
	"context"
	"encoding/json"
	"log"

	"github.com/teemulinna/council/internal/db"
	"github.com/teemulinna/council/internal/streaming"
)

// persistingExecutor wraps a streaming.Executor, recording a conversations
// row before delegating and filling in its completion summary once the
// underlying execution returns. It never alters the event sequence an
// Emitter sees: interception is purely a side channel for persistence.
type persistingExecutor struct {
	inner streaming.Executor
	db    *db.DB
}

func newPersistingExecutor(inner streaming.Executor, database *db.DB) *persistingExecutor {
	return &persistingExecutor{inner: inner, db: database}
}

func (p *persistingExecutor) Execute(ctx context.Context, conversationID, query string, cfg streaming.CouncilConfig, emit streaming.Emitter) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := p.db.InsertConversation(&db.Conversation{ID: conversationID, Query: query, Config: string(configJSON)}); err != nil {
		log.Printf("persistingExecutor: insert conversation: %v", err)
	}

	acc := &completionAccumulator{}
	execErr := p.inner.Execute(ctx, conversationID, query, cfg, streaming.EmitterFunc(func(e streaming.Event) {
		acc.observe(e)
		emit.Emit(e)
	}))

	responsesJSON, err := json.Marshal(acc.responses)
	if err != nil {
		log.Printf("persistingExecutor: marshal responses: %v", err)
		responsesJSON = []byte("[]")
	}
	if err := p.db.UpdateConversationResult(conversationID, string(responsesJSON), acc.finalAnswer, acc.totalTokens, acc.totalCostUSD); err != nil {
		log.Printf("persistingExecutor: update conversation result: %v", err)
	}

	return execErr
}

// completionAccumulator gathers the summary fields a conversations row
// needs by observing the event stream as it passes through, since the
// Stage Orchestrator's Execute signature returns only an error.
type completionAccumulator struct {
	responses    []accumulatedResponse
	finalAnswer  string
	totalTokens  int
	totalCostUSD float64
}

type accumulatedResponse struct {
	NodeID  string `json:"nodeId"`
	Content string `json:"content"`
}

func (a *completionAccumulator) observe(e streaming.Event) {
	switch e.Type {
	case "response":
		a.responses = append(a.responses, accumulatedResponse{NodeID: e.NodeID, Content: e.Content})
	case "final_answer":
		a.finalAnswer = e.Content
	case "complete":
		a.totalTokens = e.TotalTokens
		a.totalCostUSD = e.TotalCostUSD
	}
}
