package db

import (
	"encoding/json"
	"log"

	"github.com/teemulinna/council/internal/orchestrator"
	"github.com/teemulinna/council/internal/safety"
)

const maxLoggedContentChars = 4000

// StoreLogger implements orchestrator.Logger against the execution_logs and
// decision_tree tables. Stored content is PII-redacted per §4.10: logs and
// decision-tree payloads carry the redacted form, never the raw text that
// was sent to a model provider.
type StoreLogger struct {
	db *DB
}

// NewStoreLogger returns a Logger persisting to db.
func NewStoreLogger(db *DB) *StoreLogger {
	return &StoreLogger{db: db}
}

var _ orchestrator.Logger = (*StoreLogger)(nil)

func (l *StoreLogger) LogExecution(e orchestrator.ExecutionLogEntry) {
	input := safety.RedactPII(e.InputFragment, maxLoggedContentChars)
	output := safety.RedactPII(e.OutputFragment, maxLoggedContentChars)
	role := e.RoleID
	model := e.ModelID
	_, err := l.db.InsertExecutionLog(&ExecutionLog{
		ConversationID: e.ConversationID,
		RoundNumber:    e.RoundNumber,
		Stage:          e.Stage,
		NodeID:         e.NodeID,
		NodeName:       &e.NodeID,
		Model:          &model,
		Role:           &role,
		InputContent:   &input,
		OutputContent:  &output,
		TokensUsed:     e.PromptTokens + e.CompletionTokens,
		Cost:           e.CostUSD,
		DurationMs:     e.Duration.Milliseconds(),
	})
	if err != nil {
		log.Printf("db: persist execution log for conversation %s node %s: %v", e.ConversationID, e.NodeID, err)
	}
}

func (l *StoreLogger) LogDecision(e orchestrator.DecisionEntry) {
	var dataJSON *string
	if e.Data != nil {
		redactedData := make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			if s, ok := v.(string); ok {
				redactedData[k] = safety.RedactPII(s, maxLoggedContentChars)
			} else {
				redactedData[k] = v
			}
		}
		if b, err := json.Marshal(redactedData); err == nil {
			s := string(b)
			dataJSON = &s
		}
	}

	var parentNodeID *string
	if e.ParentNodeID != "" {
		parentNodeID = &e.ParentNodeID
	}

	_, err := l.db.InsertDecisionTreeEntry(&DecisionTreeEntry{
		ConversationID: e.ConversationID,
		RoundNumber:    e.RoundNumber,
		ParentNodeID:   parentNodeID,
		NodeID:         e.NodeID,
		DecisionType:   e.DecisionType,
		DecisionData:   dataJSON,
	})
	if err != nil {
		log.Printf("db: persist decision entry for conversation %s node %s: %v", e.ConversationID, e.NodeID, err)
	}
}
