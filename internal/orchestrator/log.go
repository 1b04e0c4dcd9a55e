package orchestrator

import "time"

// Decision types an execution appends to the decision tree, append-only.
const (
	DecisionStageStart        = "stage_start"
	DecisionResponseGenerated = "response_generated"
	DecisionRankingProvided   = "ranking_provided"
	DecisionFinalSynthesis    = "final_synthesis"
	DecisionExecutionComplete = "execution_complete"
)

// ExecutionLogEntry is one append-only row of the persisted execution log.
type ExecutionLogEntry struct {
	ConversationID string
	RoundNumber    int
	Stage          int
	NodeID           string
	RoleID           string
	ModelID          string
	InputFragment    string
	OutputFragment   string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	Duration         time.Duration
}

// DecisionEntry is one append-only row of the persisted decision tree.
type DecisionEntry struct {
	ConversationID string
	RoundNumber    int
	ParentNodeID   string
	NodeID         string
	DecisionType   string
	Data           map[string]any
}

// Logger receives execution and decision records as the orchestrator
// produces them. internal/db implements this against the persisted
// execution_logs and decision_tree tables; tests may use NopLogger.
type Logger interface {
	LogExecution(ExecutionLogEntry)
	LogDecision(DecisionEntry)
}

// NopLogger discards every record.
type NopLogger struct{}

func (NopLogger) LogExecution(ExecutionLogEntry) {}
func (NopLogger) LogDecision(DecisionEntry)      {}
