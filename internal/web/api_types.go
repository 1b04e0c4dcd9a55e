package web

// APIRole is the wire shape of a built-in or custom role.
type APIRole struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Custom      bool   `json:"custom"`
}

// APIPattern is the wire shape of a reasoning pattern.
type APIPattern struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Temperature float64 `json:"temperature"`
}

// APIModel is the wire shape of a catalog model entry.
type APIModel struct {
	ID              string  `json:"id"`
	Provider        string  `json:"provider"`
	Tier            string  `json:"tier"`
	ContextLength   int     `json:"contextLength"`
	InputPricePer1M float64 `json:"inputPricePer1M"`
	OutputPricePer1M float64 `json:"outputPricePer1M"`
	Favourite       bool    `json:"favourite"`
}

// APIModelsResponse wraps a models listing with its staleness metadata.
type APIModelsResponse struct {
	Models  []APIModel `json:"models"`
	CachedAt string    `json:"cachedAt,omitempty"`
	Stale    bool      `json:"stale"`
}

// APIConversationSummary is one row of the /api/history listing.
type APIConversationSummary struct {
	ID          string  `json:"id"`
	Query       string  `json:"query"`
	TotalTokens int     `json:"totalTokens"`
	TotalCost   float64 `json:"totalCost"`
	CreatedAt   string  `json:"createdAt"`
}

// APIHistoryResponse wraps a /api/history listing.
type APIHistoryResponse struct {
	Conversations []APIConversationSummary `json:"conversations"`
}

// APIExecutionLog is the wire shape of one execution_logs row.
type APIExecutionLog struct {
	ID            int64   `json:"id"`
	RoundNumber   int     `json:"roundNumber"`
	Stage         int     `json:"stage"`
	NodeID        string  `json:"nodeId"`
	Model         string  `json:"model,omitempty"`
	Role          string  `json:"role,omitempty"`
	OutputContent string  `json:"outputContent,omitempty"`
	TokensUsed    int     `json:"tokensUsed"`
	Cost          float64 `json:"cost"`
	DurationMs    int64   `json:"durationMs"`
	Timestamp     string  `json:"timestamp"`
}

// APILogsResponse wraps a /api/logs/{conv} listing.
type APILogsResponse struct {
	ConversationID string            `json:"conversationId"`
	Logs           []APIExecutionLog `json:"logs"`
}

// APIDecisionEntry is the wire shape of one decision_tree row.
type APIDecisionEntry struct {
	ID           int64  `json:"id"`
	RoundNumber  int    `json:"roundNumber"`
	ParentNodeID string `json:"parentNodeId,omitempty"`
	NodeID       string `json:"nodeId"`
	DecisionType string `json:"decisionType"`
	DecisionData string `json:"decisionData,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// APIDecisionTreeResponse wraps a /api/logs/{conv}/decision-tree listing.
type APIDecisionTreeResponse struct {
	ConversationID string             `json:"conversationId"`
	Entries        []APIDecisionEntry `json:"entries"`
}
