package orchestrator

// ErrorKind classifies an orchestrator-level failure: one that aborts the
// whole execution rather than being recovered locally inside the
// Resilience Layer, per §7's propagation rules.
type ErrorKind string

const (
	ErrorNoResponses    ErrorKind = "no_responses"
	ErrorBudgetExceeded ErrorKind = "budget_exceeded"
	ErrorInvalidConfig  ErrorKind = "invalid_council_config"
)

// ExecutionError is an orchestrator-level failure that terminates an
// execution before it reaches completion.
type ExecutionError struct {
	Kind ErrorKind
	Msg  string
}

func (e *ExecutionError) Error() string { return e.Msg }

func newExecutionError(kind ErrorKind, msg string) *ExecutionError {
	return &ExecutionError{Kind: kind, Msg: msg}
}
