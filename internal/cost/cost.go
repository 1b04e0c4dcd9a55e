// Package cost implements the Cost Accountant: a budget ceiling, running
// spend, per-model rollup, and call-history vector shared across a single
// execution's Resilience Layer calls. It also implements the companion
// complexity classifier that maps a query to a model tier.
package cost

import (
	"sync"
	"time"

	"github.com/teemulinna/council/internal/catalog"
)

// defaultFallbackPricePer1K is used when a model is absent from the
// catalog price table; the rollup splits it 30/70 input/output.
const defaultFallbackPricePer1K = 0.001

// Record is one completed call's actual cost breakdown.
type Record struct {
	Model         string
	InputTokens   int
	OutputTokens  int
	InputCostUSD  float64
	OutputCostUSD float64
	TotalCostUSD  float64
	RecordedAt    time.Time
}

// ModelRollup accumulates usage for a single model across Record calls.
type ModelRollup struct {
	Calls        int
	InputTokens  int
	OutputTokens int
	TotalCostUSD float64
}

// Summary reports the accountant's current state.
type Summary struct {
	SpendUSD       float64
	CeilingUSD     float64
	RemainingUSD   float64
	BudgetUsedPct  float64
	CallCount      int
	ModelUsage     map[string]ModelRollup
	AvgCostPerCall float64
}

// Accountant is the shared Cost Accountant for one execution. All methods
// are safe for concurrent use; the spec requires mutations be serialized
// one transaction per Record.
type Accountant struct {
	mu       sync.Mutex
	ceiling  float64
	spend    float64
	history  []Record
	usage    map[string]ModelRollup
}

// New creates an Accountant with the given budget ceiling in USD.
func New(ceilingUSD float64) *Accountant {
	return &Accountant{
		ceiling: ceilingUSD,
		usage:   make(map[string]ModelRollup),
	}
}

// priceFor returns (inputPer1M, outputPer1M) for model, falling back to the
// conservative legacy rate split 30/70 when the model is unknown.
func priceFor(model string) (inputPer1M, outputPer1M float64) {
	if info, ok := catalog.ModelByID(model); ok {
		return info.InputPricePer1M, info.OutputPricePer1M
	}
	// defaultFallbackPricePer1K is per 1K tokens; convert to an equivalent
	// per-1M rate split 30/70 input/output to match Record's accounting.
	perMillion := defaultFallbackPricePer1K * 1000
	return perMillion * 0.3, perMillion * 0.7
}

// Estimate returns a USD estimate for querying models with approxTokens
// tokens each, using the average of input and output price per 1K tokens.
func (a *Accountant) Estimate(models []string, approxTokens int) float64 {
	var total float64
	for _, m := range models {
		inPer1M, outPer1M := priceFor(m)
		avgPer1K := (inPer1M + outPer1M) / 2 / 1000
		total += avgPer1K * float64(approxTokens) / 1000
	}
	return total
}

// CanProceed reports whether spending an additional estimateUSD would stay
// within the ceiling.
func (a *Accountant) CanProceed(estimateUSD float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spend+estimateUSD <= a.ceiling
}

// RecordUsage computes actual cost from the model's per-1M-token prices,
// advances spend, and appends to history and the per-model rollup.
func (a *Accountant) RecordUsage(model string, inputTokens, outputTokens int) Record {
	inPer1M, outPer1M := priceFor(model)
	inputCost := float64(inputTokens) / 1_000_000 * inPer1M
	outputCost := float64(outputTokens) / 1_000_000 * outPer1M
	rec := Record{
		Model:         model,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		InputCostUSD:  inputCost,
		OutputCostUSD: outputCost,
		TotalCostUSD:  inputCost + outputCost,
		RecordedAt:    time.Now(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.spend += rec.TotalCostUSD
	a.history = append(a.history, rec)

	roll := a.usage[model]
	roll.Calls++
	roll.InputTokens += inputTokens
	roll.OutputTokens += outputTokens
	roll.TotalCostUSD += rec.TotalCostUSD
	a.usage[model] = roll

	return rec
}

// Remaining returns the unspent portion of the ceiling, floored at zero.
func (a *Accountant) Remaining() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.ceiling - a.spend
	if r < 0 {
		return 0
	}
	return r
}

// Summarize returns a snapshot of the accountant's current state.
func (a *Accountant) Summarize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	usage := make(map[string]ModelRollup, len(a.usage))
	for k, v := range a.usage {
		usage[k] = v
	}

	var pct float64
	if a.ceiling > 0 {
		pct = a.spend / a.ceiling * 100
	}
	var avg float64
	if len(a.history) > 0 {
		avg = a.spend / float64(len(a.history))
	}
	remaining := a.ceiling - a.spend
	if remaining < 0 {
		remaining = 0
	}

	return Summary{
		SpendUSD:       a.spend,
		CeilingUSD:     a.ceiling,
		RemainingUSD:   remaining,
		BudgetUsedPct:  pct,
		CallCount:      len(a.history),
		ModelUsage:     usage,
		AvgCostPerCall: avg,
	}
}

// Reset clears spend, history, and rollups for a fresh conversation.
func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spend = 0
	a.history = nil
	a.usage = make(map[string]ModelRollup)
}
