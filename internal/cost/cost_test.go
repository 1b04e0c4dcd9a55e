package cost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanProceedRespectsCeiling(t *testing.T) {
	t.Parallel()

	a := New(1.00)
	require.True(t, a.CanProceed(0.50))
	a.RecordUsage("claude-opus-4-5", 1_000_000, 0) // $15
	require.False(t, a.CanProceed(0.01))
}

func TestRecordUsageAdvancesSpendMonotonically(t *testing.T) {
	t.Parallel()

	a := New(100)
	before := a.Summarize().SpendUSD
	a.RecordUsage("gpt-4o-mini", 1000, 1000)
	after := a.Summarize().SpendUSD
	require.Greater(t, after, before)

	rollup := a.Summarize().ModelUsage["gpt-4o-mini"]
	require.Equal(t, 1, rollup.Calls)
	require.Equal(t, 1000, rollup.InputTokens)
	require.Equal(t, 1000, rollup.OutputTokens)
}

func TestRecordUsageUnknownModelFallsBackToDefaultPrice(t *testing.T) {
	t.Parallel()

	a := New(100)
	rec := a.RecordUsage("totally-unknown-model", 1000, 1000)
	require.Greater(t, rec.TotalCostUSD, 0.0)
	// Legacy fallback is $0.001/1K tokens split 30/70, so input cost should
	// be smaller than output cost for equal token counts.
	require.Less(t, rec.InputCostUSD, rec.OutputCostUSD)
}

func TestRemainingNeverGoesNegative(t *testing.T) {
	t.Parallel()

	a := New(0.01)
	a.RecordUsage("claude-opus-4-5", 1_000_000, 1_000_000)
	require.Equal(t, 0.0, a.Remaining())
}

func TestResetClearsState(t *testing.T) {
	t.Parallel()

	a := New(10)
	a.RecordUsage("gpt-4o", 500, 500)
	require.NotZero(t, a.Summarize().SpendUSD)

	a.Reset()
	s := a.Summarize()
	require.Zero(t, s.SpendUSD)
	require.Zero(t, s.CallCount)
	require.Empty(t, s.ModelUsage)
}

func TestAssessComplexityPrioritizesComplexOverSimple(t *testing.T) {
	t.Parallel()

	require.Equal(t, ComplexitySimple, AssessComplexity("What is the capital of France?"))
	require.Equal(t, ComplexityComplex, AssessComplexity("Please evaluate what is wrong with this design"))
	require.Equal(t, ComplexityMedium, AssessComplexity("Tell me a story about a dragon"))
}

func TestSelectTierDowngradesUnderTightBudget(t *testing.T) {
	t.Parallel()

	tier := SelectTier("please design a new architecture", 0.05, 1.0, 0.1, "")
	require.Equal(t, TierBudget, tier)
}

func TestSelectTierDowngradesPremiumUnderStandardFloor(t *testing.T) {
	t.Parallel()

	tier := SelectTier("please design a new architecture", 0.5, 1.0, 0.1, "")
	require.Equal(t, TierStandard, tier)
}

func TestSelectTierForceTierWins(t *testing.T) {
	t.Parallel()

	tier := SelectTier("what is this", 100, 1.0, 0.1, TierPremium)
	require.Equal(t, TierPremium, tier)
}
