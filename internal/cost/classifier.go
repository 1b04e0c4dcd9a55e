package cost

import (
	"strings"

	"github.com/teemulinna/council/internal/catalog"
)

// Tier is a model-selection tier.
type Tier string

const (
	TierBudget   Tier = "budget"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// simpleKeywords and complexKeywords are scanned case-insensitively over
// the raw query text. complexKeywords take priority over simpleKeywords;
// anything matching neither defaults to medium complexity, which maps to
// the standard tier.
var simpleKeywords = []string{
	"what is", "when is", "who is", "where is",
	"define", "meaning of", "capital of", "how many",
}

var complexKeywords = []string{
	"evaluate", "critique", "synthesize", "design",
	"architect", "optimize", "prove", "derive",
	"implement", "debug", "refactor",
}

// Complexity is the result of scanning a query for keyword buckets.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// AssessComplexity scans query for complexity-indicating keywords, checking
// the complex bucket before the simple bucket so e.g. "evaluate what is
// happening" classifies complex.
func AssessComplexity(query string) Complexity {
	lower := strings.ToLower(query)
	for _, kw := range complexKeywords {
		if strings.Contains(lower, kw) {
			return ComplexityComplex
		}
	}
	for _, kw := range simpleKeywords {
		if strings.Contains(lower, kw) {
			return ComplexitySimple
		}
	}
	return ComplexityMedium
}

// SelectTier maps a query and the remaining budget to a model tier. A tight
// remaining budget overrides complexity-driven selection toward cheaper
// tiers; forceTier, when non-empty, wins outright.
func SelectTier(query string, budgetRemaining float64, standardFloor, tightFloor float64, forceTier Tier) Tier {
	if forceTier != "" {
		return forceTier
	}

	var tier Tier
	switch AssessComplexity(query) {
	case ComplexitySimple:
		tier = TierBudget
	case ComplexityComplex:
		tier = TierPremium
	default:
		tier = TierStandard
	}

	if budgetRemaining < tightFloor {
		return TierBudget
	}
	if budgetRemaining < standardFloor && tier == TierPremium {
		return TierStandard
	}
	return tier
}

// SelectModels returns the ordered model-ID pool for tier from the catalog.
func SelectModels(tier Tier) []string {
	return catalog.ModelsByTier(string(tier))
}
