package ranking

import "sort"

// EvaluatorRanking is one evaluator's raw ranking text plus its full-text
// identity, used for per-evaluator audit.
type EvaluatorRanking struct {
	EvaluatorModel string
	RankingText    string
}

// AggregateEntry is one participant's aggregate standing across all
// evaluators that ranked it.
type AggregateEntry struct {
	Model         string
	AverageRank   float64
	RankingsCount int
}

// Aggregate computes, for each model in labelToModel that appears in at
// least one parsed ranking, its average rank position across the evaluator
// rankings that place it; models never ranked are omitted. Sorted best (lowest average
// rank) to worst. Ties break by higher rankings count (more votes wins),
// then by model name for determinism.
func Aggregate(evaluations []EvaluatorRanking, labelToModel map[string]string) []AggregateEntry {
	positions := make(map[string][]int)

	for _, ev := range evaluations {
		parsed := Parse(ev.RankingText)
		for i, label := range parsed {
			model, ok := labelToModel[label]
			if !ok {
				continue
			}
			positions[model] = append(positions[model], i+1)
		}
	}

	var entries []AggregateEntry
	for model, pos := range positions {
		if len(pos) == 0 {
			continue
		}
		sum := 0
		for _, p := range pos {
			sum += p
		}
		entries = append(entries, AggregateEntry{
			Model:         model,
			AverageRank:   float64(sum) / float64(len(pos)),
			RankingsCount: len(pos),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AverageRank != entries[j].AverageRank {
			return entries[i].AverageRank < entries[j].AverageRank
		}
		if entries[i].RankingsCount != entries[j].RankingsCount {
			return entries[i].RankingsCount > entries[j].RankingsCount
		}
		return entries[i].Model < entries[j].Model
	})

	return entries
}
