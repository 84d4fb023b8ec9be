package council

import (
	"math"
	"sort"
)

// CalculateAggregate computes each model's mean position across all parsed
// rankings. Positions start at 1; labels outside the label map are skipped.
// The result is sorted best-first: ascending mean, ties broken by greater
// vote count, then by model id.
func CalculateAggregate(stage2 []Stage2Entry, labelToModel map[string]string) []AggregateEntry {
	positions := make(map[string][]int)

	for _, ranking := range stage2 {
		for i, label := range ranking.ParsedRanking {
			model, ok := labelToModel[label]
			if !ok {
				continue
			}
			positions[model] = append(positions[model], i+1)
		}
	}

	aggregate := make([]AggregateEntry, 0, len(positions))
	for model, pos := range positions {
		sum := 0
		for _, p := range pos {
			sum += p
		}
		avg := float64(sum) / float64(len(pos))
		aggregate = append(aggregate, AggregateEntry{
			Model:         model,
			AverageRank:   math.Round(avg*100) / 100,
			RankingsCount: len(pos),
		})
	}

	sort.Slice(aggregate, func(i, j int) bool {
		a, b := aggregate[i], aggregate[j]
		if a.AverageRank != b.AverageRank {
			return a.AverageRank < b.AverageRank
		}
		if a.RankingsCount != b.RankingsCount {
			return a.RankingsCount > b.RankingsCount
		}
		return a.Model < b.Model
	})

	return aggregate
}
