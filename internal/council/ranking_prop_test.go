package council

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var genLabel = gen.OneConstOf("Response A", "Response B", "Response C", "Response D")

func TestParseRankingProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("numbered list round-trips exactly, repeats included", prop.ForAll(
		func(labels []string) bool {
			var b strings.Builder
			b.WriteString("some evaluation text\n\nFINAL RANKING:\n")
			for i, l := range labels {
				fmt.Fprintf(&b, "%d. %s\n", i+1, l)
			}

			parsed := ParseRanking(b.String())
			if len(parsed) != len(labels) {
				return false
			}
			for i, l := range parsed {
				if l != labels[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genLabel),
	))

	properties.Property("every parsed label appears in the input", prop.ForAll(
		func(labels []string) bool {
			var b strings.Builder
			b.WriteString("FINAL RANKING:\n")
			for i, l := range labels {
				fmt.Fprintf(&b, "%d. %s\n", i+1, l)
			}

			input := make(map[string]bool, len(labels))
			for _, l := range labels {
				input[l] = true
			}
			for _, l := range ParseRanking(b.String()) {
				if !input[l] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genLabel),
	))

	properties.TestingRun(t)
}

func TestCalculateAggregateProperties(t *testing.T) {
	labelMap := map[string]string{
		"Response A": "model-a",
		"Response B": "model-b",
		"Response C": "model-c",
		"Response D": "model-d",
	}

	properties := gopter.NewProperties(nil)

	properties.Property("aggregate is sorted best-first by average rank", prop.ForAll(
		func(rankings [][]string) bool {
			stage2 := make([]Stage2Entry, len(rankings))
			for i, r := range rankings {
				stage2[i] = Stage2Entry{ParsedRanking: r}
			}

			agg := CalculateAggregate(stage2, labelMap)
			for i := 1; i < len(agg); i++ {
				if agg[i-1].AverageRank > agg[i].AverageRank {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.SliceOf(genLabel)),
	))

	properties.Property("vote counts equal total label occurrences", prop.ForAll(
		func(rankings [][]string) bool {
			occurrences := make(map[string]int)
			stage2 := make([]Stage2Entry, len(rankings))
			for i, r := range rankings {
				stage2[i] = Stage2Entry{ParsedRanking: r}
				for _, l := range r {
					occurrences[labelMap[l]]++
				}
			}

			for _, e := range CalculateAggregate(stage2, labelMap) {
				if e.RankingsCount != occurrences[e.Model] {
					return false
				}
				if e.AverageRank < 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.SliceOf(genLabel)),
	))

	properties.TestingRun(t)
}
