package council

import (
	"fmt"
	"strings"
)

// Markdown renders a deliberation as a single Markdown document: the three
// stages, the aggregate ranking table, and the chairman's answer.
func (r *Result) Markdown(userQuery string) string {
	var b strings.Builder

	b.WriteString("# Council Deliberation\n\n")
	fmt.Fprintf(&b, "**Question:** %s\n\n", userQuery)

	b.WriteString("## Stage 1 — Individual Responses\n\n")
	for _, entry := range r.Stage1 {
		fmt.Fprintf(&b, "### %s (%s)\n\n%s\n\n", entry.Model, entry.Provider, entry.Response)
	}

	if len(r.Stage2) > 0 {
		b.WriteString("## Stage 2 — Peer Rankings\n\n")
		for _, entry := range r.Stage2 {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", entry.Model, entry.Ranking)
		}

		if len(r.Metadata.AggregateRankings) > 0 {
			b.WriteString("### Aggregate Ranking\n\n")
			b.WriteString("| Rank | Model | Average Position | Votes |\n")
			b.WriteString("|------|-------|------------------|-------|\n")
			for i, agg := range r.Metadata.AggregateRankings {
				fmt.Fprintf(&b, "| %d | %s | %.2f | %d |\n", i+1, agg.Model, agg.AverageRank, agg.RankingsCount)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Stage 3 — Chairman Synthesis\n\n")
	fmt.Fprintf(&b, "**Chairman:** %s (%s)\n\n%s\n", r.Stage3.Model, r.Stage3.Provider, r.Stage3.Response)

	return b.String()
}
