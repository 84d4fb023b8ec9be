package council

import (
	"regexp"
	"strings"
)

const rankingMarker = "FINAL RANKING:"

var (
	numberedLabelRe = regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
	labelRe         = regexp.MustCompile(`Response [A-Z]`)
)

// ParseRanking extracts the ranked response labels from a ranker's full text.
//
// Three passes, in order:
//  1. numbered entries ("1. Response A") after the FINAL RANKING: marker
//  2. bare "Response X" mentions after the marker
//  3. bare "Response X" mentions anywhere, when the marker is absent
//
// Matches are kept exactly as found: a ranking that repeats a label, or
// lists fewer labels than there are responses, passes through unchanged.
func ParseRanking(text string) []string {
	if idx := strings.Index(text, rankingMarker); idx >= 0 {
		section := text[idx+len(rankingMarker):]

		if numbered := numberedLabelRe.FindAllString(section, -1); len(numbered) > 0 {
			labels := make([]string, 0, len(numbered))
			for _, m := range numbered {
				labels = append(labels, labelRe.FindString(m))
			}
			return labels
		}

		return labelRe.FindAllString(section, -1)
	}

	return labelRe.FindAllString(text, -1)
}
