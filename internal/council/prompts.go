package council

import (
	"fmt"
	"strings"
)

// rankingPrompt builds the stage-2 prompt. Responses are identified only by
// their anonymous labels; model names never appear.
func rankingPrompt(userQuery string, labeled []labeledResponse) string {
	var responses strings.Builder
	for i, lr := range labeled {
		if i > 0 {
			responses.WriteString("\n\n")
		}
		fmt.Fprintf(&responses, "%s:\n%s", lr.Label, lr.Response)
	}

	return fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, userQuery, responses.String())
}

// chairmanPrompt builds the stage-3 prompt. The rankings block is included
// only when stage 2 produced results.
func chairmanPrompt(userQuery string, stage1 []Stage1Entry, stage2 []Stage2Entry) string {
	var stage1Text strings.Builder
	for i, r := range stage1 {
		if i > 0 {
			stage1Text.WriteString("\n\n")
		}
		fmt.Fprintf(&stage1Text, "Model: %s\nResponse: %s", r.Model, r.Response)
	}

	rankedClause := ""
	stage2Text := ""
	rankingsConsideration := ""
	if len(stage2) > 0 {
		rankedClause = ", and then ranked each other's responses"

		var b strings.Builder
		b.WriteString("\n\nSTAGE 2 - Peer Rankings:\n")
		for i, r := range stage2 {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "Model: %s\nRanking: %s", r.Model, r.Ranking)
		}
		stage2Text = b.String()

		rankingsConsideration = "\n- The peer rankings and what they reveal about response quality"
	}

	return fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question%s.

Original Question: %s

STAGE 1 - Individual Responses:
%s
%s

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights%s
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`,
		rankedClause, userQuery, stage1Text.String(), stage2Text, rankingsConsideration)
}

// titlePrompt builds the conversation-title prompt for the first user message.
func titlePrompt(userQuery string) string {
	return fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)
}
