package council

import "github.com/jordanhubbard/councilhub/internal/router"

// Stage1Entry is one council member's answer to the user's question.
type Stage1Entry struct {
	Model    string       `json:"model"`
	Response string       `json:"response"`
	Usage    router.Usage `json:"usage"`
	Provider string       `json:"provider"`
}

// Stage2Entry is one ranker's evaluation of the anonymized answers.
type Stage2Entry struct {
	Model         string       `json:"model"`
	Ranking       string       `json:"ranking"`
	ParsedRanking []string     `json:"parsed_ranking"`
	Usage         router.Usage `json:"usage"`
	Provider      string       `json:"provider"`
}

// Stage3Result is the chairman's synthesis.
type Stage3Result struct {
	Model    string       `json:"model"`
	Response string       `json:"response"`
	Usage    router.Usage `json:"usage"`
	Provider string       `json:"provider"`
}

// AggregateEntry is one model's aggregate standing across all rankings.
type AggregateEntry struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// Metadata carries the deliberation bookkeeping surfaced to clients. The
// label map is published here and nowhere else; prompts only ever see labels.
type Metadata struct {
	LabelToModel      map[string]string `json:"label_to_model"`
	AggregateRankings []AggregateEntry  `json:"aggregate_rankings"`
	FinalOnly         bool              `json:"final_only"`
}

// Timing records per-stage wall-clock durations in milliseconds.
type Timing struct {
	Stage1Ms float64 `json:"stage1_ms"`
	Stage2Ms float64 `json:"stage2_ms"`
	Stage3Ms float64 `json:"stage3_ms"`
	TotalMs  float64 `json:"total_ms"`
}

// ConfigEcho reports which models actually deliberated.
type ConfigEcho struct {
	CouncilModels []string `json:"council_models"`
	ChairmanModel string   `json:"chairman_model"`
}

// Result is a complete deliberation.
type Result struct {
	Stage1   []Stage1Entry `json:"stage1"`
	Stage2   []Stage2Entry `json:"stage2"`
	Stage3   Stage3Result  `json:"stage3"`
	Metadata Metadata      `json:"metadata"`
	Timing   Timing        `json:"timing"`
	Config   ConfigEcho    `json:"config"`
}

type labeledResponse struct {
	Label    string
	Response string
}
