package council

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/councilhub/internal/events"
	"github.com/jordanhubbard/councilhub/internal/providers"
	"github.com/jordanhubbard/councilhub/internal/router"
)

// Sentinel stage-3 responses. A deliberation does not fail outright: when no
// member answers, or the chairman cannot synthesize, the result carries one
// of these texts as the stage-3 response and Run still returns it.
const (
	AllFailedResponse      = "All models failed to respond. Please try again."
	SynthesisErrorResponse = "Error: Unable to generate final synthesis."
)

// Dispatcher sends requests to models. Implemented by *router.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, modelID string, req router.Request) (*router.Response, error)
	FanOut(ctx context.Context, modelIDs []string, req router.Request) map[string]router.FanOutResult
}

// StageObserver receives per-deliberation metrics. Implemented in
// internal/app over the prometheus registry.
type StageObserver interface {
	ObserveStage(stage string, seconds float64)
	DeliberationDone(status string, finalOnly bool)
}

// RunOptions overrides the engine defaults for one deliberation.
type RunOptions struct {
	CouncilModels []string
	ChairmanModel string
	FinalOnly     bool

	// OnEvent, when set, is called with each stage event as the
	// deliberation progresses. Used by the SSE streaming handler.
	OnEvent func(event string, data map[string]any)
}

// Engine runs the three-stage deliberation.
type Engine struct {
	dispatcher Dispatcher
	council    []string
	chairman   string
	titleModel string
	bus        *events.Bus
	observer   StageObserver
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventBus publishes deliberation lifecycle events on the bus.
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithObserver attaches a metrics observer.
func WithObserver(obs StageObserver) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithTitleModel overrides the model used for conversation titles.
func WithTitleModel(model string) Option {
	return func(e *Engine) { e.titleModel = model }
}

// New creates an Engine with the given default council and chairman.
func New(dispatcher Dispatcher, councilModels []string, chairman string, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		dispatcher: dispatcher,
		council:    councilModels,
		chairman:   chairman,
		titleModel: "google/gemini-2.0-flash-exp",
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CouncilModels returns the default council membership.
func (e *Engine) CouncilModels() []string { return e.council }

// ChairmanModel returns the default chairman.
func (e *Engine) ChairmanModel() string { return e.chairman }

// Run executes the full deliberation: collect, rank (unless final-only),
// synthesize. Failed members are dropped at each stage. When nothing answers,
// or the chairman fails, the result carries the matching sentinel stage-3
// response; the returned error is reserved for conditions outside the
// deliberation itself.
func (e *Engine) Run(ctx context.Context, userQuery string, opts RunOptions) (*Result, error) {
	models := opts.CouncilModels
	if len(models) == 0 {
		models = e.council
	}
	chairman := opts.ChairmanModel
	if chairman == "" {
		chairman = e.chairman
	}
	emit := opts.OnEvent
	if emit == nil {
		emit = func(string, map[string]any) {}
	}

	// One correlation ID covers every provider call of this run.
	ctx = providers.WithDeliberationID(ctx, uuid.NewString())

	totalStart := time.Now()
	e.publish(events.Event{Type: events.EventDeliberationStarted, Chairman: chairman})

	// Stage 1: collect individual responses.
	emit("stage1_start", map[string]any{"models": models})
	stage1Start := time.Now()
	stage1 := e.collectResponses(ctx, models, userQuery)
	stage1Ms := msSince(stage1Start)
	e.observeStage("stage1", stage1Start)
	emit("stage1_complete", map[string]any{"results": stage1})

	if len(stage1) == 0 {
		e.deliberationDone("failed", opts.FinalOnly)
		e.publish(events.Event{Type: events.EventDeliberationFailed, Chairman: chairman})
		return &Result{
			Stage1: []Stage1Entry{},
			Stage2: []Stage2Entry{},
			Stage3: Stage3Result{Model: chairman, Response: AllFailedResponse},
			Metadata: Metadata{
				LabelToModel:      map[string]string{},
				AggregateRankings: []AggregateEntry{},
				FinalOnly:         opts.FinalOnly,
			},
			Timing: Timing{Stage1Ms: stage1Ms, TotalMs: msSince(totalStart)},
			Config: ConfigEcho{CouncilModels: models, ChairmanModel: chairman},
		}, nil
	}

	// Anonymous labels in stable input order.
	labeled := make([]labeledResponse, len(stage1))
	labelToModel := make(map[string]string, len(stage1))
	for i, r := range stage1 {
		label := fmt.Sprintf("Response %c", 'A'+i)
		labeled[i] = labeledResponse{Label: label, Response: r.Response}
		labelToModel[label] = r.Model
	}

	var stage2 []Stage2Entry
	var aggregate []AggregateEntry
	var stage2Ms float64
	if !opts.FinalOnly {
		emit("stage2_start", map[string]any{"models": models})
		stage2Start := time.Now()
		stage2 = e.collectRankings(ctx, models, userQuery, labeled)
		aggregate = CalculateAggregate(stage2, labelToModel)
		stage2Ms = msSince(stage2Start)
		e.observeStage("stage2", stage2Start)
		emit("stage2_complete", map[string]any{
			"results":            stage2,
			"label_to_model":     labelToModel,
			"aggregate_rankings": aggregate,
		})
	}

	// Stage 3: chairman synthesis.
	emit("stage3_start", map[string]any{"model": chairman})
	stage3Start := time.Now()
	stage3 := e.synthesize(ctx, chairman, userQuery, stage1, stage2)
	stage3Ms := msSince(stage3Start)
	e.observeStage("stage3", stage3Start)
	emit("stage3_complete", map[string]any{"result": stage3})

	metadata := Metadata{
		LabelToModel:      labelToModel,
		AggregateRankings: aggregate,
		FinalOnly:         opts.FinalOnly,
	}
	if opts.FinalOnly {
		metadata.LabelToModel = map[string]string{}
		metadata.AggregateRankings = []AggregateEntry{}
	}

	result := &Result{
		Stage1:   stage1,
		Stage2:   stage2,
		Stage3:   *stage3,
		Metadata: metadata,
		Timing: Timing{
			Stage1Ms: stage1Ms,
			Stage2Ms: stage2Ms,
			Stage3Ms: stage3Ms,
			TotalMs:  msSince(totalStart),
		},
		Config: ConfigEcho{CouncilModels: models, ChairmanModel: chairman},
	}

	e.deliberationDone("completed", opts.FinalOnly)
	e.publish(events.Event{
		Type:       events.EventDeliberationCompleted,
		Chairman:   chairman,
		DurationMs: result.Timing.TotalMs,
	})
	return result, nil
}

// collectResponses fans the question out to the council and keeps successes
// in stable input order.
func (e *Engine) collectResponses(ctx context.Context, models []string, userQuery string) []Stage1Entry {
	req := router.Request{Messages: []router.Message{{Role: "user", Content: userQuery}}}
	results := e.dispatcher.FanOut(ctx, models, req)

	stage1 := make([]Stage1Entry, 0, len(models))
	for _, model := range models {
		res, ok := results[model]
		if !ok || res.Err != nil || res.Response == nil {
			if ok && res.Err != nil {
				e.logger.Warn("council member failed",
					slog.String("stage", "stage1"),
					slog.String("model", model),
					slog.String("error", res.Err.Error()))
			}
			continue
		}
		stage1 = append(stage1, Stage1Entry{
			Model:    model,
			Response: res.Response.Content,
			Usage:    res.Response.Usage,
			Provider: res.Response.Provider,
		})
	}
	return stage1
}

// collectRankings asks every council member to rank the anonymized answers.
func (e *Engine) collectRankings(ctx context.Context, models []string, userQuery string, labeled []labeledResponse) []Stage2Entry {
	prompt := rankingPrompt(userQuery, labeled)
	req := router.Request{Messages: []router.Message{{Role: "user", Content: prompt}}}
	results := e.dispatcher.FanOut(ctx, models, req)

	stage2 := make([]Stage2Entry, 0, len(models))
	for _, model := range models {
		res, ok := results[model]
		if !ok || res.Err != nil || res.Response == nil {
			if ok && res.Err != nil {
				e.logger.Warn("council member failed",
					slog.String("stage", "stage2"),
					slog.String("model", model),
					slog.String("error", res.Err.Error()))
			}
			continue
		}
		stage2 = append(stage2, Stage2Entry{
			Model:         model,
			Ranking:       res.Response.Content,
			ParsedRanking: ParseRanking(res.Response.Content),
			Usage:         res.Response.Usage,
			Provider:      res.Response.Provider,
		})
	}
	return stage2
}

// synthesize asks the chairman for the final answer. A chairman failure
// degrades to a placeholder stage-3 response; the deliberation still stands.
func (e *Engine) synthesize(ctx context.Context, chairman, userQuery string, stage1 []Stage1Entry, stage2 []Stage2Entry) *Stage3Result {
	prompt := chairmanPrompt(userQuery, stage1, stage2)
	req := router.Request{Messages: []router.Message{{Role: "user", Content: prompt}}}

	resp, err := e.dispatcher.Dispatch(ctx, chairman, req)
	if err != nil {
		e.logger.Warn("chairman synthesis failed",
			slog.String("model", chairman),
			slog.String("error", err.Error()))
		return &Stage3Result{Model: chairman, Response: SynthesisErrorResponse}
	}
	return &Stage3Result{
		Model:    chairman,
		Response: resp.Content,
		Usage:    resp.Usage,
		Provider: resp.Provider,
	}
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func (e *Engine) observeStage(stage string, start time.Time) {
	if e.observer != nil {
		e.observer.ObserveStage(stage, time.Since(start).Seconds())
	}
}

func (e *Engine) deliberationDone(status string, finalOnly bool) {
	if e.observer != nil {
		e.observer.DeliberationDone(status, finalOnly)
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
