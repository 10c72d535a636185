package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"deepscribe/internal/telemetry"
)

// Report is an assembled document ready for output.
type Report struct {
	Title    string
	Document string
	Filename string
}

// ReportInput is everything the assembler needs to build a document.
type ReportInput struct {
	Query    string
	Topics   []string
	Sections map[string]SynthesisResult
	Sources  []Source
	Legend   bool
}

// ReportAssembler turns synthesized sections into a final markdown document.
type ReportAssembler interface {
	Assemble(ctx context.Context, in ReportInput) (Report, error)
}

// RunOptions are the per-run knobs, validated before a run starts.
type RunOptions struct {
	Query         string
	Detail        DetailLevel
	Breadth       int
	MaxExpansions int
	MaxWorkers    int
	Legend        bool
}

// Validate checks the option ranges shared by the CLI and HTTP surfaces.
func (o RunOptions) Validate() error {
	if o.Query == "" {
		return fmt.Errorf("query is required")
	}
	if o.Breadth < 1 || o.Breadth > 10 {
		return fmt.Errorf("breadth must be between 1 and 10, got %d", o.Breadth)
	}
	if o.MaxExpansions < 0 || o.MaxExpansions > 5 {
		return fmt.Errorf("max expansions must be between 0 and 5, got %d", o.MaxExpansions)
	}
	if o.MaxWorkers < 1 || o.MaxWorkers > 10 {
		return fmt.Errorf("max workers must be between 1 and 10, got %d", o.MaxWorkers)
	}
	switch o.Detail {
	case DetailLow, DetailMedium, DetailHigh:
	default:
		return fmt.Errorf("detail must be low, medium or high, got %q", o.Detail)
	}
	return nil
}

// Engine runs the full pipeline: plan, iterative search, parallel synthesis,
// assembly. Planning failures abort the run; everything downstream degrades
// per the stage's own policy.
type Engine struct {
	planner     *Planner
	controller  *SearchController
	coordinator *Coordinator
	assembler   ReportAssembler
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
	tracer      trace.Tracer
}

// New wires an engine from its stages. telemetry may be nil.
func New(planner *Planner, controller *SearchController, coordinator *Coordinator, assembler ReportAssembler, tel *telemetry.Telemetry, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	if tel != nil {
		controller.SetObserver(tel)
	}
	return &Engine{
		planner:     planner,
		controller:  controller,
		coordinator: coordinator,
		assembler:   assembler,
		telemetry:   tel,
		logger:      logger,
		tracer:      otel.Tracer("deepscribe/engine"),
	}
}

// Run executes one research run end to end and returns the assembled result.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if err := opts.Validate(); err != nil {
		return RunResult{}, err
	}

	runID := uuid.New().String()
	started := time.Now()

	ctx, span := e.tracer.Start(ctx, "engine.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.detail", string(opts.Detail)),
			attribute.Int("run.breadth", opts.Breadth),
		))
	defer span.End()

	e.logger.Printf("run %s: %q (detail=%s breadth=%d expansions=%d workers=%d)",
		runID, opts.Query, opts.Detail, opts.Breadth, opts.MaxExpansions, opts.MaxWorkers)

	state := NewResearchState(runID, opts.Query)
	state.Detail = opts.Detail
	state.Breadth = opts.Breadth
	state.MaxExpansions = opts.MaxExpansions
	state.MaxWorkers = opts.MaxWorkers

	result, err := e.run(ctx, state, opts)
	elapsed := time.Since(started)
	if e.telemetry != nil {
		e.telemetry.RecordRun(elapsed, len(result.Sources), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunResult{}, err
	}
	result.ProcessingTime = elapsed
	e.logger.Printf("run %s: done in %s, %d topics, %d sources", runID, elapsed.Round(time.Millisecond), len(result.Topics), len(result.Sources))
	return result, nil
}

func (e *Engine) run(ctx context.Context, state ResearchState, opts RunOptions) (RunResult, error) {
	var err error

	planCtx, planSpan := e.tracer.Start(ctx, "engine.plan")
	state, err = e.planner.Plan(planCtx, state)
	if err != nil {
		planSpan.RecordError(err)
		planSpan.SetStatus(codes.Error, err.Error())
		planSpan.End()
		return RunResult{}, err
	}
	planSpan.SetAttributes(attribute.Int("plan.topics", len(state.Topics)))
	planSpan.End()

	searchCtx, searchSpan := e.tracer.Start(ctx, "engine.search")
	state, err = e.controller.Run(searchCtx, state)
	if err != nil {
		searchSpan.RecordError(err)
		searchSpan.SetStatus(codes.Error, err.Error())
		searchSpan.End()
		return RunResult{}, err
	}
	searchSpan.SetAttributes(attribute.Int("search.questions", len(state.SearchResultsByQuestion)))
	searchSpan.End()

	synthCtx, synthSpan := e.tracer.Start(ctx, "engine.synthesize")
	state.SectionsByTopic = e.coordinator.SynthesizeAll(synthCtx, state)
	state.AllDiscoveredSources = state.Registry.Sources()
	synthSpan.SetAttributes(attribute.Int("synthesize.sources", len(state.AllDiscoveredSources)))
	synthSpan.End()

	asmCtx, asmSpan := e.tracer.Start(ctx, "engine.assemble")
	report, err := e.assembler.Assemble(asmCtx, ReportInput{
		Query:    state.UserQuery,
		Topics:   state.Topics,
		Sections: state.SectionsByTopic,
		Sources:  state.AllDiscoveredSources,
		Legend:   opts.Legend,
	})
	if err != nil {
		asmSpan.RecordError(err)
		asmSpan.SetStatus(codes.Error, err.Error())
		asmSpan.End()
		return RunResult{}, err
	}
	asmSpan.End()

	sections := make(map[string]string, len(state.SectionsByTopic))
	for topic, res := range state.SectionsByTopic {
		sections[topic] = res.Content
	}
	return RunResult{
		RunID:           state.RunID,
		Query:           state.UserQuery,
		Title:           report.Title,
		Report:          report.Document,
		Filename:        report.Filename,
		Topics:          state.Topics,
		Sources:         state.AllDiscoveredSources,
		SectionsByTopic: sections,
		CreatedAt:       state.StartedAt,
	}, nil
}
