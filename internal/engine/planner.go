package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Planner expands the user query into topics and per-topic subquestions. It
// is a pass-through over the generation port: a backend failure fails the
// call, no local retry.
type Planner struct {
	llm    LLMProvider
	model  string
	logger *log.Logger
}

// NewPlanner creates a planner using model for all planning calls.
func NewPlanner(llm LLMProvider, model string, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{llm: llm, model: model, logger: logger}
}

type topicsResponse struct {
	Topics []string `json:"topics"`
}

type subquestionsResponse struct {
	Subquestions []string `json:"subquestions"`
}

// ExtractTopics breaks the query into major research topics. The count is
// steered by detail but ultimately chosen by the model.
func (p *Planner) ExtractTopics(ctx context.Context, query string, detail DetailLevel) ([]string, error) {
	var resp topicsResponse
	if err := p.llm.GenerateObject(ctx, buildTopicExtractionPrompt(query, detail), p.model, &resp); err != nil {
		return nil, PlanningError{Stage: "topic extraction", Cause: GenerationError{Op: "extract topics", Cause: err}}
	}
	topics := cleanLines(resp.Topics)
	if len(topics) == 0 {
		return nil, PlanningError{Stage: "topic extraction", Cause: fmt.Errorf("model returned no topics")}
	}
	p.logger.Printf("extracted %d topics for %q", len(topics), query)
	return topics, nil
}

// GenerateSubquestions produces searchable subquestions for one topic.
func (p *Planner) GenerateSubquestions(ctx context.Context, topic, query string, detail DetailLevel) ([]string, error) {
	var resp subquestionsResponse
	if err := p.llm.GenerateObject(ctx, buildSubquestionPrompt(topic, query, detail), p.model, &resp); err != nil {
		return nil, PlanningError{Stage: "subquestion generation", Cause: GenerationError{Op: "generate subquestions", Cause: err}}
	}
	subqs := cleanLines(resp.Subquestions)
	if len(subqs) == 0 {
		return nil, PlanningError{Stage: "subquestion generation", Cause: fmt.Errorf("model returned no subquestions for topic %q", topic)}
	}
	return subqs, nil
}

// Plan runs topic extraction then subquestion generation, recording every
// subquestion in the novelty guard. Any failure is fatal to the run.
func (p *Planner) Plan(ctx context.Context, state ResearchState) (ResearchState, error) {
	topics, err := p.ExtractTopics(ctx, state.UserQuery, state.Detail)
	if err != nil {
		return state, err
	}
	state.Topics = topics

	for _, topic := range topics {
		subqs, err := p.GenerateSubquestions(ctx, topic, state.UserQuery, state.Detail)
		if err != nil {
			return state, err
		}
		state.SubquestionsByTopic[topic] = subqs
		for _, q := range subqs {
			state.AskedQuestions[strings.ToLower(q)] = true
		}
		p.logger.Printf("topic %q: %d subquestions", topic, len(subqs))
	}
	return state, nil
}

func cleanLines(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
