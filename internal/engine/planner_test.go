package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPlanPopulatesTopicsAndSubquestions(t *testing.T) {
	llm := scriptedLLM(
		[]string{"Solar power", "Wind power"},
		map[string][]string{
			"Solar power": {"What are current solar panel efficiencies?", "How is solar storage evolving?"},
			"Wind power":  {"Where is offshore wind growing fastest?"},
		},
	)
	p := NewPlanner(llm, "test-model", nil)

	state, err := p.Plan(context.Background(), NewResearchState("run-1", "renewable energy outlook"))
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if len(state.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(state.Topics))
	}
	if got := len(state.SubquestionsByTopic["Solar power"]); got != 2 {
		t.Fatalf("expected 2 subquestions for solar, got %d", got)
	}
	if !state.AskedQuestions[strings.ToLower("Where is offshore wind growing fastest?")] {
		t.Fatalf("subquestion missing from novelty guard")
	}
}

func TestPlanTopicExtractionFailureIsFatal(t *testing.T) {
	llm := &stubLLM{
		objectFn: func(prompt string, out interface{}) error {
			return fmt.Errorf("backend down")
		},
	}
	p := NewPlanner(llm, "test-model", nil)

	_, err := p.Plan(context.Background(), NewResearchState("run-1", "anything"))
	if err == nil {
		t.Fatal("expected planning error")
	}
	var perr PlanningError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PlanningError, got %T", err)
	}
	if perr.Stage != "topic extraction" {
		t.Fatalf("expected topic extraction stage, got %q", perr.Stage)
	}
}

func TestPlanRejectsEmptyTopicList(t *testing.T) {
	llm := scriptedLLM(nil, nil)
	p := NewPlanner(llm, "test-model", nil)

	_, err := p.Plan(context.Background(), NewResearchState("run-1", "anything"))
	if err == nil {
		t.Fatal("expected error for empty topic list")
	}
}

func TestPlanSubquestionFailureIsFatal(t *testing.T) {
	llm := scriptedLLM([]string{"Known topic"}, map[string][]string{})
	p := NewPlanner(llm, "test-model", nil)

	_, err := p.Plan(context.Background(), NewResearchState("run-1", "anything"))
	if err == nil {
		t.Fatal("expected error when subquestion generation fails")
	}
	var perr PlanningError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PlanningError, got %T", err)
	}
	if perr.Stage != "subquestion generation" {
		t.Fatalf("expected subquestion stage, got %q", perr.Stage)
	}
}
