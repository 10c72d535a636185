package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func plannedState(breadth int) ResearchState {
	state := NewResearchState("run-1", "electric vehicle adoption")
	state.Breadth = breadth
	state.Topics = []string{"Charging infrastructure"}
	state.SubquestionsByTopic["Charging infrastructure"] = []string{
		"How fast is public charging infrastructure expanding?",
	}
	state.AskedQuestions["how fast is public charging infrastructure expanding?"] = true
	return state
}

func TestSearchControllerStopsAtBreadth(t *testing.T) {
	search := &stubSearch{
		searchFn: func(query string, count int) ([]Article, error) {
			return []Article{{Title: "t", URL: "https://a.example/" + fmt.Sprint(len(query)), Text: "long enough article text for follow-ups"}}, nil
		},
	}
	llm := &stubLLM{
		generateFn: func(prompt, model string) (string, error) {
			return "What subsidies accelerate charger deployment in rural areas?", nil
		},
	}
	c := NewSearchController(llm, search, "test-model", nil)

	state, err := c.Run(context.Background(), plannedState(3))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if state.CurrentIteration != state.Breadth {
		t.Fatalf("expected final iteration %d, got %d", state.Breadth, state.CurrentIteration)
	}
}

func TestSearchControllerBreadthOneNeverGeneratesFollowUps(t *testing.T) {
	search := &stubSearch{
		searchFn: func(query string, count int) ([]Article, error) {
			return []Article{{Title: "t", URL: "https://a.example", Text: "some text"}}, nil
		},
	}
	llm := &stubLLM{
		generateFn: func(prompt, model string) (string, error) {
			t.Fatal("follow-up generation must not run at breadth 1")
			return "", nil
		},
	}
	c := NewSearchController(llm, search, "test-model", nil)

	state, err := c.Run(context.Background(), plannedState(1))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(state.SearchResultsByQuestion) != 1 {
		t.Fatalf("expected 1 searched question, got %d", len(state.SearchResultsByQuestion))
	}
}

func TestSearchControllerDegradesSearchFailure(t *testing.T) {
	search := &stubSearch{
		searchFn: func(query string, count int) ([]Article, error) {
			return nil, fmt.Errorf("provider unavailable")
		},
	}
	c := NewSearchController(&stubLLM{}, search, "test-model", nil)

	state, err := c.Run(context.Background(), plannedState(1))
	if err != nil {
		t.Fatalf("search failure must not fail the run: %v", err)
	}
	results, ok := state.SearchResultsByQuestion["How fast is public charging infrastructure expanding?"]
	if !ok {
		t.Fatal("failed question missing from results map")
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results for failed search, got %d", len(results))
	}
}

func TestFollowUpNoveltyGuardIsCaseInsensitive(t *testing.T) {
	duplicate := "HOW FAST IS PUBLIC CHARGING INFRASTRUCTURE EXPANDING?"
	novel := "Which countries lead in megawatt charging deployment?"

	search := &stubSearch{
		searchFn: func(query string, count int) ([]Article, error) {
			return []Article{{Title: "t", URL: "https://a.example", Text: "article body"}}, nil
		},
	}
	llm := &stubLLM{
		generateFn: func(prompt, model string) (string, error) {
			return duplicate + "\n" + novel, nil
		},
	}
	c := NewSearchController(llm, search, "test-model", nil)

	state, err := c.Run(context.Background(), plannedState(2))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, ok := state.SearchResultsByQuestion[duplicate]; ok {
		t.Fatal("case-variant duplicate was searched")
	}
	if _, ok := state.SearchResultsByQuestion[novel]; !ok {
		t.Fatal("novel follow-up was not searched")
	}
}

func TestFollowUpFiltersShortQuestionsAndCapsCount(t *testing.T) {
	var followUps []string
	for i := 0; i < 6; i++ {
		followUps = append(followUps, fmt.Sprintf("Follow-up question number %d about charging?", i))
	}
	followUps = append(followUps, "Too short?")

	search := &stubSearch{
		searchFn: func(query string, count int) ([]Article, error) {
			return []Article{{Title: "t", URL: "https://a.example", Text: "article body"}}, nil
		},
	}
	llm := &stubLLM{
		generateFn: func(prompt, model string) (string, error) {
			return strings.Join(followUps, "\n"), nil
		},
	}
	c := NewSearchController(llm, search, "test-model", nil)

	state, err := c.Run(context.Background(), plannedState(2))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// 1 planned question + at most 3 accepted follow-ups.
	if got := len(state.SearchResultsByQuestion); got != 1+maxFollowUpsPerIteration {
		t.Fatalf("expected %d searched questions, got %d", 1+maxFollowUpsPerIteration, got)
	}
	if _, ok := state.SearchResultsByQuestion["Too short?"]; ok {
		t.Fatal("short question passed the length filter")
	}
}

func TestFollowUpCapKeepsEarlierQuestionsCandidates(t *testing.T) {
	parentA := "How are interstate charging corridors financed today?"
	parentB := "Which grid upgrades do charging corridors require first?"
	childrenByParent := map[string]string{
		parentA: "What demand forecasts guide charging corridor buildout?\n" +
			"Which permitting timelines slow charging corridor projects?",
		parentB: "How do utility tariffs shape charging corridor economics?\n" +
			"What reliability reporting do charging corridor operators publish?",
	}

	llm := &stubLLM{
		generateFn: func(prompt, model string) (string, error) {
			for parent, children := range childrenByParent {
				if strings.Contains(prompt, "Original Question: "+parent) {
					return children, nil
				}
			}
			return parentA + "\n" + parentB, nil
		},
	}
	var urls int
	search := &stubSearch{
		searchFn: func(query string, count int) ([]Article, error) {
			urls++
			return []Article{{Title: "t", URL: fmt.Sprintf("https://a.example/%d", urls), Text: "article body long enough to prompt from"}}, nil
		},
	}
	c := NewSearchController(llm, search, "test-model", nil)

	state, err := c.Run(context.Background(), plannedState(3))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// The final iteration's 3-question cap must admit both of parentA's
	// candidates and the first of parentB's, in that order, every run.
	kept := []string{
		"What demand forecasts guide charging corridor buildout?",
		"Which permitting timelines slow charging corridor projects?",
		"How do utility tariffs shape charging corridor economics?",
	}
	for _, q := range kept {
		if _, ok := state.SearchResultsByQuestion[q]; !ok {
			t.Fatalf("capped selection dropped %q", q)
		}
	}
	dropped := "What reliability reporting do charging corridor operators publish?"
	if _, ok := state.SearchResultsByQuestion[dropped]; ok {
		t.Fatalf("cap admitted a later question's candidate over an earlier one: %q", dropped)
	}
}

func TestFollowUpRejectsNumberedAndBulletedLines(t *testing.T) {
	plain := "What interoperability standards govern public charger payments?"
	search := &stubSearch{
		searchFn: func(query string, count int) ([]Article, error) {
			return []Article{{Title: "t", URL: "https://a.example/" + fmt.Sprint(len(query)), Text: "article body"}}, nil
		},
	}
	llm := &stubLLM{
		generateFn: func(prompt, model string) (string, error) {
			return "1. What uptime guarantees do charger networks offer enterprise fleets?\n" +
				"- Which states subsidize charger maintenance contracts directly?\n" +
				plain, nil
		},
	}
	c := NewSearchController(llm, search, "test-model", nil)

	state, err := c.Run(context.Background(), plannedState(2))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, ok := state.SearchResultsByQuestion[plain]; !ok {
		t.Fatal("plain follow-up was not searched")
	}
	for q := range state.SearchResultsByQuestion {
		if strings.Contains(q, "uptime guarantees") || strings.Contains(q, "maintenance contracts") {
			t.Fatalf("numbered or bulleted candidate survived, raw or stripped: %q", q)
		}
	}
}

func TestSearchControllerSetsOriginQuestion(t *testing.T) {
	search := &stubSearch{
		searchFn: func(query string, count int) ([]Article, error) {
			return []Article{{Title: "t", URL: "https://a.example", Text: "body"}}, nil
		},
	}
	c := NewSearchController(&stubLLM{}, search, "test-model", nil)

	state, err := c.Run(context.Background(), plannedState(1))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	q := "How fast is public charging infrastructure expanding?"
	for _, a := range state.SearchResultsByQuestion[q] {
		if a.OriginQuestion != q {
			t.Fatalf("expected origin question %q, got %q", q, a.OriginQuestion)
		}
	}
}
