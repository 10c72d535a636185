package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const (
	// searchResultsPerQuestion is how many results a breadth-iteration search
	// requests per question.
	searchResultsPerQuestion = 5

	// followUpExcerpt bounds how much of each article feeds the follow-up
	// question prompt.
	followUpExcerpt = 1000

	// minQuestionLen filters out trivial follow-up candidates.
	minQuestionLen = 20

	// maxFollowUpsPerIteration caps accepted follow-ups per iteration;
	// first-seen wins.
	maxFollowUpsPerIteration = 3
)

// SearchController runs the breadth loop: iteration 1 searches the planner's
// subquestions; each later iteration generates follow-up questions from the
// previous iteration's results and searches those instead. A per-question
// search failure records an empty result and the run continues.
type SearchController struct {
	llm      LLMProvider
	search   SearchProvider
	model    string
	logger   *log.Logger
	observer SearchObserver
}

// SearchObserver receives per-call notifications for telemetry. May be nil.
type SearchObserver interface {
	SearchPerformed(provider, question string, results int, err error)
}

// NewSearchController wires the controller to its two ports.
func NewSearchController(llm LLMProvider, search SearchProvider, model string, logger *log.Logger) *SearchController {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &SearchController{llm: llm, search: search, model: model, logger: logger}
}

// SetObserver attaches a telemetry observer.
func (c *SearchController) SetObserver(o SearchObserver) { c.observer = o }

// Run executes the full breadth loop and returns the updated state. On exit
// CurrentIteration == Breadth exactly.
func (c *SearchController) Run(ctx context.Context, state ResearchState) (ResearchState, error) {
	questions := flattenSubquestions(state)
	for {
		c.logger.Printf("iteration %d/%d: searching %d questions with %s",
			state.CurrentIteration, state.Breadth, len(questions), c.search.Name())

		iterResults := c.searchAll(ctx, questions)
		for q, articles := range iterResults {
			state.SearchResultsByQuestion[q] = articles
		}

		if state.CurrentIteration >= state.Breadth {
			return state, nil
		}
		state.CurrentIteration++

		if err := ctx.Err(); err != nil {
			return state, err
		}
		questions = c.generateFollowUps(ctx, state, questions, iterResults)
		if len(questions) == 0 {
			c.logger.Printf("iteration %d/%d: no follow-up questions, searching nothing further this round",
				state.CurrentIteration, state.Breadth)
		}
		for _, q := range questions {
			state.AskedQuestions[strings.ToLower(q)] = true
		}
	}
}

// searchAll queries the search port for every question, degrading failures
// to empty result lists.
func (c *SearchController) searchAll(ctx context.Context, questions []string) map[string][]Article {
	results := make(map[string][]Article, len(questions))
	for _, q := range questions {
		articles, err := c.search.Search(ctx, q, searchResultsPerQuestion)
		if c.observer != nil {
			c.observer.SearchPerformed(c.search.Name(), q, len(articles), err)
		}
		if err != nil {
			c.logger.Printf("search error on %q: %v", q, SearchError{Query: q, Provider: c.search.Name(), Cause: err})
			results[q] = nil
			continue
		}
		for i := range articles {
			articles[i].OriginQuestion = q
		}
		results[q] = articles
	}
	return results
}

// generateFollowUps asks the model for follow-up questions per answered
// question, walking the iteration's questions in the order they were
// searched so the per-iteration cap always keeps the earliest candidates.
// Generation failures for one question produce nothing for it and the loop
// continues.
func (c *SearchController) generateFollowUps(ctx context.Context, state ResearchState, questions []string, iterResults map[string][]Article) []string {
	var accepted []string
	for _, q := range questions {
		if len(accepted) >= maxFollowUpsPerIteration {
			break
		}
		articles := iterResults[q]
		content := combineArticleExcerpts(articles)
		if content == "" {
			continue
		}

		raw, err := c.llm.Generate(ctx, buildFollowUpPrompt(state.UserQuery, content, q), c.model)
		if err != nil {
			c.logger.Printf("follow-up generation error on %q: %v", q, GenerationError{Op: "follow-up questions", Cause: err})
			continue
		}
		for _, cand := range splitQuestions(raw) {
			if len(accepted) >= maxFollowUpsPerIteration {
				break
			}
			if len(cand) <= minQuestionLen {
				continue
			}
			key := strings.ToLower(cand)
			if state.AskedQuestions[key] {
				continue
			}
			// Mark immediately so duplicates within the same batch are
			// dropped too.
			state.AskedQuestions[key] = true
			accepted = append(accepted, cand)
		}
	}
	c.logger.Printf("accepted %d follow-up questions", len(accepted))
	return accepted
}

func combineArticleExcerpts(articles []Article) string {
	var b strings.Builder
	for _, a := range articles {
		if strings.TrimSpace(a.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\nArticle: %s\n%s", a.Title, excerpt(a.Text, followUpExcerpt))
	}
	return strings.TrimSpace(b.String())
}

// splitQuestions parses a one-question-per-line model response. Lines the
// model numbered or bulleted despite being told not to are dropped outright.
func splitQuestions(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || numberedOrBulleted(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func numberedOrBulleted(line string) bool {
	for _, p := range []string{"1.", "2.", "3.", "-"} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func flattenSubquestions(state ResearchState) []string {
	var out []string
	for _, topic := range state.Topics {
		out = append(out, state.SubquestionsByTopic[topic]...)
	}
	return out
}
