package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Coordinator fans the synthesizer out across topics on a bounded worker
// pool and fans results back in. Before fan-out it pre-registers every known
// article URL sequentially in planner order, fixing citation numbering for
// all sources known at synthesis start; ids allocated later (expansion
// discoveries) continue from there under the registry's lock.
type Coordinator struct {
	synth  *Synthesizer
	logger *log.Logger
}

// NewCoordinator creates a coordinator around one synthesizer.
func NewCoordinator(synth *Synthesizer, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(log.Writer(), "[COORD] ", log.LstdFlags)
	}
	return &Coordinator{synth: synth, logger: logger}
}

// SynthesizeAll synthesizes every topic and returns the section map. A topic
// worker that fails (or panics) yields a stub result carrying the error as
// content; one topic's failure never aborts the run.
func (c *Coordinator) SynthesizeAll(ctx context.Context, state ResearchState) map[string]SynthesisResult {
	articlesByTopic := collectTopicArticles(state)

	c.preRegister(state, articlesByTopic)
	c.logger.Printf("pre-registered %d unique sources across %d topics", state.Registry.Len(), len(state.Topics))

	results := make(map[string]SynthesisResult, len(state.Topics))
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxWorkers(state))
	)

	for _, topic := range state.Topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := c.synthesizeTopic(ctx, topic, articlesByTopic[topic], state)

			mu.Lock()
			results[topic] = res
			mu.Unlock()
		}(topic)
	}
	wg.Wait()

	return results
}

// synthesizeTopic runs one topic worker, converting panics into a stub
// SynthesisResult so the coordinator boundary holds.
func (c *Coordinator) synthesizeTopic(ctx context.Context, topic string, articles []Article, state ResearchState) (res SynthesisResult) {
	defer func() {
		if r := recover(); r != nil {
			err := SynthesisError{Topic: topic, Cause: fmt.Errorf("%v", r)}
			c.logger.Printf("topic worker panic: %v", err)
			res = SynthesisResult{
				Topic:   topic,
				Content: fmt.Sprintf("Synthesis for %s failed: %v.", topic, r),
				Err:     err,
			}
		}
	}()
	return c.synth.Synthesize(ctx, topic, articles, state.MaxExpansions, state.Registry)
}

// preRegister walks all topics' articles in stable order (first topic, first
// subquestion, first result) assigning citation ids sequentially.
func (c *Coordinator) preRegister(state ResearchState, articlesByTopic map[string][]Article) {
	for _, topic := range state.Topics {
		for _, a := range articlesByTopic[topic] {
			state.Registry.Register(a.URL, a.Title)
		}
	}
}

// collectTopicArticles groups accumulated search results per topic in
// subquestion order. Results for follow-up questions belong to every topic
// whose subquestion spawned them only indirectly, so they attach by origin:
// a follow-up's articles stay with the question they answered, which the
// state maps back through SearchResultsByQuestion.
func collectTopicArticles(state ResearchState) map[string][]Article {
	claimed := make(map[string]bool)
	out := make(map[string][]Article, len(state.Topics))
	for _, topic := range state.Topics {
		var articles []Article
		for _, q := range state.SubquestionsByTopic[topic] {
			claimed[q] = true
			articles = append(articles, state.SearchResultsByQuestion[q]...)
		}
		out[topic] = articles
	}

	// Follow-up questions are not tied to a topic in the plan; fold their
	// results into the first topic so they are not dropped.
	if len(state.Topics) > 0 {
		first := state.Topics[0]
		for _, q := range orderedResultQuestions(state) {
			if claimed[q] {
				continue
			}
			out[first] = append(out[first], state.SearchResultsByQuestion[q]...)
		}
	}
	return out
}

// orderedResultQuestions returns the keys of SearchResultsByQuestion with
// plan questions first in plan order, then the rest sorted for determinism.
func orderedResultQuestions(state ResearchState) []string {
	seen := make(map[string]bool)
	var out []string
	for _, topic := range state.Topics {
		for _, q := range state.SubquestionsByTopic[topic] {
			if _, ok := state.SearchResultsByQuestion[q]; ok && !seen[q] {
				seen[q] = true
				out = append(out, q)
			}
		}
	}
	var rest []string
	for q := range state.SearchResultsByQuestion {
		if !seen[q] {
			rest = append(rest, q)
		}
	}
	sort.Strings(rest)
	out = append(out, rest...)
	return out
}

func maxWorkers(state ResearchState) int {
	if state.MaxWorkers < 1 {
		return 1
	}
	return state.MaxWorkers
}
