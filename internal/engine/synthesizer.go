package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

const (
	// expansionResultsPerQuestion is how many results each expansion-round
	// search requests.
	expansionResultsPerQuestion = 2

	// foldInExcerpt bounds the article text handed to a fold-in prompt.
	foldInExcerpt = 1500

	// expansionContentExcerpt bounds the synthesized content handed to the
	// per-topic follow-up prompt.
	expansionContentExcerpt = 3000

	// maxExpansionQuestions caps follow-up questions per expansion round.
	maxExpansionQuestions = 3
)

// noArticlesContent is the placeholder section for a topic with no articles.
func noArticlesContent(topic string) string {
	return fmt.Sprintf("No articles found for %s.", topic)
}

// Synthesizer folds a topic's articles into one cited narrative, then runs
// bounded recursive expansion: generate topic-scoped follow-ups, search them
// in parallel, fold in whatever is new. Fold-ins for a topic are strictly
// sequential because each depends on the previous content.
type Synthesizer struct {
	llm        LLMProvider
	search     SearchProvider
	model      string
	maxWorkers int
	logger     *log.Logger
}

// NewSynthesizer creates a synthesizer. maxWorkers bounds the parallel
// search fan-out inside expansion rounds.
func NewSynthesizer(llm LLMProvider, search SearchProvider, model string, maxWorkers int, logger *log.Logger) *Synthesizer {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SYNTH] ", log.LstdFlags)
	}
	return &Synthesizer{llm: llm, search: search, model: model, maxWorkers: maxWorkers, logger: logger}
}

// Synthesize produces the section for one topic. registry is shared across
// concurrent topic workers; it is the only state touched here that is.
func (s *Synthesizer) Synthesize(ctx context.Context, topic string, articles []Article, maxExpansions int, registry *SourceRegistry) SynthesisResult {
	if len(articles) == 0 {
		return SynthesisResult{Topic: topic, Content: noArticlesContent(topic)}
	}

	// Seed with the first article, cleaned to continuous prose.
	content := s.clean(ctx, articles[0].Text)
	sourcesUsed := []Source{s.sourceFor(articles[0], registry)}

	// Fold in the remaining seed articles in order. Duplicate URLs fold in
	// again; content dedup is not attempted.
	for _, a := range articles[1:] {
		content = s.foldIn(ctx, topic, content, a, registry)
		sourcesUsed = append(sourcesUsed, s.sourceFor(a, registry))
	}

	rounds := 0
	for rounds < maxExpansions {
		if err := ctx.Err(); err != nil {
			break
		}
		questions := s.topicFollowUps(ctx, topic, content)
		if len(questions) == 0 {
			break
		}
		newArticles := s.searchParallel(ctx, questions)
		if len(newArticles) == 0 {
			break
		}
		s.logger.Printf("topic %q: round %d folding in %d new articles", topic, rounds+1, len(newArticles))
		for _, a := range newArticles {
			content = s.foldIn(ctx, topic, content, a, registry)
			sourcesUsed = append(sourcesUsed, s.sourceFor(a, registry))
		}
		rounds++
	}

	return SynthesisResult{
		Topic:                    topic,
		Content:                  content,
		SourcesUsed:              sourcesUsed,
		ExpansionRoundsCompleted: rounds,
	}
}

// foldIn integrates one article into content with its registry-assigned
// citation id. Only the id matters here; the caller records the source (and
// its title) right after. A generation failure keeps the prior content
// unchanged and is not retried.
func (s *Synthesizer) foldIn(ctx context.Context, topic, content string, a Article, registry *SourceRegistry) string {
	id := registry.IDFor(a.URL)
	out, err := s.llm.Generate(ctx, buildIntegrationPrompt(topic, content, a, id), s.model)
	if err != nil {
		s.logger.Printf("fold-in error for %q: %v", a.URL, GenerationError{Op: "fold-in", Cause: err})
		return content
	}
	return s.clean(ctx, strings.TrimSpace(out))
}

// clean strips generation-induced structural formatting, preserving
// citations. On failure the input passes through unchanged.
func (s *Synthesizer) clean(ctx context.Context, content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	out, err := s.llm.Generate(ctx, buildCleanPrompt(content), s.model)
	if err != nil {
		return content
	}
	return strings.TrimSpace(out)
}

// topicFollowUps generates 0-3 topic-scoped follow-up questions. Producing
// none is a normal stop condition, not an error; candidates are filtered
// with the engine's own caps rather than trusting the model to self-limit.
func (s *Synthesizer) topicFollowUps(ctx context.Context, topic, content string) []string {
	raw, err := s.llm.Generate(ctx, buildTopicFollowUpPrompt(topic, content), s.model)
	if err != nil {
		s.logger.Printf("topic follow-up error for %q: %v", topic, GenerationError{Op: "topic follow-ups", Cause: err})
		return nil
	}
	keywords := strings.Fields(strings.ToLower(topic))
	var out []string
	for _, q := range splitQuestions(raw) {
		if len(out) >= maxExpansionQuestions {
			break
		}
		if len(q) <= minQuestionLen {
			continue
		}
		if !containsAny(strings.ToLower(q), keywords) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// searchParallel fans the round's questions out across a bounded pool and
// joins before returning. Failed searches contribute nothing. Result order
// follows question order so fold-in order is deterministic.
func (s *Synthesizer) searchParallel(ctx context.Context, questions []string) []Article {
	perQuestion := make([][]Article, len(questions))
	sem := make(chan struct{}, s.maxWorkers)
	var wg sync.WaitGroup

	for i, q := range questions {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			articles, err := s.search.Search(ctx, q, expansionResultsPerQuestion)
			if err != nil {
				s.logger.Printf("expansion search error on %q: %v", q, SearchError{Query: q, Provider: s.search.Name(), Cause: err})
				return
			}
			for j := range articles {
				articles[j].OriginQuestion = q
			}
			perQuestion[i] = articles
		}(i, q)
	}
	wg.Wait()

	var out []Article
	for _, articles := range perQuestion {
		out = append(out, articles...)
	}
	return out
}

func (s *Synthesizer) sourceFor(a Article, registry *SourceRegistry) Source {
	return Source{ID: registry.Register(a.URL, a.Title), URL: a.URL, Title: a.Title}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
