package engine

import (
	"context"
	"time"
)

// DetailLevel controls how many topics and subquestions the planner asks for.
type DetailLevel string

const (
	DetailLow    DetailLevel = "low"
	DetailMedium DetailLevel = "medium"
	DetailHigh   DetailLevel = "high"
)

// Article is one normalized web-search result. Immutable once produced by a
// search call; OriginQuestion records which question surfaced it.
type Article struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	Text           string `json:"text"`
	OriginQuestion string `json:"origin_question"`
}

// Source is a citable reference. ID is assigned exactly once by the
// SourceRegistry the first time its URL is seen anywhere in the run.
type Source struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SynthesisResult is the outcome of synthesizing one topic. Immutable after
// return from the synthesizer.
type SynthesisResult struct {
	Topic                    string   `json:"topic"`
	Content                  string   `json:"content"`
	SourcesUsed              []Source `json:"sources_used"`
	ExpansionRoundsCompleted int      `json:"expansion_rounds_completed"`
	Err                      error    `json:"-"`
}

// ResearchState carries the run through its stages. Stages take a state value
// and return an updated one; nothing mutates a state another stage still
// holds. The SourceRegistry inside it is the single exception: it is shared
// by reference with every concurrent topic worker.
type ResearchState struct {
	RunID     string
	UserQuery string

	Topics             []string
	SubquestionsByTopic map[string][]string

	// AskedQuestions is the novelty guard: lowercase question -> seen.
	// It only grows.
	AskedQuestions map[string]bool

	// SearchResultsByQuestion accumulates results across all iterations.
	SearchResultsByQuestion map[string][]Article

	CurrentIteration int // 1-based; invariant: <= Breadth
	Breadth          int // max search iterations, >= 1
	MaxExpansions    int // per-topic recursive rounds, >= 0
	MaxWorkers       int

	Detail DetailLevel

	SectionsByTopic      map[string]SynthesisResult
	Registry             *SourceRegistry
	AllDiscoveredSources []Source

	StartedAt time.Time
}

// NewResearchState seeds a state for one run.
func NewResearchState(runID, query string) ResearchState {
	return ResearchState{
		RunID:                   runID,
		UserQuery:               query,
		SubquestionsByTopic:     make(map[string][]string),
		AskedQuestions:          make(map[string]bool),
		SearchResultsByQuestion: make(map[string][]Article),
		SectionsByTopic:         make(map[string]SynthesisResult),
		CurrentIteration:        1,
		Breadth:                 1,
		MaxWorkers:              4,
		Detail:                  DetailMedium,
		Registry:                NewSourceRegistry(),
		StartedAt:               time.Now(),
	}
}

// LLMProvider is the generation port. Implementations live outside the
// engine; the engine treats every call as blocking I/O and never retries.
type LLMProvider interface {
	// Generate returns free-form text for a prompt.
	Generate(ctx context.Context, prompt string, model string) (string, error)

	// GenerateObject generates a response constrained to JSON and decodes it
	// into out.
	GenerateObject(ctx context.Context, prompt string, model string, out interface{}) error
}

// SearchProvider is the search port. Implementations normalize their native
// result shape to Article{Title,URL,Text}; an empty Text is valid and means
// "no usable content".
type SearchProvider interface {
	Search(ctx context.Context, query string, count int) ([]Article, error)
	Name() string
}

// RunResult is what the engine hands back to callers: the assembled report
// plus accounting, in the shape the CLI and HTTP surfaces persist.
type RunResult struct {
	RunID          string            `json:"run_id"`
	Query          string            `json:"query"`
	Title          string            `json:"title"`
	Report         string            `json:"report"`
	Filename       string            `json:"filename"`
	Topics         []string          `json:"topics"`
	Sources        []Source          `json:"sources"`
	SectionsByTopic map[string]string `json:"sections_by_topic"`
	ProcessingTime time.Duration     `json:"processing_time"`
	CreatedAt      time.Time         `json:"created_at"`
}
