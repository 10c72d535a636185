package engine

import "fmt"

// The engine's error taxonomy. Planning failures abort the run; search
// failures degrade to empty results; generation failures inside fold-in or
// follow-up generation degrade to "produced nothing"; a topic task failure is
// contained to that topic's section by the coordinator.

// GenerationError wraps a generation-backend failure.
type GenerationError struct {
	Op    string
	Cause error
}

func (e GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Op, e.Cause)
}

func (e GenerationError) Unwrap() error { return e.Cause }

// SearchError wraps a search-backend failure.
type SearchError struct {
	Query    string
	Provider string
	Cause    error
}

func (e SearchError) Error() string {
	return fmt.Sprintf("search failed on %q via %s: %v", e.Query, e.Provider, e.Cause)
}

func (e SearchError) Unwrap() error { return e.Cause }

// PlanningError means topics or subquestions could not be produced. Nothing
// downstream can proceed without them, so callers treat it as fatal.
type PlanningError struct {
	Stage string
	Cause error
}

func (e PlanningError) Error() string {
	return fmt.Sprintf("planning failed at %s: %v", e.Stage, e.Cause)
}

func (e PlanningError) Unwrap() error { return e.Cause }

// SynthesisError is a single topic's fold-in or expansion failure.
type SynthesisError struct {
	Topic string
	Cause error
}

func (e SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for topic %q: %v", e.Topic, e.Cause)
}

func (e SynthesisError) Unwrap() error { return e.Cause }
