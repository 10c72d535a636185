package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// stubLLM routes calls to configurable functions, recording every prompt.
type stubLLM struct {
	mu      sync.Mutex
	prompts []string

	generateFn func(prompt, model string) (string, error)
	objectFn   func(prompt string, out interface{}) error
}

func (s *stubLLM) Generate(ctx context.Context, prompt, model string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.generateFn != nil {
		return s.generateFn(prompt, model)
	}
	return "", nil
}

func (s *stubLLM) GenerateObject(ctx context.Context, prompt, model string, out interface{}) error {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.objectFn != nil {
		return s.objectFn(prompt, out)
	}
	return fmt.Errorf("no object stub configured")
}

func (s *stubLLM) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// scriptedLLM answers planning prompts from fixed topic/subquestion sets and
// everything else with canned text, which is enough to drive a full run.
func scriptedLLM(topics []string, subquestions map[string][]string) *stubLLM {
	s := &stubLLM{}
	s.objectFn = func(prompt string, out interface{}) error {
		if strings.Contains(prompt, `{"topics"`) {
			data, _ := json.Marshal(map[string][]string{"topics": topics})
			return json.Unmarshal(data, out)
		}
		for topic, subqs := range subquestions {
			if strings.Contains(prompt, fmt.Sprintf("%q", topic)) {
				data, _ := json.Marshal(map[string][]string{"subquestions": subqs})
				return json.Unmarshal(data, out)
			}
		}
		return fmt.Errorf("unexpected object prompt: %s", prompt)
	}
	s.generateFn = func(prompt, model string) (string, error) {
		switch {
		case strings.Contains(prompt, "follow-up research questions"):
			return "", nil
		case strings.Contains(prompt, "Source Number:"):
			return "integrated content " + sourceMarker(prompt), nil
		case strings.Contains(prompt, "Clean the following content"):
			return extractCleanInput(prompt), nil
		default:
			return "generated text", nil
		}
	}
	return s
}

// sourceMarker pulls the citation id out of an integration prompt so tests
// can assert which id was folded in.
func sourceMarker(prompt string) string {
	idx := strings.Index(prompt, "Source Number: ")
	if idx < 0 {
		return ""
	}
	rest := prompt[idx+len("Source Number: "):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return "[" + strings.TrimSpace(rest) + "]"
}

func extractCleanInput(prompt string) string {
	start := strings.Index(prompt, "<Content>")
	end := strings.Index(prompt, "</Content>")
	if start < 0 || end < 0 {
		return prompt
	}
	return strings.TrimSpace(prompt[start+len("<Content>") : end])
}

// stubSearch returns canned articles per query.
type stubSearch struct {
	mu      sync.Mutex
	queries []string

	name     string
	searchFn func(query string, count int) ([]Article, error)
}

func (s *stubSearch) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubSearch) Search(ctx context.Context, query string, count int) ([]Article, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.searchFn != nil {
		return s.searchFn(query, count)
	}
	return nil, nil
}

func (s *stubSearch) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}
