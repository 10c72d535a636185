package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"deepscribe/internal/engine"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API. Raw page content is requested so the
// enricher rarely needs to fetch anything itself.
type Tavily struct {
	ApiKey   string
	Client   *http.Client
	Endpoint string // tests override this
}

func (t *Tavily) Name() string { return TavilyProvider }

func (t *Tavily) Search(ctx context.Context, query string, count int) ([]engine.Article, error) {
	// https://docs.tavily.com/docs/rest-api/api-reference
	payload := map[string]any{
		"query":               query,
		"max_results":         count,
		"include_raw_content": true,
	}
	body, _ := json.Marshal(payload)

	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily status %d", resp.StatusCode)
	}

	var raw struct {
		Results []struct {
			Title      string `json:"title"`
			URL        string `json:"url"`
			Content    string `json:"content"`
			RawContent string `json:"raw_content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []engine.Article
	for i, r := range raw.Results {
		if i >= count {
			break
		}
		if r.URL == "" {
			continue
		}
		text := r.RawContent
		if text == "" {
			text = r.Content
		}
		out = append(out, engine.Article{Title: r.Title, URL: r.URL, Text: text})
	}
	return out, nil
}
