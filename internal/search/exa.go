package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"deepscribe/internal/engine"
)

const exaEndpoint = "https://api.exa.ai/search"

// Exa calls the Exa neural search API with text contents enabled, so results
// usually carry full article text.
type Exa struct {
	ApiKey   string
	Client   *http.Client
	Endpoint string // tests override this
}

func (e *Exa) Name() string { return ExaProvider }

func (e *Exa) Search(ctx context.Context, query string, count int) ([]engine.Article, error) {
	// https://docs.exa.ai/reference/search
	payload := map[string]any{
		"query":      query,
		"numResults": count,
		"contents":   map[string]any{"text": true},
	}
	body, _ := json.Marshal(payload)

	endpoint := e.Endpoint
	if endpoint == "" {
		endpoint = exaEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", e.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exa status %d", resp.StatusCode)
	}

	var raw struct {
		Results []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
			Text  string `json:"text"`
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
		out = append(out, engine.Article{Title: r.Title, URL: r.URL, Text: r.Text})
	}
	return out, nil
}
