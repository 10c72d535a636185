// Package search implements the web-search port: provider clients that
// normalize native result shapes to articles, plus a readability fallback
// for results that arrive without usable text.
package search

import (
	"fmt"
	"net/http"
	"time"

	"deepscribe/internal/engine"
)

// Provider names accepted by the factory.
const (
	ExaProvider    = "exa"
	TavilyProvider = "tavily"
)

// ErrUnsupportedProvider is returned for an unknown provider name.
var ErrUnsupportedProvider = fmt.Errorf("unsupported search provider")

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// New builds a search provider by name, wrapped with readability enrichment
// so that results lacking text get a direct-fetch extraction attempt.
func New(provider, apiKey string) (engine.SearchProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("search provider %q: api key is empty", provider)
	}
	var inner engine.SearchProvider
	switch provider {
	case ExaProvider:
		inner = &Exa{ApiKey: apiKey, Client: defaultClient}
	case TavilyProvider:
		inner = &Tavily{ApiKey: apiKey, Client: defaultClient}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	return NewEnricher(inner, defaultClient), nil
}
