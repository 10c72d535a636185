package search

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"deepscribe/internal/engine"
)

const (
	// enrichMaxBody bounds how much of a page body is read before extraction.
	enrichMaxBody = 2 << 20

	// enrichMaxChars bounds the extracted text kept per article.
	enrichMaxChars = 20000
)

// Enricher wraps a search provider and backfills missing article text by
// fetching the page and running readability extraction. A failed fetch leaves
// the article as the provider returned it; enrichment never fails a search.
type Enricher struct {
	inner  engine.SearchProvider
	client *http.Client
}

// NewEnricher wraps inner with text backfill.
func NewEnricher(inner engine.SearchProvider, client *http.Client) *Enricher {
	if client == nil {
		client = defaultClient
	}
	return &Enricher{inner: inner, client: client}
}

func (e *Enricher) Name() string { return e.inner.Name() }

func (e *Enricher) Search(ctx context.Context, query string, count int) ([]engine.Article, error) {
	articles, err := e.inner.Search(ctx, query, count)
	if err != nil {
		return nil, err
	}
	for i := range articles {
		if strings.TrimSpace(articles[i].Text) != "" {
			continue
		}
		text, title := e.extract(ctx, articles[i].URL)
		articles[i].Text = text
		if articles[i].Title == "" {
			articles[i].Title = title
		}
	}
	return articles, nil
}

// extract fetches a page and pulls out its main content. Returns empty
// strings on any failure.
func (e *Enricher) extract(ctx context.Context, link string) (text, title string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", ""
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, enrichMaxBody))
	if err != nil {
		return "", ""
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), mustParseURL(link))
	if err != nil {
		return "", ""
	}
	text = strings.TrimSpace(article.TextContent)
	if len(text) > enrichMaxChars {
		text = text[:enrichMaxChars]
	}
	return text, strings.TrimSpace(article.Title)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
