package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"deepscribe/internal/engine"
)

type articleSpec struct {
	title, url, text string
}

type fakeProvider struct {
	articles []articleSpec
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Search(ctx context.Context, query string, count int) ([]engine.Article, error) {
	var out []engine.Article
	for _, a := range f.articles {
		out = append(out, engine.Article{Title: a.title, URL: a.url, Text: a.text})
	}
	return out, nil
}

func TestExaSearchNormalizesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["query"] != "solar efficiency" {
			t.Errorf("unexpected query %v", req["query"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Solar", "url": "https://a.example", "text": "solar body"},
				{"title": "No URL", "url": "", "text": "dropped"},
				{"title": "Wind", "url": "https://b.example", "text": "wind body"},
			},
		})
	}))
	defer srv.Close()

	e := &Exa{ApiKey: "test-key", Client: srv.Client(), Endpoint: srv.URL}
	articles, err := e.Search(context.Background(), "solar efficiency", 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("expected 2 articles (url-less dropped), got %d", len(articles))
	}
	if articles[0].Title != "Solar" || articles[0].Text != "solar body" {
		t.Fatalf("unexpected first article: %+v", articles[0])
	}
}

func TestExaSearchCapsResultCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "1", "url": "https://1.example", "text": "t"},
				{"title": "2", "url": "https://2.example", "text": "t"},
				{"title": "3", "url": "https://3.example", "text": "t"},
			},
		})
	}))
	defer srv.Close()

	e := &Exa{ApiKey: "k", Client: srv.Client(), Endpoint: srv.URL}
	articles, err := e.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("expected cap at 2, got %d", len(articles))
	}
}

func TestExaSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := &Exa{ApiKey: "k", Client: srv.Client(), Endpoint: srv.URL}
	if _, err := e.Search(context.Background(), "q", 1); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestTavilySearchPrefersRawContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tv-key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Raw", "url": "https://raw.example", "content": "snippet", "raw_content": "full page"},
				{"title": "Snippet only", "url": "https://snip.example", "content": "just a snippet"},
			},
		})
	}))
	defer srv.Close()

	tv := &Tavily{ApiKey: "tv-key", Client: srv.Client(), Endpoint: srv.URL}
	articles, err := tv.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if articles[0].Text != "full page" {
		t.Fatalf("expected raw content preferred, got %q", articles[0].Text)
	}
	if articles[1].Text != "just a snippet" {
		t.Fatalf("expected content fallback, got %q", articles[1].Text)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New("duckduckgo", "key"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, err := New(ExaProvider, ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestEnricherBackfillsMissingText(t *testing.T) {
	page := `<html><head><title>Page Title</title></head><body><article><p>` +
		`This is the main readable content of the page, long enough for extraction to keep it. ` +
		`It spans several sentences so the readability pass treats it as the primary article body. ` +
		`More filler prose keeps the extractor confident about this block.</p></article></body></html>`
	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer pageSrv.Close()

	inner := &fakeProvider{articles: []articleSpec{
		{title: "Empty text", url: pageSrv.URL, text: ""},
		{title: "Has text", url: "https://hastext.example", text: "already here"},
	}}
	e := NewEnricher(inner, pageSrv.Client())

	articles, err := e.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if articles[0].Text == "" {
		t.Fatal("enricher did not backfill empty text")
	}
	if articles[1].Text != "already here" {
		t.Fatalf("enricher touched non-empty text: %q", articles[1].Text)
	}
}
