package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"deepscribe/config"
	"deepscribe/internal/engine"
	"deepscribe/internal/store"
)

type memStore struct {
	reports map[string]store.ReportRecord
	saved   int
}

func newMemStore() *memStore {
	return &memStore{reports: make(map[string]store.ReportRecord)}
}

func (m *memStore) SaveReport(ctx context.Context, res engine.RunResult) error {
	m.saved++
	m.reports[res.RunID] = store.ReportRecord{
		ID: res.RunID, Query: res.Query, Title: res.Title, Report: res.Report,
		Topics: res.Topics, Sources: len(res.Sources), CreatedAt: res.CreatedAt,
	}
	return nil
}

func (m *memStore) GetReport(ctx context.Context, id string) (store.ReportRecord, error) {
	rec, ok := m.reports[id]
	if !ok {
		return store.ReportRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) ListReports(ctx context.Context, limit int) ([]store.ReportRecord, error) {
	var out []store.ReportRecord
	for _, rec := range m.reports {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }
func (m *memStore) Close() error                   { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Address: ":0"},
		Research: config.ResearchConfig{
			Detail: "medium", Breadth: 1, MaxExpansions: 0, MaxWorkers: 2,
		},
	}
}

func invoke(s *Server, handler func(echo.Context) error, method, target, body string, params ...string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}
	return rec, handler(c)
}

func TestReportEndpointsWithoutStore(t *testing.T) {
	s := New(nil, nil, testConfig())

	_, err := invoke(s, s.listReports, http.MethodGet, "/api/reports", "")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without store, got %v", err)
	}

	_, err = invoke(s, s.getReport, http.MethodGet, "/api/reports/x", "", "id", "x")
	he, ok = err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without store, got %v", err)
	}
}

func TestResearchRejectsInvalidOptions(t *testing.T) {
	s := New(nil, nil, testConfig())

	cases := []string{
		`{"query": ""}`,
		`{"query": "q", "breadth": 99}`,
		`{"query": "q", "detail": "extreme"}`,
		`{"query": "q", "max_workers": 99}`,
	}
	for _, body := range cases {
		_, err := invoke(s, s.research, http.MethodPost, "/api/research", body)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %v", body, err)
		}
	}
}

func TestGetReportFound(t *testing.T) {
	st := newMemStore()
	st.reports["abc"] = store.ReportRecord{
		ID: "abc", Query: "q", Title: "T", Report: "# T", CreatedAt: time.Now(),
	}
	s := New(nil, st, testConfig())

	rec, err := invoke(s, s.getReport, http.MethodGet, "/api/reports/abc", "", "id", "abc")
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got store.ReportRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "abc" || got.Title != "T" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestGetReportNotFound(t *testing.T) {
	s := New(nil, newMemStore(), testConfig())

	_, err := invoke(s, s.getReport, http.MethodGet, "/api/reports/missing", "", "id", "missing")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestListReportsEmptyIsArray(t *testing.T) {
	s := New(nil, newMemStore(), testConfig())

	rec, err := invoke(s, s.listReports, http.MethodGet, "/api/reports", "")
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty JSON array, got %s", body)
	}
}

func TestDefaultOptionsComeFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Research.Breadth = 4
	cfg.Research.Legend = true
	s := New(nil, nil, cfg)

	opts := s.defaultOptions()
	if opts.Breadth != 4 || !opts.Legend {
		t.Fatalf("config defaults not applied: %+v", opts)
	}
	if opts.Detail != engine.DetailMedium {
		t.Fatalf("unexpected detail %q", opts.Detail)
	}
}
