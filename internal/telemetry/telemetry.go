package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"deepscribe/config"
)

// Telemetry tracks run outcomes, LLM usage and search activity, and mirrors
// the counters into prometheus collectors served on /metrics.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	costs   *CostTracker
}

// Metrics holds in-process counters for the performance report.
type Metrics struct {
	mu sync.RWMutex

	RunsTotal      int64
	RunsFailed     int64
	TotalRunTime   time.Duration
	LLMRequests    map[string]int64 // model -> calls
	LLMTokens      map[string]int64 // model -> tokens
	SearchRequests map[string]int64 // provider -> calls
	SearchFailures map[string]int64 // provider -> failed calls
	SourcesFound   int64
}

// CostTracker accumulates LLM spend per model.
type CostTracker struct {
	mu         sync.RWMutex
	ModelCosts map[string]float64
	TotalCost  float64
}

var (
	promRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscribe_runs_total",
		Help: "Research runs by outcome.",
	}, []string{"outcome"})
	promRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deepscribe_run_duration_seconds",
		Help:    "Wall time of complete research runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	promLLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscribe_llm_requests_total",
		Help: "Generation port calls by model and outcome.",
	}, []string{"model", "outcome"})
	promLLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscribe_llm_tokens_total",
		Help: "Tokens consumed by model.",
	}, []string{"model"})
	promSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscribe_search_requests_total",
		Help: "Search port calls by provider and outcome.",
	}, []string{"provider", "outcome"})
)

// New creates a telemetry instance. Periodic cost logs run only when enabled
// in config.
func New(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			LLMRequests:    make(map[string]int64),
			LLMTokens:      make(map[string]int64),
			SearchRequests: make(map[string]int64),
			SearchFailures: make(map[string]int64),
		},
		costs: &CostTracker{ModelCosts: make(map[string]float64)},
	}
	if cfg.Enabled && cfg.PeriodicLogs {
		go t.reportLoop()
	}
	return t
}

// RecordRun records the outcome of a complete research run.
func (t *Telemetry) RecordRun(duration time.Duration, sources int, err error) {
	t.metrics.mu.Lock()
	t.metrics.RunsTotal++
	t.metrics.TotalRunTime += duration
	t.metrics.SourcesFound += int64(sources)
	if err != nil {
		t.metrics.RunsFailed++
	}
	t.metrics.mu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	promRuns.WithLabelValues(outcome).Inc()
	promRunDuration.Observe(duration.Seconds())
}

// RecordLLMCall records one generation port call.
func (t *Telemetry) RecordLLMCall(model string, tokens int64, cost float64, err error) {
	t.metrics.mu.Lock()
	t.metrics.LLMRequests[model]++
	t.metrics.LLMTokens[model] += tokens
	t.metrics.mu.Unlock()

	t.costs.mu.Lock()
	t.costs.ModelCosts[model] += cost
	t.costs.TotalCost += cost
	t.costs.mu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	promLLMRequests.WithLabelValues(model, outcome).Inc()
	if tokens > 0 {
		promLLMTokens.WithLabelValues(model).Add(float64(tokens))
	}
}

// SearchPerformed records one search port call. Satisfies the engine's
// SearchObserver contract.
func (t *Telemetry) SearchPerformed(provider, question string, results int, err error) {
	t.metrics.mu.Lock()
	t.metrics.SearchRequests[provider]++
	if err != nil {
		t.metrics.SearchFailures[provider]++
	}
	t.metrics.mu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	promSearches.WithLabelValues(provider, outcome).Inc()
}

// Snapshot returns a copy of the counters for reporting endpoints.
func (t *Telemetry) Snapshot() Metrics {
	t.metrics.mu.RLock()
	defer t.metrics.mu.RUnlock()
	out := Metrics{
		RunsTotal:      t.metrics.RunsTotal,
		RunsFailed:     t.metrics.RunsFailed,
		TotalRunTime:   t.metrics.TotalRunTime,
		SourcesFound:   t.metrics.SourcesFound,
		LLMRequests:    make(map[string]int64, len(t.metrics.LLMRequests)),
		LLMTokens:      make(map[string]int64, len(t.metrics.LLMTokens)),
		SearchRequests: make(map[string]int64, len(t.metrics.SearchRequests)),
		SearchFailures: make(map[string]int64, len(t.metrics.SearchFailures)),
	}
	for k, v := range t.metrics.LLMRequests {
		out.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokens {
		out.LLMTokens[k] = v
	}
	for k, v := range t.metrics.SearchRequests {
		out.SearchRequests[k] = v
	}
	for k, v := range t.metrics.SearchFailures {
		out.SearchFailures[k] = v
	}
	return out
}

// TotalCost returns the accumulated LLM spend.
func (t *Telemetry) TotalCost() float64 {
	t.costs.mu.RLock()
	defer t.costs.mu.RUnlock()
	return t.costs.TotalCost
}

func (t *Telemetry) reportLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m := t.Snapshot()
		t.logger.Printf("runs=%d failed=%d sources=%d cost=$%.4f",
			m.RunsTotal, m.RunsFailed, m.SourcesFound, t.TotalCost())
	}
}
