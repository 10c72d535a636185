package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// UsageRecorder receives per-call accounting. Satisfied by the telemetry
// package; may be nil.
type UsageRecorder interface {
	RecordLLMCall(model string, tokens int64, cost float64, err error)
}

// modelPricing is USD per 1M tokens, input/output.
type modelPricing struct {
	input  float64
	output float64
}

var pricing = map[string]modelPricing{
	"gpt-4o":       {input: 2.50, output: 10.00},
	"gpt-4o-mini":  {input: 0.15, output: 0.60},
	"gpt-4.1":      {input: 2.00, output: 8.00},
	"gpt-4.1-mini": {input: 0.40, output: 1.60},
	"o4-mini":      {input: 1.10, output: 4.40},
}

// OpenAI calls the chat completions API directly over net/http.
type OpenAI struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	recorder UsageRecorder
	logger   *log.Logger
}

// Option configures an OpenAI client.
type Option func(*OpenAI)

// WithBaseURL overrides the API endpoint, mainly for tests and proxies.
func WithBaseURL(u string) Option {
	return func(o *OpenAI) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithRecorder attaches usage accounting.
func WithRecorder(r UsageRecorder) Option {
	return func(o *OpenAI) { o.recorder = r }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenAI) { o.client = c }
}

// NewOpenAI creates a provider. The key is required; everything else has
// working defaults.
func NewOpenAI(apiKey string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is empty")
	}
	o := &OpenAI{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  log.New(log.Writer(), "[LLM] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate returns free-form text for a prompt.
func (o *OpenAI) Generate(ctx context.Context, prompt string, model string) (string, error) {
	return o.complete(ctx, prompt, model, nil)
}

// GenerateObject constrains the response to a JSON object and decodes it
// into out.
func (o *OpenAI) GenerateObject(ctx context.Context, prompt string, model string, out interface{}) error {
	raw, err := o.complete(ctx, prompt, model, &respFormat{Type: "json_object"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), out); err != nil {
		return fmt.Errorf("decoding model JSON: %w", err)
	}
	return nil
}

func (o *OpenAI) complete(ctx context.Context, prompt, model string, format *respFormat) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: format,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		o.record(model, 0, 0, err)
		return "", fmt.Errorf("calling openai: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		o.record(model, 0, 0, err)
		return "", fmt.Errorf("reading openai response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		err = fmt.Errorf("decoding openai response (status %d): %w", resp.StatusCode, err)
		o.record(model, 0, 0, err)
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		err = fmt.Errorf("openai status %d: %s", resp.StatusCode, msg)
		o.record(model, 0, 0, err)
		return "", err
	}
	if len(parsed.Choices) == 0 {
		err = fmt.Errorf("openai returned no choices")
		o.record(model, parsed.Usage.TotalTokens, 0, err)
		return "", err
	}

	o.record(model, parsed.Usage.TotalTokens, cost(model, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens), nil)
	return parsed.Choices[0].Message.Content, nil
}

func (o *OpenAI) record(model string, tokens int64, c float64, err error) {
	if o.recorder != nil {
		o.recorder.RecordLLMCall(model, tokens, c, err)
	}
}

func cost(model string, promptTokens, completionTokens int64) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1e6*p.input + float64(completionTokens)/1e6*p.output
}

// stripFences removes a markdown code fence around a JSON payload. Some
// models wrap JSON in ```json fences even in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
