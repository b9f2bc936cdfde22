package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxOutputTokens int
}

// DefaultGeminiConfig returns sensible defaults for the analytics pipeline:
// a small output budget and a per-request deadline shorter than the
// app-level guard in Caller.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-2.5-flash",
		Timeout:         18 * time.Second,
		MaxOutputTokens: 256,
	}
}

// GeminiClient implements Client against the Gemini REST API.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	httpClient      *http.Client
	log             *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewGeminiClient creates a Gemini client. A missing API key is a
// *ConfigError so callers can fail over to the rule-based intent path.
func NewGeminiClient(cfg GeminiConfig, log *zap.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Reason: "GEMINI_API_KEY missing"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 18 * time.Second
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &GeminiClient{
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		model:           model,
		maxOutputTokens: maxTokens,
		httpClient:      &http.Client{Timeout: timeout},
		log:             log,
	}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// Wire types for the generateContent endpoint.

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
			Role string `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate sends one generateContent request. It performs a single attempt;
// retry policy lives in Caller so the backoff schedule is owned in one place.
func (c *GeminiClient) Generate(ctx context.Context, parts []Part, cfg GenerationConfig) (*Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		timeout := c.httpClient.Timeout
		if timeout <= 0 {
			timeout = 18 * time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	startTime := time.Now()
	c.log.Debug("gemini generate",
		zap.String("model", c.model),
		zap.Int("parts", len(parts)),
		zap.String("format", cfg.ResponseFormat))

	// Keep at least 100ms between requests.
	c.mu.Lock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqParts := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		if len(p.Data) > 0 {
			reqParts = append(reqParts, geminiPart{InlineData: &geminiInlineData{
				MIMEType: p.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			}})
			continue
		}
		reqParts = append(reqParts, geminiPart{Text: p.Text})
	}

	temp := cfg.Temperature
	genCfg := geminiGenerationConfig{
		Temperature:     &temp,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	if genCfg.MaxOutputTokens <= 0 {
		genCfg.MaxOutputTokens = c.maxOutputTokens
	}
	if cfg.ResponseFormat == "json" {
		genCfg.ResponseMimeType = "application/json"
	}

	reqBody := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: reqParts}},
		GenerationConfig: genCfg,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("gemini request failed", zap.Duration("after", time.Since(startTime)), zap.Error(err))
		return nil, &UnavailableError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Reason: "failed to read response: " + err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{Detail: strings.TrimSpace(string(body))}
	case resp.StatusCode >= 500:
		return nil, &UnavailableError{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, body)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, body)
	}

	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if gr.Error != nil {
		return nil, fmt.Errorf("API error: %s", gr.Error.Message)
	}

	out := &Response{}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		out.PromptFeedback = &PromptFeedback{BlockReason: gr.PromptFeedback.BlockReason}
	}
	var fallback strings.Builder
	for _, cand := range gr.Candidates {
		c := Candidate{FinishReason: cand.FinishReason}
		for _, p := range cand.Content.Parts {
			c.Content.Parts = append(c.Content.Parts, ResponsePart{Text: p.Text})
			fallback.WriteString(p.Text)
		}
		out.Candidates = append(out.Candidates, c)
	}
	out.Text = strings.TrimSpace(fallback.String())

	c.log.Debug("gemini generate completed",
		zap.Duration("took", time.Since(startTime)),
		zap.Int("candidates", len(out.Candidates)),
		zap.Int("text_len", len(out.Text)))
	return out, nil
}
