package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"memento/internal/logging"
)

// HTTPDriverConfig configures an OpenAI-compatible chat-completions driver.
type HTTPDriverConfig struct {
	Engine  string
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Headers map[string]string
}

// httpDriver talks to any OpenAI-compatible /chat/completions endpoint.
type httpDriver struct {
	engine     string
	model      string
	apiKey     string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	logger     logging.Logger
}

// NewHTTPDriver constructs a chat-completions driver.
func NewHTTPDriver(config HTTPDriverConfig) Driver {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &httpDriver{
		engine:     config.Engine,
		model:      config.Model,
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		headers:    config.Headers,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("HTTPDriver"),
	}
}

func (d *httpDriver) Info() EngineInfo {
	return EngineInfo{Engine: d.engine, Model: d.model, Endpoint: d.baseURL}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (d *httpDriver) Complete(ctx context.Context, prompt string) (*Result, error) {
	body, err := json.Marshal(chatRequest{
		Model:    d.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}

	endpoint := d.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	}
	for k, v := range d.headers {
		httpReq.Header.Set(k, v)
	}

	d.logger.Debug("=== LLM Request ===")
	d.logger.Debug("URL: POST %s", endpoint)
	d.logger.Debug("Model: %s, prompt %d chars", d.model, len(prompt))

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completions returned %d: %s", resp.StatusCode, truncateBody(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode chat completions response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("chat completions error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat completions returned no choices")
	}

	result := &Result{Text: parsed.Choices[0].Message.Content}
	if parsed.Usage.PromptTokens > 0 || parsed.Usage.CompletionTokens > 0 {
		result.Usage = &Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		}
	}
	d.logger.Debug("=== LLM Response === %d chars, usage %d+%d",
		len(result.Text), parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	return result, nil
}

func truncateBody(data []byte) string {
	const maxPreview = 512
	preview := strings.TrimSpace(string(data))
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}
	return preview
}
