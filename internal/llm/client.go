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
)

// maxErrorBodyBytes bounds how much of a non-2xx response body is captured
// into the error string.
const maxErrorBodyBytes = 2000

// Client is a one-shot, non-streaming chat caller that auto-detects whether
// BaseURL speaks the Ollama-style or the OpenAI-style chat protocol.
type Client struct {
	BaseURL string
	Model   string
	APIKey  string
	HTTP    *http.Client
}

// NewClient builds a Client reusing a single *http.Client for connection
// pooling across requests.
func NewClient(baseURL, model, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		Model:   model,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) looksLikeOllama() bool {
	s := strings.ToLower(c.BaseURL)
	return strings.Contains(s, "11434") || strings.Contains(s, "ollama") || strings.HasSuffix(s, "/api/chat")
}

func normalizeBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

// OneShot calls the model with userText as the sole user message, shallow-
// merging extra as a top-level overlay on the request payload, and returns
// the trimmed assistant reply. An empty reply after trimming is an error.
func (c *Client) OneShot(ctx context.Context, userText string, extra map[string]any) (string, error) {
	if c.looksLikeOllama() {
		return c.ollamaChat(ctx, userText, extra)
	}
	return c.openAIChat(ctx, userText, extra)
}

func (c *Client) openAIChat(ctx context.Context, userText string, extra map[string]any) (string, error) {
	base := normalizeBaseURL(c.BaseURL)
	var url string
	switch {
	case strings.HasSuffix(base, "/v1/chat/completions"):
		url = base
	case strings.HasSuffix(base, "/v1"):
		url = base + "/chat/completions"
	default:
		url = base + "/v1/chat/completions"
	}

	payload := map[string]any{
		"model":    c.Model,
		"messages": []map[string]string{{"role": "user", "content": userText}},
	}
	mergeOverlay(payload, extra)

	headers := map[string]string{}
	if key := strings.TrimSpace(c.APIKey); key != "" {
		headers["Authorization"] = "Bearer " + key
	}

	body, err := c.post(ctx, url, payload, headers)
	if err != nil {
		return "", err
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}

	text := ""
	if len(decoded.Choices) > 0 {
		text = strings.TrimSpace(decoded.Choices[0].Message.Content)
	}
	if text == "" {
		return "", fmt.Errorf("empty model output")
	}
	return text, nil
}

func (c *Client) ollamaChat(ctx context.Context, userText string, extra map[string]any) (string, error) {
	base := normalizeBaseURL(c.BaseURL)
	url := base
	if !strings.HasSuffix(base, "/api/chat") {
		url = base + "/api/chat"
	}

	payload := map[string]any{
		"model":      c.Model,
		"messages":   []map[string]string{{"role": "user", "content": userText}},
		"stream":     false,
		"keep_alive": "5m",
	}
	mergeOverlay(payload, extra)

	body, err := c.post(ctx, url, payload, nil)
	if err != nil {
		return "", err
	}

	var decoded struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	text := strings.TrimSpace(decoded.Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty model output")
	}
	return text, nil
}

// mergeOverlay shallow-merges extra's top-level keys into payload, overriding
// any colliding base key.
func mergeOverlay(payload map[string]any, extra map[string]any) {
	for k, v := range extra {
		payload[k] = v
	}
}

func (c *Client) post(ctx context.Context, url string, payload map[string]any, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		truncated := body
		if len(truncated) > maxErrorBodyBytes {
			truncated = truncated[:maxErrorBodyBytes]
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncated)
	}

	return body, nil
}
