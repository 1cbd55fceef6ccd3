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

// OpenAIBackend speaks the OpenAI-compatible chat completions protocol. It
// covers hosted endpoints and self-hosted gateways alike; the name is
// configurable so a request-scoped custom endpoint registers as "custom".
type OpenAIBackend struct {
	name         string
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

// NewOpenAIBackend creates a backend for an OpenAI-compatible endpoint.
func NewOpenAIBackend(name, baseURL, apiKey, defaultModel string) *OpenAIBackend {
	return &OpenAIBackend{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       &http.Client{},
	}
}

func (b *OpenAIBackend) Name() string { return b.name }

func (b *OpenAIBackend) IsAvailable() bool { return b.baseURL != "" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}

	payload := chatRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", upstreamErr(b.name, err, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", upstreamErr(b.name, err, "request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", upstreamErr(b.name, err, "read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", upstreamErr(b.name, nil, "status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", upstreamErr(b.name, err, "malformed response envelope: %v", err)
	}
	if parsed.Error != nil {
		return "", upstreamErr(b.name, nil, "api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", upstreamErr(b.name, nil, "no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// probeTimeout bounds availability checks for local HTTP backends.
const probeTimeout = 2 * time.Second
