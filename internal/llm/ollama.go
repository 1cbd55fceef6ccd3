package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaBackend talks to a local Ollama server. It serves as the best-effort
// local fallback when no hosted backend is configured.
type OllamaBackend struct {
	host         string
	defaultModel string
	client       *http.Client
}

// NewOllamaBackend creates a backend for the Ollama server at host
// (e.g. http://localhost:11434).
func NewOllamaBackend(host, defaultModel string) *OllamaBackend {
	return &OllamaBackend{
		host:         strings.TrimRight(host, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{},
	}
}

func (b *OllamaBackend) Name() string { return BackendOllama }

// IsAvailable probes the local server with a short timeout.
func (b *OllamaBackend) IsAvailable() bool {
	if b.host == "" {
		return false
	}
	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Get(b.host + "/api/tags")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

func (b *OllamaBackend) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}

	payload := ollamaChatRequest{Model: model, Stream: false}
	payload.Options.Temperature = req.Temperature
	payload.Options.NumPredict = req.MaxTokens
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", upstreamErr(BackendOllama, err, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", upstreamErr(BackendOllama, err, "request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", upstreamErr(BackendOllama, err, "read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", upstreamErr(BackendOllama, nil, "status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", upstreamErr(BackendOllama, err, "malformed response envelope: %v", err)
	}
	if parsed.Error != "" {
		return "", upstreamErr(BackendOllama, nil, "api error: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}
