package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Backend name constants for registry lookups.
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendOllama    = "ollama"
	BackendOffline   = "offline"
)

// AnthropicBackend generates text through the Anthropic Messages API.
type AnthropicBackend struct {
	api          *anthropic.Client
	apiKey       string
	defaultModel string
}

// NewAnthropicBackend creates the backend with the given API key and default
// model. An empty key leaves the backend registered but unavailable.
func NewAnthropicBackend(apiKey, defaultModel string) *AnthropicBackend {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicBackend{
		api:          &client,
		apiKey:       apiKey,
		defaultModel: defaultModel,
	}
}

func (b *AnthropicBackend) Name() string { return BackendAnthropic }

func (b *AnthropicBackend) IsAvailable() bool { return b.apiKey != "" }

func (b *AnthropicBackend) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		System:    system,
		Messages:  messages,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := b.api.Messages.New(ctx, params)
	if err != nil {
		return "", upstreamErr(BackendAnthropic, err, "messages API: %v", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", upstreamErr(BackendAnthropic, nil, "no text content in API response")
	}
	return text, nil
}
