package llm

import (
	"context"
	"strings"
)

// refusalPhrases are matched (case-insensitively) against the head of a
// response to detect content-policy refusals. Multilingual, since backends
// sometimes refuse in the language of the reviewed code's comments.
var refusalPhrases = []string{
	"i cannot",
	"i can't",
	"i can not",
	"i'm sorry",
	"i am sorry",
	"i'm unable",
	"i am unable",
	"i won't",
	"i will not",
	"as an ai",
	"nie mogę",
	"no puedo",
	"je ne peux pas",
	"ich kann nicht",
	"não posso",
	"я не могу",
}

// refusalWindow is how many leading characters are inspected for a refusal.
const refusalWindow = 200

// IsRefusal reports whether text starts with a known refusal phrase.
func IsRefusal(text string) bool {
	head := strings.ToLower(strings.TrimSpace(text))
	if len(head) > refusalWindow {
		head = head[:refusalWindow]
	}
	for _, phrase := range refusalPhrases {
		if strings.Contains(head, phrase) {
			return true
		}
	}
	return false
}

// GenerateOpts selects and parameterizes one generation. Backend and Model are
// optional; CustomBaseURL/APIKey describe a request-scoped custom backend.
type GenerateOpts struct {
	Backend       string
	Model         string
	Temperature   float64
	MaxTokens     int
	CustomBaseURL string
	APIKey        string
}

// Result is a successful generation, reporting which backend and model
// actually produced the text (fallback may change them from the request).
type Result struct {
	Text    string
	Backend string
	Model   string
}

// Gateway resolves a backend for each request and retries refusals, first on
// the same backend, then across alternates. Transport failures propagate as
// *UpstreamError without retry.
type Gateway struct {
	registry       *Registry
	defaultBackend string
}

// NewGateway creates a gateway over an explicitly constructed registry.
func NewGateway(registry *Registry, defaultBackend string) *Gateway {
	return &Gateway{registry: registry, defaultBackend: defaultBackend}
}

// Generate runs one generation with backend resolution and refusal fallback.
// The resolution order is: explicit request, configured default, a best-effort
// local backend, then the offline backend — so the call never fails for want
// of a backend, only for transport errors.
func (g *Gateway) Generate(ctx context.Context, messages []Message, opts GenerateOpts) (*Result, error) {
	backend, err := g.resolve(opts)
	if err != nil {
		return nil, err
	}

	req := Request{
		Messages:    messages,
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	text, err := backend.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if !IsRefusal(text) {
		return &Result{Text: text, Backend: backend.Name(), Model: opts.Model}, nil
	}

	// A refusal is often wording-specific: one retry on the same backend
	// before failing over.
	retry, err := backend.Generate(ctx, req)
	if err == nil && !IsRefusal(retry) {
		return &Result{Text: retry, Backend: backend.Name(), Model: opts.Model}, nil
	}

	// Fail over across alternates in registration order. Alternates that
	// error or are unavailable are skipped; only a non-refusing success
	// stops the scan.
	for _, name := range g.registry.Names() {
		if name == backend.Name() {
			continue
		}
		alt, getErr := g.registry.Get(name)
		if getErr != nil || !alt.IsAvailable() {
			continue
		}
		altReq := req
		altReq.Model = "" // alternate uses its own default model
		altText, altErr := alt.Generate(ctx, altReq)
		if altErr != nil || IsRefusal(altText) {
			continue
		}
		return &Result{Text: altText, Backend: alt.Name(), Model: altReq.Model}, nil
	}

	// Everything refused: surface the original refusal text rather than an
	// error, so the caller records it like any other unparseable output.
	return &Result{Text: text, Backend: backend.Name(), Model: opts.Model}, nil
}

// resolve picks the backend for a request.
func (g *Gateway) resolve(opts GenerateOpts) (Backend, error) {
	// Request-scoped custom backend (OpenAI-compatible endpoint).
	if opts.CustomBaseURL != "" {
		return NewOpenAIBackend("custom", opts.CustomBaseURL, opts.APIKey, opts.Model), nil
	}

	if opts.Backend != "" {
		b, err := g.registry.Get(opts.Backend)
		if err != nil {
			return nil, err
		}
		if b.IsAvailable() {
			return b, nil
		}
	}

	if g.defaultBackend != "" {
		if b, err := g.registry.Get(g.defaultBackend); err == nil && b.IsAvailable() {
			return b, nil
		}
	}

	// Best-effort local backend.
	if b, err := g.registry.Get(BackendOllama); err == nil && b.IsAvailable() {
		return b, nil
	}

	// The offline backend always succeeds.
	return g.registry.Get(BackendOffline)
}
