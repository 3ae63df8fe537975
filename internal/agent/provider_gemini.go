package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiProvider talks to Gemini through the official SDK. One SDK client
// is kept per credential.
type geminiProvider struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
	opts    []option.ClientOption
}

// newGeminiProvider appends opts after the API key, e.g. an endpoint override.
func newGeminiProvider(opts ...option.ClientOption) *geminiProvider {
	return &geminiProvider{clients: make(map[string]*genai.Client), opts: opts}
}

func (p *geminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	client, err := p.client(ctx, req.Agent.Credential)
	if err != nil {
		return "", err
	}
	model := client.GenerativeModel(strings.TrimPrefix(req.Agent.Name, "models/"))
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(maxTokens)

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty gemini candidate", ErrDecode)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String(), nil
}

func (p *geminiProvider) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[apiKey]; ok {
		return c, nil
	}
	// The SDK client outlives this call; it must not inherit the per-call deadline.
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, p.opts...)
	c, err := genai.NewClient(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	p.clients[apiKey] = c
	return c, nil
}

func (p *geminiProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for k, c := range p.clients {
		errs = append(errs, c.Close())
		delete(p.clients, k)
	}
	return errors.Join(errs...)
}
