package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/valyala/fasthttp"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderGeneric   = "generic"
	ProviderEngine    = "uci"

	anthropicVersion = "2023-06-01"
	maxTokens        = 300
	temperature      = 0.7
)

var (
	ErrTransport = errors.New("agent transport failure")
	ErrDecode    = errors.New("agent response not understood")
)

// StatusError is a non-2xx reply from an agent endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent api error: status=%d body=%s", e.Code, e.Body)
}

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return shouldRetryStatus(se.Code)
	}
	return err != nil
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}

// ResolveProvider returns the configured provider or guesses one from the endpoint.
func ResolveProvider(a domain.AgentDescriptor) string {
	if p := strings.ToLower(strings.TrimSpace(a.Provider)); p != "" {
		return p
	}
	return DetectProvider(a.Endpoint)
}

func DetectProvider(endpoint string) string {
	e := strings.ToLower(endpoint)
	switch {
	case strings.HasPrefix(e, "uci:"):
		return ProviderEngine
	case strings.Contains(e, "openai"):
		return ProviderOpenAI
	case strings.Contains(e, "anthropic"):
		return ProviderAnthropic
	case strings.Contains(e, "generativelanguage.googleapis.com"), strings.HasPrefix(e, "gemini:"):
		return ProviderGemini
	default:
		return ProviderGeneric
	}
}

type wireFormat interface {
	headers(a domain.AgentDescriptor) map[string]string
	body(req Request) any
	decode(raw []byte) (string, error)
}

var httpFormats = map[string]wireFormat{
	ProviderOpenAI:    openAIFormat{},
	ProviderAnthropic: anthropicFormat{},
	ProviderGeneric:   genericFormat{},
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct{}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (openAIFormat) headers(a domain.AgentDescriptor) map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.Credential}
}

func (openAIFormat) body(req Request) any {
	return openAIRequest{
		Model:       req.Agent.Name,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: temperature,
	}
}

func (openAIFormat) decode(raw []byte) (string, error) {
	var r openAIResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrDecode)
	}
	return r.Choices[0].Message.Content, nil
}

type anthropicFormat struct{}

type anthropicRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (anthropicFormat) headers(a domain.AgentDescriptor) map[string]string {
	return map[string]string{
		"x-api-key":         a.Credential,
		"anthropic-version": anthropicVersion,
	}
}

func (anthropicFormat) body(req Request) any {
	return anthropicRequest{
		Model:       req.Agent.Name,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

func (anthropicFormat) decode(raw []byte) (string, error) {
	var r anthropicResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(r.Content) == 0 {
		return "", fmt.Errorf("%w: empty content", ErrDecode)
	}
	return r.Content[0].Text, nil
}

type genericFormat struct{}

type genericRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

func (genericFormat) headers(a domain.AgentDescriptor) map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.Credential}
}

func (genericFormat) body(req Request) any {
	return genericRequest{Model: req.Agent.Name, Prompt: req.Prompt, MaxTokens: maxTokens, Temperature: temperature}
}

// Generic endpoints answer with "text" or "output"; neither present is an empty reply.
func (genericFormat) decode(raw []byte) (string, error) {
	var r struct {
		Text   *string `json:"text"`
		Output *string `json:"output"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch {
	case r.Text != nil:
		return *r.Text, nil
	case r.Output != nil:
		return *r.Output, nil
	default:
		return "", nil
	}
}

type httpProvider struct {
	client *Client
	format wireFormat
}

func (p *httpProvider) Complete(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(p.format.body(req))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	hreq := fasthttp.AcquireRequest()
	hresp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(hreq)
		fasthttp.ReleaseResponse(hresp)
	}()

	hreq.Header.SetMethod(fasthttp.MethodPost)
	hreq.SetRequestURI(req.Agent.Endpoint)
	hreq.Header.SetContentType("application/json")
	for k, v := range p.format.headers(req.Agent) {
		if strings.TrimSpace(v) != "" {
			hreq.Header.Set(k, v)
		}
	}
	hreq.SetBody(payload)

	deadline := p.client.computeDeadline(ctx)
	if err := p.client.http.DoDeadline(hreq, hresp, deadline); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	status := hresp.StatusCode()
	if status < 200 || status >= 300 {
		return "", &StatusError{Code: status, Body: truncate(string(hresp.Body()), 512)}
	}
	return p.format.decode(hresp.Body())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
