package agent

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/park285/cheese-arena/internal/domain"
	"google.golang.org/api/option"
)

func newStubGemini(t *testing.T, status int, body string) (*geminiProvider, *atomic.Value) {
	t.Helper()
	var lastBody atomic.Value
	lastBody.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		lastBody.Store(string(b))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	p := newGeminiProvider(option.WithEndpoint(srv.URL), option.WithHTTPClient(srv.Client()))
	t.Cleanup(func() { p.Close() })
	return p, &lastBody
}

func geminiAgent(key string) domain.AgentDescriptor {
	return domain.AgentDescriptor{Name: "models/gemini-1.5-flash", Credential: key, Provider: ProviderGemini}
}

func TestGeminiComplete(t *testing.T) {
	p, body := newStubGemini(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Nf"},{"text":"3"}]}}]}`)

	got, err := p.Complete(context.Background(), Request{Agent: geminiAgent("g-key"), Prompt: "Your move as White"})
	if err != nil || got != "Nf3" {
		t.Fatalf("Complete = %q, %v", got, err)
	}
	if !strings.Contains(body.Load().(string), "Your move as White") {
		t.Fatalf("prompt not sent: %s", body.Load())
	}

	if _, err := p.Complete(context.Background(), Request{Agent: geminiAgent("g-key"), Prompt: "again"}); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if len(p.clients) != 1 {
		t.Fatalf("clients = %d, want one per key", len(p.clients))
	}
}

func TestGeminiEmptyCandidate(t *testing.T) {
	p, _ := newStubGemini(t, http.StatusOK, `{}`)
	_, err := p.Complete(context.Background(), Request{Agent: geminiAgent("g-key"), Prompt: "play"})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestGeminiHTTPError(t *testing.T) {
	p, _ := newStubGemini(t, http.StatusBadRequest, `{"error":{"code":400,"message":"bad model","status":"INVALID_ARGUMENT"}}`)
	_, err := p.Complete(context.Background(), Request{Agent: geminiAgent("g-key"), Prompt: "play"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	p := newGeminiProvider()
	if _, err := p.Complete(context.Background(), Request{Agent: geminiAgent(" "), Prompt: "play"}); err == nil {
		t.Fatal("expected missing key error")
	}
	if len(p.clients) != 0 {
		t.Fatalf("clients = %d", len(p.clients))
	}
}
