package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestRecorderExportsInstruments(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, "metrics-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown(ctx)

	r.ObserveCall("gpt-4o", "openai", 120*time.Millisecond, nil)
	r.ObserveCall("gpt-4o", "openai", 2*time.Second, errors.New("timeout"))
	r.RecordInvalidMove(ctx, "gpt-4o")
	r.RecordFallback(ctx, "gpt-4o")
	r.RecordGame(ctx, "0-1", "Checkmate")

	body := scrape(t, r.Handler())
	for _, want := range []string{
		"arena_agent_calls_total",
		"arena_agent_call_duration_seconds",
		"arena_invalid_moves_total",
		"arena_fallback_moves_total",
		"arena_games_total",
		`status="error"`,
		`reason="Checkmate"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q:\n%s", want, body)
		}
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveCall("a", "b", time.Second, nil)
	r.RecordInvalidMove(context.Background(), "a")
	r.RecordFallback(context.Background(), "a")
	r.RecordGame(context.Background(), "1-0", "Checkmate")
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestServe(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, "serve-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown(ctx)
	stop, err := Serve("127.0.0.1:0", r.Handler(), nil)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
