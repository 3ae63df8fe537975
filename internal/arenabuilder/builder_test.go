package arenabuilder

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/store"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		Agents: [2]domain.AgentDescriptor{
			{Name: "alpha", Credential: "k1", Endpoint: "http://127.0.0.1:1/v1/chat/completions"},
			{Name: "beta", Credential: "k2", Endpoint: "http://127.0.0.1:1/v1/chat/completions"},
		},
		DatabaseURL:  "memory://",
		AgentRetries: 1,
		FallbackDir:  t.TempDir(),
		Games:        1,
	}
}

func TestNewRequiresDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseURL = ""
	if _, err := New(context.Background(), cfg, nil, Options{}); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestNewWiresMemoryDeps(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsAddr = "127.0.0.1:0"
	var out bytes.Buffer
	d, err := New(context.Background(), cfg, nil, Options{Out: &out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.Controller == nil || d.Agents == nil || d.Metrics == nil || d.Stats == nil {
		t.Fatalf("missing deps: %+v", d)
	}
	if d.Redis != nil || d.Live != nil || d.Feed != nil {
		t.Fatalf("optional deps should stay nil")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewStatsWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	d, err := NewStats(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewStats: %v", err)
	}
	defer d.Close()
	if d.Live == nil || d.StatsCache == nil {
		t.Fatalf("redis-backed stores not wired")
	}
	if d.Controller != nil {
		t.Fatalf("stats build must not create a controller")
	}
	if _, err := d.Stats.Summary(context.Background(), store.Filter{}); err != nil {
		t.Fatalf("Summary: %v", err)
	}
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"
	if _, err := NewStats(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected redis ping failure")
	}
}
