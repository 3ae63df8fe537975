package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-arena/internal/domain"
)

func newTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://:pw@cache.local/2")
	if err != nil {
		t.Fatalf("ParseRedisURL: %v", err)
	}
	if opts.Addr != "cache.local:6379" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := ParseRedisURL("http://cache.local"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestLiveStoreLifecycle(t *testing.T) {
	mr := newTestRedis(t)
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer rdb.Close()
	live := NewLiveStore(rdb)

	g := domain.NewGameRecord("20250301_120000", "uuid-1", "w", "b", time.Now())
	g.AppendMove(domain.MoveRecord{Color: domain.White, Agent: "w", SAN: "e4", FEN: "fen"})
	if err := live.Put(ctx, g); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ttl := mr.TTL("arena:game:20250301_120000"); ttl != 24*time.Hour {
		t.Fatalf("expected 24h ttl, got %v", ttl)
	}

	got, err := live.Get(ctx, g.ID)
	if err != nil || got == nil || len(got.Moves) != 1 {
		t.Fatalf("Get: %+v %v", got, err)
	}
	active, err := live.Active(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("Active: %d %v", len(active), err)
	}

	if err := live.Delete(ctx, g.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := live.Get(ctx, g.ID); got != nil {
		t.Fatalf("expected nil after delete")
	}
	if ok, _ := mr.SIsMember("arena:live", g.ID); ok {
		t.Fatalf("index still holds deleted id")
	}
}

func TestLiveStorePrunesExpired(t *testing.T) {
	mr := newTestRedis(t)
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer rdb.Close()
	live := NewLiveStore(rdb)

	if err := live.Put(ctx, domain.NewGameRecord("a", "u", "w", "b", time.Now())); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.Del("arena:game:a")
	active, err := live.Active(ctx)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active games, got %d (%v)", len(active), err)
	}
	if ok, _ := mr.SIsMember("arena:live", "a"); ok {
		t.Fatalf("expired id not pruned from index")
	}
}

func TestStatsCache(t *testing.T) {
	mr := newTestRedis(t)
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer rdb.Close()
	cache := NewStatsCache(rdb)

	f := Filter{Model: "gpt-4o", Result: ResultWin}
	var out map[string]int
	if ok, err := cache.Get(ctx, f, &out); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, f, map[string]int{"total": 3}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ok, err := cache.Get(ctx, f, &out); !ok || err != nil || out["total"] != 3 {
		t.Fatalf("expected hit, got ok=%v err=%v out=%v", ok, err, out)
	}
	if ok, _ := cache.Get(ctx, Filter{}, &out); ok {
		t.Fatalf("different filter should miss")
	}

	mr.FastForward(6 * time.Minute)
	if ok, _ := cache.Get(ctx, f, &out); ok {
		t.Fatalf("expected expiry after 5 minutes")
	}

	_ = cache.Set(ctx, f, map[string]int{"total": 1})
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if ok, _ := cache.Get(ctx, f, &out); ok {
		t.Fatalf("expected miss after invalidate")
	}
}
