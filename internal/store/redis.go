package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	ttlLive  = 24 * time.Hour
	ttlStats = 5 * time.Minute
)

// ParseRedisURL accepts redis:// and rediss:// with an optional /db path.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return nil, err
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{
		Addr:     u.Hostname() + ":" + portStr,
		Username: u.User.Username(),
		Password: pass,
		DB:       db,
	}, nil
}

// NewRedisClient parses raw and pings the server.
func NewRedisClient(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := ParseRedisURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// LiveStore mirrors in-progress games so other processes can watch them.
type LiveStore struct{ rdb *redis.Client }

func NewLiveStore(rdb *redis.Client) *LiveStore { return &LiveStore{rdb: rdb} }

func (s *LiveStore) keyGame(id string) string { return "arena:game:" + strings.TrimSpace(id) }
func (s *LiveStore) keyIndex() string         { return "arena:live" }

func (s *LiveStore) Put(ctx context.Context, rec *domain.GameRecord) error {
	if rec == nil {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keyGame(rec.ID), raw, ttlLive).Err(); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, s.keyIndex(), rec.ID).Err(); err != nil {
		return err
	}
	_ = s.rdb.Expire(ctx, s.keyIndex(), ttlLive).Err()
	return nil
}

// Get returns nil without error when the game is unknown or expired.
func (s *LiveStore) Get(ctx context.Context, id string) (*domain.GameRecord, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.GameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *LiveStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.keyGame(id)).Err(); err != nil {
		return err
	}
	return s.rdb.SRem(ctx, s.keyIndex(), id).Err()
}

// Active lists indexed games, pruning ids whose snapshot expired.
func (s *LiveStore) Active(ctx context.Context) ([]*domain.GameRecord, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	var out []*domain.GameRecord
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			_ = s.rdb.SRem(ctx, s.keyIndex(), id).Err()
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// StatsCache holds computed summaries for a few minutes.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatsCache(rdb *redis.Client) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttlStats}
}

func (c *StatsCache) key(f Filter) string { return "arena:stats:" + f.CacheKey() }

// Get decodes a cached value into dst and reports whether it was present.
func (c *StatsCache) Get(ctx context.Context, f Filter, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(f)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *StatsCache) Set(ctx context.Context, f Filter, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(f), raw, c.ttl).Err()
}

// Invalidate drops every cached summary; called after a game is stored.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, "arena:stats:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
