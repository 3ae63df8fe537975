package arenabuilder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/agent"
	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/spectate"
	"github.com/park285/cheese-arena/internal/stats"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceName = "chess-arena"

type Deps struct {
	Config     *config.AppConfig
	Catalog    *msgcat.Catalog
	Agents     *agent.Client
	Repo       store.Repository
	Redis      *redis.Client
	Live       *store.LiveStore
	StatsCache *store.StatsCache
	Feed       *spectate.Feed
	Metrics    *metrics.Recorder
	Controller *arena.Controller
	Stats      *stats.Service

	closers []func(context.Context) error
}

// Options control the human-facing side of a build.
type Options struct {
	Out     io.Writer
	Spinner bool
}

// New wires everything a match needs. On error, whatever was already
// acquired is released before returning.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opt Options) (deps *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{Config: cfg}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	if err := d.openStorage(ctx, cfg, logger); err != nil {
		return nil, err
	}

	d.Catalog, err = msgcat.New(cfg.PromptDir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	// Metrics (optional)
	if strings.TrimSpace(cfg.MetricsAddr) != "" {
		d.Metrics, err = metrics.New(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		d.closers = append(d.closers, d.Metrics.Shutdown)
		stop, err := metrics.Serve(cfg.MetricsAddr, d.Metrics.Handler(), logger)
		if err != nil {
			return nil, fmt.Errorf("serve metrics: %w", err)
		}
		d.closers = append(d.closers, stop)
	}

	clientOpts := []agent.Option{
		agent.WithTimeout(cfg.AgentTimeout),
		agent.WithRetry(cfg.AgentRetries),
		agent.WithBackoff(cfg.AgentBackoff, 0),
		agent.WithLogger(logger),
	}
	if d.Metrics != nil {
		clientOpts = append(clientOpts, agent.WithObserver(d.Metrics))
	}
	d.Agents = agent.NewClient(clientOpts...)
	d.closers = append(d.closers, func(context.Context) error { return d.Agents.Close() })

	// Spectator feed (optional)
	if d.Feed = spectate.New(cfg.SpectatorWSURL, spectate.WithLogger(logger)); d.Feed != nil {
		d.closers = append(d.closers, func(context.Context) error { return d.Feed.Close() })
	}

	out := opt.Out
	if out == nil {
		out = os.Stdout
	}
	ctlOpts := []arena.Option{
		arena.WithLogger(logger),
		arena.WithTurnDelay(cfg.TurnDelay),
		arena.WithBoardDir(cfg.BoardDir),
		arena.WithNarrator(arena.NewConsoleNarrator(d.Catalog, out, opt.Spinner)),
	}
	if d.Metrics != nil {
		ctlOpts = append(ctlOpts, arena.WithMetrics(d.Metrics))
	}
	if d.Live != nil {
		ctlOpts = append(ctlOpts, arena.WithLiveStore(d.Live), arena.WithStatsCache(d.StatsCache))
	}
	if d.Feed != nil {
		ctlOpts = append(ctlOpts, arena.WithPublisher(d.Feed))
	}
	d.Controller, err = arena.NewController(d.Agents, d.Catalog, d.Repo, store.NewFileFallback(cfg.FallbackDir), ctlOpts...)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NewStats wires only what the stats command reads: repository, cache and
// the stats service.
func NewStats(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (deps *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{Config: cfg}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()
	if err := d.openStorage(ctx, cfg, logger); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Deps) openStorage(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	repo, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	d.Repo = repo
	d.closers = append(d.closers, func(context.Context) error { return repo.Close() })

	// Redis (optional): live snapshots + stats cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		d.Redis = rdb
		d.Live = store.NewLiveStore(rdb)
		d.StatsCache = store.NewStatsCache(rdb)
		d.closers = append(d.closers, func(context.Context) error { return rdb.Close() })
	}
	d.Stats = stats.NewService(d.Repo, d.StatsCache, logger)
	return nil
}

// Close releases resources in reverse acquisition order.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i](ctx))
	}
	d.closers = nil
	return errors.Join(errs...)
}
