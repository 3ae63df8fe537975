package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/park285/cheese-arena/internal/uci"
	"go.uber.org/zap"
)

// engineProvider lets a local UCI engine sit in for an agent. The endpoint
// is the binary path with optional query settings, e.g.
// "/usr/bin/stockfish?skill=5&movetime=200".
type engineProvider struct {
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*uci.Session
	open     func(ctx context.Context, path string, opt uci.Options) (*uci.Session, error)
}

type engineSpec struct {
	Path    string
	Options uci.Options
	Limits  uci.Limits
}

func newEngineProvider(logger *zap.Logger) *engineProvider {
	return &engineProvider{logger: logger, sessions: make(map[string]*uci.Session), open: uci.NewSession}
}

func parseEngineSpec(endpoint string) (engineSpec, error) {
	endpoint = strings.TrimSpace(endpoint)
	if len(endpoint) >= 6 && strings.EqualFold(endpoint[:6], "uci://") {
		endpoint = endpoint[6:]
	}
	if endpoint == "" {
		return engineSpec{}, errors.New("engine path is empty")
	}
	path, rawQuery, _ := strings.Cut(endpoint, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return engineSpec{}, fmt.Errorf("engine settings: %w", err)
	}
	spec := engineSpec{
		Path:    path,
		Options: uci.Options{SkillLevel: -1, HashMB: 16},
		Limits:  uci.Limits{MoveTimeMillis: 200},
	}
	ints := map[string]*int{
		"skill":    &spec.Options.SkillLevel,
		"elo":      &spec.Options.Elo,
		"hash":     &spec.Options.HashMB,
		"threads":  &spec.Options.Threads,
		"depth":    &spec.Limits.Depth,
		"movetime": &spec.Limits.MoveTimeMillis,
		"nodes":    &spec.Limits.Nodes,
	}
	for key, dst := range ints {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return engineSpec{}, fmt.Errorf("engine setting %s=%q: %w", key, v, err)
		}
		*dst = n
	}
	if q.Has("depth") && !q.Has("movetime") {
		spec.Limits.MoveTimeMillis = 0
	}
	return spec, nil
}

func (p *engineProvider) Complete(ctx context.Context, req Request) (string, error) {
	spec, err := parseEngineSpec(req.Agent.Endpoint)
	if err != nil {
		return "", err
	}
	s, err := p.session(ctx, req.Agent.Name, spec)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if len(req.Moves) < 2 {
		if err := s.NewGame(ctx); err != nil {
			p.drop(req.Agent.Name)
			return "", fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	res, err := s.BestMove(ctx, req.Moves, spec.Limits)
	if err != nil {
		p.drop(req.Agent.Name)
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	p.logger.Debug("engine_bestmove",
		zap.String("agent", req.Agent.Name),
		zap.String("move", res.BestMove),
		zap.Int("depth", res.Depth),
		zap.Int("score_cp", res.Score.CP),
		zap.Int("score_mate", res.Score.Mate),
	)
	return res.BestMove, nil
}

func (p *engineProvider) session(ctx context.Context, name string, spec engineSpec) (*uci.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[name]; ok {
		return s, nil
	}
	s, err := p.open(ctx, spec.Path, spec.Options)
	if err != nil {
		return nil, err
	}
	p.sessions[name] = s
	return s, nil
}

func (p *engineProvider) drop(name string) {
	p.mu.Lock()
	s, ok := p.sessions[name]
	delete(p.sessions, name)
	p.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

func (p *engineProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for name, s := range p.sessions {
		errs = append(errs, s.Close())
		delete(p.sessions, name)
	}
	return errors.Join(errs...)
}
