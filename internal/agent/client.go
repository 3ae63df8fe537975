package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Default move tokens sent when an agent cannot be reached.
const (
	DefaultWhiteMove = "e4"
	DefaultBlackMove = "e5"
)

var ErrUnknownProvider = errors.New("unknown agent provider")

type Request struct {
	Agent  domain.AgentDescriptor
	Prompt string
	Side   domain.Color
	// FEN and Moves (UCI) are only read by the engine provider.
	FEN   string
	Moves []string
}

type Reply struct {
	Text      string
	Attempts  int
	Defaulted bool
	Latency   time.Duration
	// LastErr is the final transport error when Defaulted is set.
	LastErr error
}

// Provider performs one request/response exchange with an agent backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Observer receives one callback per provider call.
type Observer interface {
	ObserveCall(agent, provider string, d time.Duration, err error)
}

type Client struct {
	http *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
	backoffBase    time.Duration
	backoffMax     time.Duration
	sleep          func(context.Context, time.Duration) error

	mu        sync.Mutex
	providers map[string]Provider

	logger   *zap.Logger
	observer Observer
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithBackoff sets the first retry delay; later delays double up to max.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = base
		if max > 0 {
			c.backoffMax = max
		}
	}
}

func WithSleeper(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithProvider registers or replaces the backend for a provider kind.
func WithProvider(kind string, p Provider) Option {
	return func(c *Client) { c.providers[strings.ToLower(kind)] = p }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 30 * time.Second,
		retryMax:       3,
		backoffBase:    5 * time.Second,
		backoffMax:     time.Minute,
		sleep:          sleepWithContext,
		providers:      make(map[string]Provider),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for kind, f := range httpFormats {
		if _, ok := c.providers[kind]; !ok {
			c.providers[kind] = &httpProvider{client: c, format: f}
		}
	}
	if _, ok := c.providers[ProviderGemini]; !ok {
		c.providers[ProviderGemini] = newGeminiProvider()
	}
	if _, ok := c.providers[ProviderEngine]; !ok {
		c.providers[ProviderEngine] = newEngineProvider(c.logger)
	}
	return c
}

// Close releases SDK clients and engine processes.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, p := range c.providers {
		if cl, ok := p.(interface{ Close() error }); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}

// Send asks the agent for a move. It retries transient failures with
// exponential backoff and, once attempts are exhausted, answers with the
// side's default move instead of an error.
func (c *Client) Send(ctx context.Context, req Request) Reply {
	start := time.Now()
	kind := ResolveProvider(req.Agent)
	p, err := c.provider(kind)
	if err != nil {
		c.logger.Error("agent_provider_missing", zap.String("agent", req.Agent.Name), zap.String("provider", kind))
		return Reply{Text: DefaultMove(req.Side), Defaulted: true, LastErr: err, Latency: time.Since(start)}
	}

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var (
		lastErr error
		made    int
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt
		text, err := c.call(ctx, p, kind, req)
		if err == nil {
			return Reply{Text: strings.TrimSpace(text), Attempts: attempt, Latency: time.Since(start)}
		}
		lastErr = err
		c.logger.Warn("agent_call_failed",
			zap.String("agent", req.Agent.Name),
			zap.String("provider", kind),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if attempt == attempts || !IsRetryable(err) {
			break
		}
		if sleepErr := c.sleep(ctx, c.backoffDuration(attempt)); sleepErr != nil {
			break
		}
	}

	def := DefaultMove(req.Side)
	c.logger.Warn("agent_default_move",
		zap.String("agent", req.Agent.Name),
		zap.String("side", string(req.Side)),
		zap.String("move", def),
		zap.Error(lastErr),
	)
	return Reply{Text: def, Attempts: made, Defaulted: true, Latency: time.Since(start), LastErr: lastErr}
}

// Check performs one call without retries or defaults.
func (c *Client) Check(ctx context.Context, agent domain.AgentDescriptor, prompt string) (string, error) {
	kind := ResolveProvider(agent)
	p, err := c.provider(kind)
	if err != nil {
		return "", err
	}
	return c.call(ctx, p, kind, Request{Agent: agent, Prompt: prompt, Side: domain.White})
}

func (c *Client) call(ctx context.Context, p Provider, kind string, req Request) (string, error) {
	callCtx, cancel := context.WithDeadline(ctx, c.computeDeadline(ctx))
	defer cancel()
	t0 := time.Now()
	text, err := p.Complete(callCtx, req)
	if c.observer != nil {
		c.observer.ObserveCall(req.Agent.Name, kind, time.Since(t0), err)
	}
	return text, err
}

func (c *Client) provider(kind string) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, kind)
	}
	return p, nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

// backoffDuration: base, 2*base, 4*base ... capped at backoffMax.
func (c *Client) backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	d := c.backoffBase * time.Duration(1<<uint(attempt-1))
	if c.backoffMax > 0 && d > c.backoffMax {
		return c.backoffMax
	}
	return d
}

func DefaultMove(side domain.Color) string {
	if side == domain.Black {
		return DefaultBlackMove
	}
	return DefaultWhiteMove
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
