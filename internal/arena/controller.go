// Package arena runs games between two agents: prompting, move
// interpretation, termination and persistence.
package arena

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/agent"
	"github.com/park285/cheese-arena/internal/chess"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/render"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

var (
	ErrGameInProgress = errors.New("a game is already in progress")
	ErrInvalidAgent   = errors.New("agent descriptor is incomplete")
)

// Mover asks an agent for its next move; *agent.Client implements it.
type Mover interface {
	Send(ctx context.Context, req agent.Request) agent.Reply
}

type Recorder interface {
	RecordInvalidMove(ctx context.Context, agent string)
	RecordFallback(ctx context.Context, agent string)
	RecordGame(ctx context.Context, result, reason string)
}

type LiveStore interface {
	Put(ctx context.Context, rec *domain.GameRecord) error
	Delete(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(ctx context.Context, ev arenadto.Event) error
}

type FallbackWriter interface {
	Write(rec *domain.GameRecord) (string, error)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Controller struct {
	mover    Mover
	interp   *chess.Interpreter
	catalog  *msgcat.Catalog
	repo     store.Repository
	fallback FallbackWriter

	live     LiveStore
	feed     Publisher
	metrics  Recorder
	cache    CacheInvalidator
	narrator Narrator
	logger   *zap.Logger

	turnDelay time.Duration
	boardDir  string

	coin    func() bool
	sleep   func(time.Duration)
	now     func() time.Time
	newUUID func() string

	mu    sync.Mutex
	state State
}

type Option func(*Controller)

func WithTurnDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.turnDelay = d
		}
	}
}

// WithCoin overrides the color draw; true gives the first agent White.
func WithCoin(fn func() bool) Option {
	return func(c *Controller) {
		if fn != nil {
			c.coin = fn
		}
	}
}

func WithSleep(fn func(time.Duration)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(c *Controller) {
		if fn != nil {
			c.now = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithNarrator(n Narrator) Option {
	return func(c *Controller) {
		if n != nil {
			c.narrator = n
		}
	}
}

func WithLiveStore(s LiveStore) Option { return func(c *Controller) { c.live = s } }

func WithPublisher(p Publisher) Option { return func(c *Controller) { c.feed = p } }

func WithMetrics(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.metrics = r
		}
	}
}

func WithStatsCache(ci CacheInvalidator) Option { return func(c *Controller) { c.cache = ci } }

func WithBoardDir(dir string) Option {
	return func(c *Controller) { c.boardDir = strings.TrimSpace(dir) }
}

func NewController(mover Mover, catalog *msgcat.Catalog, repo store.Repository, fallback FallbackWriter, opts ...Option) (*Controller, error) {
	if mover == nil || catalog == nil || repo == nil || fallback == nil {
		return nil, fmt.Errorf("arena: mover, catalog, repository and fallback are required")
	}
	c := &Controller{
		mover:     mover,
		interp:    chess.NewInterpreter(),
		catalog:   catalog,
		repo:      repo,
		fallback:  fallback,
		narrator:  nopNarrator{},
		metrics:   nopRecorder{},
		logger:    zap.NewNop(),
		turnDelay: time.Second,
		coin:      cryptoCoin,
		sleep:     time.Sleep,
		now:       time.Now,
		newUUID:   uuid.NewString,
		state:     StateNotStarted,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Play runs one game to completion. The returned record is always
// concluded; persistence problems are logged, never returned.
func (c *Controller) Play(ctx context.Context, first, second domain.AgentDescriptor) (*domain.GameRecord, error) {
	if err := validateAgent(first); err != nil {
		return nil, err
	}
	if err := validateAgent(second); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.state == StateInProgress {
		c.mu.Unlock()
		return nil, ErrGameInProgress
	}
	c.state = StateInProgress
	c.mu.Unlock()

	white, black := first, second
	if !c.coin() {
		white, black = second, first
	}
	started := c.now()
	rec := domain.NewGameRecord(started.Format(domain.GameIDLayout), c.newUUID(), white.Name, black.Name, started)
	agents := map[domain.Color]domain.AgentDescriptor{domain.White: white, domain.Black: black}

	c.logger.Info("arena_game_start",
		zap.String("game_id", rec.ID),
		zap.String("white", white.Name),
		zap.String("black", black.Name),
	)
	c.narrator.Started(rec)
	c.publish(ctx, arenadto.Event{Type: arenadto.EventGameStart, GameID: rec.ID, At: started, White: white.Name, Black: black.Name})
	c.snapshot(ctx, rec)

	pos := chess.NewPosition()
	for !chess.IsTerminal(pos) {
		if err := ctx.Err(); err != nil {
			c.abort(rec, err)
			break
		}
		next, err := c.turn(ctx, rec, pos, agents[pos.SideToMove()])
		if err != nil {
			c.abort(rec, err)
			break
		}
		pos = next
		c.sleep(c.turnDelay)
	}
	if !rec.Concluded() {
		conclude(rec, pos, c.now())
	}

	if rec.IsError() {
		c.setState(StateErrorTerminated)
	} else {
		c.setState(StateCompleted)
	}
	// 중단된 게임도 저장은 끝까지 한다.
	c.finish(context.WithoutCancel(ctx), rec, pos)
	return rec, nil
}

// PlayMatch plays games in sequence between a and b, stopping early when ctx ends.
func (c *Controller) PlayMatch(ctx context.Context, a, b domain.AgentDescriptor, games int) ([]*domain.GameRecord, error) {
	if games <= 0 {
		games = 1
	}
	out := make([]*domain.GameRecord, 0, games)
	for i := 0; i < games; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := c.Play(ctx, a, b)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// turn performs one agent exchange and returns the new position.
func (c *Controller) turn(ctx context.Context, rec *domain.GameRecord, pos *chess.Position, ag domain.AgentDescriptor) (*chess.Position, error) {
	side := pos.SideToMove()
	prompt, err := c.prompt(rec, pos, side)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	done := c.narrator.Thinking(ag.Name, side)
	reply := c.mover.Send(ctx, agent.Request{Agent: ag, Prompt: prompt, Side: side, FEN: pos.FEN(), Moves: pos.History()})
	done()
	// 취소된 응답은 기본 수로 두지 않는다
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply.Defaulted {
		c.narrator.Defaulted(ag.Name, reply)
	}

	in := c.interp.Interpret(reply.Text, pos)
	if !in.OK() {
		rec.NoteInvalidMove()
		c.metrics.RecordInvalidMove(ctx, ag.Name)
		c.logger.Info("arena_invalid_move",
			zap.String("game_id", rec.ID),
			zap.String("agent", ag.Name),
			zap.String("candidate", in.Candidate),
			zap.Int("invalid_moves", rec.InvalidMoveCount),
		)
		c.narrator.Invalid(ag.Name, in.Candidate, chess.LegalMovesSAN(pos), pos.Draw())

		in, err = c.interp.Fallback(in.Candidate, pos)
		if err != nil {
			return nil, err
		}
		c.metrics.RecordFallback(ctx, ag.Name)
		c.narrator.Fallback(ag.Name, in.Move.SAN)
	}

	next, err := chess.Apply(pos, in.Move)
	if err != nil {
		return nil, err
	}
	mv := domain.MoveRecord{
		Color:    side,
		Agent:    ag.Name,
		SAN:      in.Move.SAN,
		UCI:      in.Move.UCI,
		FEN:      next.FEN(),
		Fallback: in.UsedFallback,
	}
	rec.AppendMove(mv)
	c.logger.Debug("arena_move",
		zap.String("game_id", rec.ID),
		zap.Int("ply", len(rec.Moves)),
		zap.String("agent", ag.Name),
		zap.String("san", mv.SAN),
		zap.Bool("fallback", mv.Fallback),
		zap.Int("attempts", reply.Attempts),
		zap.Duration("latency", reply.Latency),
	)
	c.narrator.Moved(mv)
	c.publish(ctx, arenadto.Event{
		Type: arenadto.EventMove, GameID: rec.ID, At: c.now(),
		Ply: len(rec.Moves), Color: string(side), Agent: ag.Name,
		SAN: mv.SAN, UCI: mv.UCI, FEN: mv.FEN, Fallback: mv.Fallback,
	})
	c.snapshot(ctx, rec)
	return next, nil
}

func (c *Controller) prompt(rec *domain.GameRecord, pos *chess.Position, side domain.Color) (string, error) {
	if len(rec.Moves) == 0 {
		return c.catalog.Opening(side.Title())
	}
	return c.catalog.NextTurn(side.Title(), pos.FEN(), rec.SANHistory())
}

func (c *Controller) abort(rec *domain.GameRecord, cause error) {
	if err := rec.Abort(cause.Error(), c.now()); err != nil {
		c.logger.Error("arena_abort_failed", zap.String("game_id", rec.ID), zap.Error(err))
		return
	}
	c.logger.Error("arena_game_aborted", zap.String("game_id", rec.ID), zap.Error(cause))
}

// conclude classifies a terminal position. The winner is the side that
// is not to move in a checkmate.
func conclude(rec *domain.GameRecord, pos *chess.Position, at time.Time) {
	switch {
	case chess.IsCheckmate(pos):
		winner := pos.SideToMove().Opponent()
		_ = rec.Conclude(chess.Outcome(pos), rec.AgentFor(winner), domain.ReasonCheckmate, at)
	case chess.IsStalemate(pos):
		_ = rec.Conclude(domain.ResultDraw, "", domain.ReasonStalemate, at)
	case chess.IsInsufficientMaterial(pos):
		_ = rec.Conclude(domain.ResultDraw, "", domain.ReasonInsufficientMaterial, at)
	default:
		_ = rec.Conclude(domain.ResultDraw, "", domain.ReasonOtherDraw, at)
	}
}

// finish runs the best-effort side effects, then persists exactly once.
func (c *Controller) finish(ctx context.Context, rec *domain.GameRecord, pos *chess.Position) {
	c.logger.Info("arena_game_end",
		zap.String("game_id", rec.ID),
		zap.String("result", rec.Result),
		zap.String("winner", rec.Winner),
		zap.String("reason", rec.TerminationReason),
		zap.Int("moves", len(rec.Moves)),
		zap.Int("invalid_moves", rec.InvalidMoveCount),
	)
	c.narrator.Finished(rec)
	c.metrics.RecordGame(ctx, rec.Result, reasonLabel(rec))
	c.publish(ctx, arenadto.Event{
		Type: arenadto.EventGameEnd, GameID: rec.ID, At: rec.EndedAt,
		Result: rec.Result, Winner: rec.Winner, Reason: rec.TerminationReason, InvalidMoves: rec.InvalidMoveCount,
	})
	if c.live != nil {
		if err := c.live.Delete(ctx, rec.ID); err != nil {
			c.logger.Warn("arena_live_delete_failed", zap.String("game_id", rec.ID), zap.Error(err))
		}
	}
	c.renderBoard(ctx, rec, pos)
	c.persist(ctx, rec)
}

func (c *Controller) persist(ctx context.Context, rec *domain.GameRecord) {
	err := c.repo.InsertGame(ctx, rec)
	if err == nil {
		c.narrator.Saved(rec)
		if c.cache != nil {
			if err := c.cache.Invalidate(ctx); err != nil {
				c.logger.Warn("arena_stats_invalidate_failed", zap.Error(err))
			}
		}
		return
	}
	c.logger.Error("arena_save_failed", zap.String("game_id", rec.ID), zap.Error(err))
	path, ferr := c.fallback.Write(rec)
	if ferr != nil {
		c.logger.Error("arena_fallback_write_failed", zap.String("game_id", rec.ID), zap.Error(ferr))
	} else {
		c.logger.Warn("arena_fallback_written", zap.String("game_id", rec.ID), zap.String("path", path))
	}
	c.narrator.SaveFailed(rec, err, path)
}

func (c *Controller) renderBoard(ctx context.Context, rec *domain.GameRecord, pos *chess.Position) {
	if c.boardDir == "" {
		return
	}
	var last string
	if n := len(rec.Moves); n > 0 {
		last = rec.Moves[n-1].UCI
	}
	title := fmt.Sprintf("%s vs %s  %s", rec.WhiteAgent, rec.BlackAgent, rec.Result)
	png, err := render.RenderPNG(ctx, pos.FEN(), render.Options{LastMove: last, Title: title})
	if err == nil {
		var path string
		if path, err = render.WriteSnapshot(c.boardDir, rec.ID, png); err == nil {
			c.logger.Info("arena_board_written", zap.String("game_id", rec.ID), zap.String("path", path))
			return
		}
	}
	c.logger.Warn("arena_board_render_failed", zap.String("game_id", rec.ID), zap.Error(err))
}

func (c *Controller) publish(ctx context.Context, ev arenadto.Event) {
	if c.feed == nil {
		return
	}
	if err := c.feed.Publish(ctx, ev); err != nil {
		c.logger.Debug("arena_publish_failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func (c *Controller) snapshot(ctx context.Context, rec *domain.GameRecord) {
	if c.live == nil {
		return
	}
	if err := c.live.Put(ctx, rec); err != nil {
		c.logger.Warn("arena_live_put_failed", zap.String("game_id", rec.ID), zap.Error(err))
	}
}

// reasonLabel keeps metric cardinality bounded for error reasons.
func reasonLabel(rec *domain.GameRecord) string {
	if rec.IsError() {
		return "error"
	}
	return rec.TerminationReason
}

func validateAgent(a domain.AgentDescriptor) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidAgent)
	}
	return nil
}

func cryptoCoin() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()&1 == 0
	}
	return b[0]&1 == 0
}
