package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultReadyTimeout = 4 * time.Second

var ErrNoBestMove = errors.New("engine returned no bestmove")

type Options struct {
	Threads    int
	HashMB     int
	SkillLevel int // 0-20, negative leaves the engine default
	Elo        int // 0 disables UCI_LimitStrength
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	Nodes          int
}

// Score is the last reported evaluation from the mover's point of view.
type Score struct {
	CP   int
	Mate int
}

type SearchResult struct {
	BestMove string
	Score    Score
	Depth    int
}

// Session owns one engine process speaking UCI over stdio.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	lines  chan lineResult

	mu     sync.Mutex
	search sync.Mutex
	closed bool
}

type lineResult struct {
	line string
	err  error
}

func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	s := newSession(stdin, stdout)
	s.cmd = cmd
	if err := s.handshake(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Attach runs the UCI handshake over an engine that is already running,
// e.g. one reached through a socket. Closing the session closes w.
func Attach(ctx context.Context, w io.WriteCloser, r io.Reader, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	s := newSession(w, r)
	if err := s.handshake(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// newSession wires a session over arbitrary pipes; the reader goroutine runs
// until the stream closes.
func newSession(w io.WriteCloser, r io.Reader) *Session {
	s := &Session{stdin: w, stdout: bufio.NewReader(r), lines: make(chan lineResult, 64)}
	go func() {
		for {
			line, err := s.stdout.ReadString('\n')
			s.lines <- lineResult{line: strings.TrimSpace(line), err: err}
			if err != nil {
				close(s.lines)
				return
			}
		}
	}()
	return s
}

func (s *Session) handshake(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()
	if err := s.send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	for _, cmd := range optionCommands(opt) {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return s.ensureReady(initCtx)
}

// NewGame resets engine state between games.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()
	return s.ensureReady(readyCtx)
}

// BestMove searches the position reached from startpos by moves (UCI).
func (s *Session) BestMove(ctx context.Context, moves []string, l Limits) (SearchResult, error) {
	s.search.Lock()
	defer s.search.Unlock()

	goCmd, err := goCommand(l)
	if err != nil {
		return SearchResult{}, err
	}
	if err := s.send(positionCommand(moves)); err != nil {
		return SearchResult{}, fmt.Errorf("send position: %w", err)
	}
	if err := s.send(goCmd); err != nil {
		return SearchResult{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout(l))
	defer cancel()

	var res SearchResult
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			_ = s.send("stop")
			return SearchResult{}, fmt.Errorf("read line: %w", err)
		}
		switch {
		case strings.HasPrefix(line, "info "):
			if depth, score, ok := parseInfo(line); ok {
				res.Depth, res.Score = depth, score
			}
		case strings.HasPrefix(line, "bestmove"):
			parts := strings.Fields(line)
			if len(parts) < 2 || parts[1] == "(none)" {
				return SearchResult{}, ErrNoBestMove
			}
			res.BestMove = parts[1]
			return res, nil
		}
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.stdin != nil {
		_, _ = io.WriteString(s.stdin, "quit\n")
		s.stdin.Close()
	}
	s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		_ = s.cmd.Process.Kill()
		return <-done
	}
}

func (s *Session) ensureReady(ctx context.Context) error {
	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	_, err := io.WriteString(s.stdin, msg+"\n")
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil && res.line == "" {
			return "", res.err
		}
		return res.line, nil
	}
}

func validateOptions(opt Options) error {
	if opt.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", opt.SkillLevel)
	}
	if opt.HashMB < 0 || opt.Threads < 0 || opt.Elo < 0 {
		return fmt.Errorf("negative engine option: %+v", opt)
	}
	return nil
}

func optionCommands(opt Options) []string {
	threads := opt.Threads
	if threads <= 0 {
		threads = 1
	}
	cmds := []string{fmt.Sprintf("setoption name Threads value %d", threads)}
	if opt.HashMB > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Hash value %d", opt.HashMB))
	}
	if opt.SkillLevel >= 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Skill Level value %d", opt.SkillLevel))
	}
	if opt.Elo > 0 {
		cmds = append(cmds,
			"setoption name UCI_LimitStrength value true",
			fmt.Sprintf("setoption name UCI_Elo value %d", opt.Elo),
		)
	}
	return cmds
}

func positionCommand(moves []string) string {
	if len(moves) == 0 {
		return "position startpos"
	}
	return "position startpos moves " + strings.Join(moves, " ")
}

func goCommand(l Limits) (string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.Nodes > 0 {
		args = append(args, "nodes", strconv.Itoa(l.Nodes))
	}
	if len(args) == 1 {
		return "", errors.New("no search limits specified")
	}
	return strings.Join(args, " "), nil
}

func searchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		return time.Duration(l.MoveTimeMillis+2000) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		d := time.Duration(l.Depth) * 300 * time.Millisecond
		return min(max(d, 6*time.Second), 20*time.Second)
	}
	return 6 * time.Second
}

func parseInfo(line string) (int, Score, bool) {
	parts := strings.Fields(line)
	var (
		depth int
		score Score
		found bool
	)
	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "depth":
			if i+1 < len(parts) {
				depth, _ = strconv.Atoi(parts[i+1])
				i++
			}
		case "score":
			if i+2 < len(parts) {
				v, err := strconv.Atoi(parts[i+2])
				if err == nil {
					switch parts[i+1] {
					case "cp":
						score, found = Score{CP: v}, true
					case "mate":
						score, found = Score{Mate: v}, true
					}
				}
				i += 2
			}
		case "pv":
			i = len(parts)
		}
	}
	return depth, score, found
}
