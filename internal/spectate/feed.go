// Package spectate pushes game events to a websocket relay for live viewers.
package spectate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 2 * time.Second
	defaultRedialDelay  = 10 * time.Second
)

var ErrRedialPending = errors.New("spectator feed: redial pending")

// Feed is a best-effort publisher. A nil *Feed drops everything.
type Feed struct {
	url    string
	logger *zap.Logger

	dialTimeout  time.Duration
	writeTimeout time.Duration
	redialDelay  time.Duration
	now          func() time.Time

	mu         sync.Mutex
	conn       *websocket.Conn
	nextDialAt time.Time
}

type Option func(*Feed)

func WithTimeouts(dial, write time.Duration) Option {
	return func(f *Feed) {
		if dial > 0 {
			f.dialTimeout = dial
		}
		if write > 0 {
			f.writeTimeout = write
		}
	}
}

func WithRedialDelay(d time.Duration) Option {
	return func(f *Feed) { f.redialDelay = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.logger = l
		}
	}
}

// New returns nil when url is empty.
func New(url string, opts ...Option) *Feed {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	f := &Feed{
		url:          url,
		logger:       zap.NewNop(),
		dialTimeout:  defaultDialTimeout,
		writeTimeout: defaultWriteTimeout,
		redialDelay:  defaultRedialDelay,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Publish sends one event, dialing lazily. Failures drop the connection;
// the next dial waits for the redial delay.
func (f *Feed) Publish(ctx context.Context, ev arenadto.Event) error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		if err := f.dialLocked(ctx); err != nil {
			return err
		}
	}
	wctx, cancel := context.WithTimeout(ctx, f.writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, f.conn, ev); err != nil {
		f.logger.Debug("spectator_write_failed", zap.String("type", string(ev.Type)), zap.Error(err))
		_ = f.conn.Close(websocket.StatusGoingAway, "write failure")
		f.conn = nil
		f.nextDialAt = f.now().Add(f.redialDelay)
		return err
	}
	return nil
}

func (f *Feed) dialLocked(ctx context.Context) error {
	if f.now().Before(f.nextDialAt) {
		return ErrRedialPending
	}
	dctx, cancel := context.WithTimeout(ctx, f.dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, f.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      http.Header{"X-Arena-Client": []string{"chess-arena"}},
	})
	if err != nil {
		f.nextDialAt = f.now().Add(f.redialDelay)
		f.logger.Warn("spectator_dial_failed", zap.String("url", f.url), zap.Error(err))
		return err
	}
	// control frames only; inbound data closes the connection
	conn.CloseRead(context.Background())
	f.conn = conn
	f.logger.Info("spectator_connected", zap.String("url", f.url))
	return nil
}

func (f *Feed) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	defer func() { f.conn = nil }()
	return f.conn.Close(websocket.StatusNormalClosure, "close")
}
