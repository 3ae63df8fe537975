package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/cheese-arena/internal/domain"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	sqliteTimeLayout = "2006-01-02 15:04:05.000000000"
)

var (
	//go:embed schema/postgres.sql
	postgresSchema string
	//go:embed schema/sqlite.sql
	sqliteSchema string
)

// SQLRepository stores games in ai_chess_match_data.
type SQLRepository struct {
	db      *sql.DB
	dialect string
	logger  *zap.Logger
}

// Open picks the backend from the URL scheme: postgres(ql)://, sqlite://
// or memory://. SQL backends are pinged and migrated before returning.
func Open(ctx context.Context, rawURL string, logger *zap.Logger) (Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw := strings.TrimSpace(rawURL)
	switch {
	case raw == "":
		return nil, errors.New("database url is empty")
	case strings.HasPrefix(raw, "memory:"):
		return NewMemoryRepository(), nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return OpenSQL(ctx, DialectPostgres, raw, logger)
	case strings.HasPrefix(raw, "sqlite:"):
		dsn, err := sqliteDSN(raw)
		if err != nil {
			return nil, err
		}
		return OpenSQL(ctx, DialectSQLite, dsn, logger)
	}
	return nil, fmt.Errorf("unsupported database url scheme: %s", redactURL(raw))
}

func OpenSQL(ctx context.Context, dialect, dsn string, logger *zap.Logger) (*SQLRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// 단일 writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	r := &SQLRepository{db: db, dialect: dialect, logger: logger}
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// sqliteDSN turns sqlite://path/to/file.db (or sqlite:file.db) into a
// modernc DSN with a busy timeout. The parent directory is created.
func sqliteDSN(raw string) (string, error) {
	path := strings.TrimPrefix(strings.TrimPrefix(raw, "sqlite:"), "//")
	if path == "" {
		return "", errors.New("sqlite path is empty")
	}
	if path == ":memory:" {
		return "file::memory:?_pragma=busy_timeout(5000)", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create sqlite dir: %w", err)
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

func (r *SQLRepository) Dialect() string { return r.dialect }

func (r *SQLRepository) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if r.dialect == DialectSQLite {
		schema = sqliteSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", r.dialect, err)
		}
	}
	return nil
}

func (r *SQLRepository) InsertGame(ctx context.Context, rec *domain.GameRecord) error {
	if rec == nil {
		return fmt.Errorf("nil game record")
	}
	moves, err := json.Marshal(rec.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}

	const query = `
		INSERT INTO ai_chess_match_data (
			game_id,
			session_uuid,
			date,
			ended_at,
			white_model,
			black_model,
			result,
			winner,
			termination_reason,
			invalid_moves,
			moves,
			pgn
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (game_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID,
		rec.SessionUUID,
		r.timeArg(rec.StartedAt),
		r.timeArg(rec.EndedAt),
		rec.WhiteAgent,
		rec.BlackAgent,
		rec.Result,
		rec.Winner,
		rec.TerminationReason,
		rec.InvalidMoveCount,
		string(moves),
		domain.BuildPGN(rec),
	)
	if err != nil {
		return fmt.Errorf("insert game %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrDuplicateGame
	}
	r.logger.Debug("game_record_inserted", zap.String("game_id", rec.ID), zap.String("dialect", r.dialect))
	return nil
}

const selectColumns = `
		SELECT
			game_id,
			session_uuid,
			date,
			ended_at,
			white_model,
			black_model,
			result,
			winner,
			termination_reason,
			invalid_moves,
			moves
		FROM ai_chess_match_data`

func (r *SQLRepository) GetGame(ctx context.Context, id string) (*domain.GameRecord, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectColumns+" WHERE game_id = ?"), id)
	rec, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select game %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLRepository) ListGames(ctx context.Context, f Filter) ([]*domain.GameRecord, error) {
	var (
		where []string
		args  []any
	)
	if !f.Since.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, r.timeArg(f.Since))
	}
	if m := strings.TrimSpace(f.Model); m != "" {
		where = append(where, "(white_model = ? OR black_model = ?)")
		args = append(args, m, m)
	}
	switch f.result() {
	case ResultWin:
		where = append(where, "result IN (?, ?)")
		args = append(args, domain.ResultWhiteWins, domain.ResultBlackWins)
	case ResultDraw:
		where = append(where, "result = ?")
		args = append(args, domain.ResultDraw)
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.GameRecord, 0)
	for rows.Next() {
		rec, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return games, nil
}

func (r *SQLRepository) Close() error { return r.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(s rowScanner) (*domain.GameRecord, error) {
	var (
		rec       domain.GameRecord
		started   dbTime
		ended     dbTime
		movesJSON []byte
	)
	if err := s.Scan(
		&rec.ID,
		&rec.SessionUUID,
		&started,
		&ended,
		&rec.WhiteAgent,
		&rec.BlackAgent,
		&rec.Result,
		&rec.Winner,
		&rec.TerminationReason,
		&rec.InvalidMoveCount,
		&movesJSON,
	); err != nil {
		return nil, err
	}
	rec.StartedAt = started.Time
	rec.EndedAt = ended.Time
	rec.Moves = []domain.MoveRecord{}
	if len(movesJSON) > 0 {
		if err := json.Unmarshal(movesJSON, &rec.Moves); err != nil {
			return nil, fmt.Errorf("unmarshal moves: %w", err)
		}
	}
	return &rec, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *SQLRepository) timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	if r.dialect == DialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// dbTime accepts native timestamps (postgres) and text (sqlite).
type dbTime struct{ time.Time }

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("unsupported time value %T", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano} {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("parse time %q", s)
}
