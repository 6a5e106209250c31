package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the query contract of the PostgreSQL repositories.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

var (
	markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	errEmptyQuery    = errors.New("sql: empty query")
	errMissingMarker = errors.New("sql: marker missing or invalid")
)

// SQLRunner strips the "--sql <uuid>" marker from each query, runs it and
// logs the marker with its duration. Calls slower than SlowQuery are logged
// at warn level.
type SQLRunner struct {
	db        SQLExecutor
	logger    zerolog.Logger
	SlowQuery time.Duration
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return newSQLRunner(poolExecutor{pool}, logger)
}

func newSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger, SlowQuery: 500 * time.Millisecond}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, body, args...)
	r.observe(marker, "exec", start, err).Int64("rows", tag.RowsAffected()).Send()
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	start := time.Now()
	return &loggingRow{row: r.db.QueryRow(ctx, body, args...), runner: r, marker: marker, start: start}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		r.observe(marker, "query", start, err).Send()
		return nil, err
	}
	return &loggingRows{Rows: rows, runner: r, marker: marker, start: start}, nil
}

// observe picks the event level: errors, then slow calls, then debug.
// No-rows is an expected outcome and never logged as an error.
func (r *SQLRunner) observe(marker, op string, start time.Time, err error) *zerolog.Event {
	elapsed := time.Since(start)
	var ev *zerolog.Event
	switch {
	case err != nil && !IsNoRows(err):
		ev = r.logger.Error().Err(err)
	case r.SlowQuery > 0 && elapsed >= r.SlowQuery:
		ev = r.logger.Warn().Bool("slow", true)
	default:
		ev = r.logger.Debug()
	}
	return ev.Str("sql", marker).Str("op", op).Dur("elapsed", elapsed)
}

type loggingRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

func (l *loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.runner.observe(l.marker, "query_row", l.start, err).Send()
	return err
}

type loggingRows struct {
	pgx.Rows
	runner *SQLRunner
	marker string
	start  time.Time
	rows   int
}

func (l *loggingRows) Next() bool {
	ok := l.Rows.Next()
	if ok {
		l.rows++
	}
	return ok
}

func (l *loggingRows) Close() {
	l.Rows.Close()
	l.runner.observe(l.marker, "query", l.start, l.Rows.Err()).Int("rows", l.rows).Send()
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

// poolExecutor adapts *pgxpool.Pool to SQLExecutor.
type poolExecutor struct{ pool *pgxpool.Pool }

func (p poolExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, query, args...)
}

func (p poolExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, query, args...)
}

func (p poolExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, query, args...)
}

func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", errEmptyQuery
	}
	first, body, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", errMissingMarker
	}
	return strings.TrimPrefix(first, "--sql "), strings.TrimSpace(body), nil
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ SQLExecutor = (*SQLRunner)(nil)
