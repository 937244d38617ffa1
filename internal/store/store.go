// Package store connects the loader to PostgreSQL.
//
// A run writes through an Executor bound to one transaction, so a failed or
// cancelled pass leaves the previously committed catalog untouched.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/mediathek-loader/internal/config"
	"github.com/JonMunkholm/mediathek-loader/internal/core"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Open creates a connection pool from cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Executor implements core.Store on top of a DBTX.
type Executor struct {
	db DBTX
}

var _ core.Store = (*Executor)(nil)

// New wraps db.
func New(db DBTX) *Executor {
	return &Executor{db: db}
}

// Execute runs one rendered statement. The simple protocol skips the
// prepare round trip, which buys nothing for a statement run once.
func (e *Executor) Execute(ctx context.Context, statement string) error {
	if _, err := e.db.Exec(ctx, statement, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("execute statement (%d bytes): %w", len(statement), err)
	}
	return nil
}

// NextID returns the highest id of table plus one, or 1 for an empty table.
func (e *Executor) NextID(ctx context.Context, table string) (int64, error) {
	query := "SELECT COALESCE(MAX(" + pgx.Identifier{"id"}.Sanitize() + "), 0) + 1 FROM " + pgx.Identifier{table}.Sanitize()
	var next int64
	if err := e.db.QueryRow(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("next id of %s: %w", table, err)
	}
	return next, nil
}

const findMatchQuery = `SELECT MAX("id") FROM "video"
WHERE "channel" = $1 AND "date_unix" = $2
  AND "theme" ILIKE $3 ESCAPE '\' AND "title" ILIKE $4 ESCAPE '\'`

// FindMatch returns the highest id of a stored row with exactly this channel
// and timestamp whose theme and title equal the arguments ignoring case.
func (e *Executor) FindMatch(ctx context.Context, channel string, dateUnix int64, theme, title string) (int64, bool, error) {
	var id *int64
	err := e.db.QueryRow(ctx, findMatchQuery,
		channel, dateUnix, escapeLike(theme), escapeLike(title),
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("find match: %w", err)
	}
	if id == nil {
		return 0, false, nil
	}
	return *id, true, nil
}

// escapeLike makes s match itself literally in a LIKE pattern with '\' as
// the escape character.
func escapeLike(s string) string {
	if !strings.ContainsAny(s, `\%_`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\', '%', '_':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Truncate empties the video and channel info tables ahead of a full load.
// The version row is kept; the run overwrites it.
func (e *Executor) Truncate(ctx context.Context) error {
	stmt := "TRUNCATE TABLE " + pgx.Identifier{core.VideoTable}.Sanitize() + ", " +
		pgx.Identifier{core.ChannelInfoTable}.Sanitize()
	if _, err := e.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("truncate catalog: %w", err)
	}
	return nil
}

// CountVideos returns the number of stored rows.
func (e *Executor) CountVideos(ctx context.Context) (int64, error) {
	var n int64
	if err := e.db.QueryRow(ctx, `SELECT COUNT(*) FROM "video"`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

// Version is the stored version row.
type Version struct {
	DBVersion      string `json:"db_version"`
	RunTime        int64  `json:"run_time"`
	ListVersion    string `json:"list_version"`
	ListDate       int64  `json:"list_date"`
	Entries        int64  `json:"entries"`
	ProgramName    string `json:"program_name"`
	ProgramVersion string `json:"program_version"`
}

// LoadedVersion reads the version row. ok is false before the first
// successful run.
func (e *Executor) LoadedVersion(ctx context.Context) (v Version, ok bool, err error) {
	err = e.db.QueryRow(ctx, `SELECT "version", "vdate", "mvversion", "mvdate", "mventrys", "progname", "progversion"
FROM "version" WHERE "id" = 1`).Scan(
		&v.DBVersion, &v.RunTime, &v.ListVersion, &v.ListDate, &v.Entries, &v.ProgramName, &v.ProgramVersion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Version{}, false, nil
	}
	if err != nil {
		return Version{}, false, fmt.Errorf("read version: %w", err)
	}
	return v, true, nil
}

// Channels returns the stored channel rollups ordered by channel.
func (e *Executor) Channels(ctx context.Context) ([]core.ChannelInfo, error) {
	rows, err := e.db.Query(ctx, `SELECT "channel", "count", "latest", "oldest" FROM "channelinfo" ORDER BY "channel"`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ChannelInfo, error) {
		var ci core.ChannelInfo
		err := row.Scan(&ci.Channel, &ci.Count, &ci.Latest, &ci.Oldest)
		return ci, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan channels: %w", err)
	}
	return infos, nil
}

// WithTx runs fn with an Executor bound to a new transaction on pool. The
// transaction commits when fn returns nil and rolls back otherwise.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(*Executor) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
