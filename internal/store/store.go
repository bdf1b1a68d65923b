// Package store provides typed access to the relational database. It supports
// two backends selected by configuration: PostgreSQL (via the pgx stdlib
// driver) and SQLite (via the pure-Go modernc driver). Queries are written
// with ? placeholders and rebound to numbered parameters for Postgres, so
// repositories carry a single SQL codebase.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/ecto-chat/ecto-server/internal/config"
)

// Dialect identifies the active database backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Querier is the query surface shared by *DB and transactions. Repositories
// accept a Querier wherever a method must run both standalone and inside
// WithTx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps *sql.DB with the dialect and placeholder rebinding. It satisfies
// Querier; all SQL routed through it may use ? placeholders.
type DB struct {
	sql     *sql.DB
	dialect Dialect
}

// Open connects to the configured backend and verifies the connection. For
// SQLite the parent directory is created and WAL plus foreign-key enforcement
// are enabled.
func Open(ctx context.Context, cfg *config.Config) (*DB, error) {
	switch cfg.DatabaseType {
	case config.DatabasePostgres:
		conn, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		conn.SetMaxOpenConns(cfg.DatabaseMaxConn)
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &DB{sql: conn, dialect: DialectPostgres}, nil

	case config.DatabaseSQLite:
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn := cfg.DatabasePath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		conn.SetMaxOpenConns(4)
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ping sqlite: %w", err)
		}
		return &DB{sql: conn, dialect: DialectSQLite}, nil
	}
	return nil, fmt.Errorf("unknown database type %q", cfg.DatabaseType)
}

// Dialect returns the active backend.
func (db *DB) Dialect() Dialect { return db.dialect }

// SQL exposes the underlying *sql.DB for migrations and health checks.
func (db *DB) SQL() *sql.DB { return db.sql }

// Close closes the underlying pool.
func (db *DB) Close() error { return db.sql.Close() }

// Ping verifies the connection.
func (db *DB) Ping(ctx context.Context) error { return db.sql.PingContext(ctx) }

// Rebind rewrites ? placeholders to $1..$n for Postgres. SQLite consumes ?
// directly. Queries must not reuse a placeholder.
func (db *DB) Rebind(query string) string {
	return rebind(db.dialect, query)
}

func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.sql.ExecContext(ctx, db.Rebind(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.sql.QueryContext(ctx, db.Rebind(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.sql.QueryRowContext(ctx, db.Rebind(query), args...)
}
