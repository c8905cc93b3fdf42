// Package ch provides a clickhouse client over clickhouse-go v2
package ch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config configures clickhouse client
type Config struct {
	// DSN is a clickhouse:// URL, e.g. clickhouse://default:@localhost:9000/etl?dial_timeout=5s
	DSN string

	Role string
	Tag  string
}

// Rows is the minimal result set iteration for ch
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
	Columns() []string
}

// conn is the subset of driver.Conn the client uses
type conn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	Ping(ctx context.Context) error
	Close() error
}

// CH is a clickhouse connection with batch insert helpers
type CH struct {
	conn conn
}

var dial = func(opt *clickhouse.Options) (conn, error) { return clickhouse.Open(opt) }

// Open parses the DSN and opens a native protocol connection
// the connection is lazy; callers Ping to verify
func Open(_ context.Context, cfg Config) (*CH, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("ch: empty dsn")
	}
	opt, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("ch: parse dsn: %w", err)
	}
	opt.ClientInfo = BuildClientInfo(cfg.Role, cfg.Tag)

	c, err := dial(opt)
	if err != nil {
		return nil, fmt.Errorf("ch: open: %w", err)
	}
	return &CH{conn: c}, nil
}

// Insert appends rows to table through a single batch
// columns fix the order each row's values are appended in
func (c *CH) Insert(ctx context.Context, table string, columns []string, rows [][]any) (err error) {
	if len(rows) == 0 {
		return nil
	}
	b, err := c.conn.PrepareBatch(ctx, insertSQL(table, columns))
	if err != nil {
		return fmt.Errorf("ch: prepare %s: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = b.Abort()
		}
	}()

	for i, r := range rows {
		if len(r) != len(columns) {
			return fmt.Errorf("ch: row %d has %d values, want %d", i, len(r), len(columns))
		}
		if err = b.Append(r...); err != nil {
			return fmt.Errorf("ch: append row %d: %w", i, err)
		}
	}
	if err = b.Send(); err != nil {
		return fmt.Errorf("ch: send %s: %w", table, err)
	}
	return nil
}

// Exec runs a statement that returns no rows
func (c *CH) Exec(ctx context.Context, sql string, args ...any) error {
	return c.conn.Exec(ctx, sql, args...)
}

// Query runs a query and returns ch.Rows
func (c *CH) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	r, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Ping checks the server answers
func (c *CH) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

// Close closes resources
func (c *CH) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func insertSQL(table string, columns []string) string {
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ")"
}
