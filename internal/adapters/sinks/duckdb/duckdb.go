// Package duckdb mirrors all three layers into a local DuckDB file for offline analysis
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"sftpetl/internal/adapters/sinks"
	"sftpetl/internal/core/admissions"
	perr "sftpetl/internal/platform/errors"

	"github.com/marcboeker/go-duckdb"
)

// Options tune the embedded database
type Options struct {
	// Path of the database file; empty opens an in-memory database
	Path string

	MemoryLimit string // e.g. "1GB"
	Threads     int
}

// Sink owns its database handle. Writes are serialized; DuckDB is a single writer store
type Sink struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates the database and the layer tables
func Open(ctx context.Context, o Options) (*Sink, error) {
	var pragmas []string
	if o.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("SET memory_limit='%s'", strings.ReplaceAll(o.MemoryLimit, "'", "")))
	}
	if o.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("SET threads=%d", o.Threads))
	}
	connector, err := duckdb.NewConnector(o.Path, func(execer driver.ExecerContext) error {
		for _, p := range pragmas {
			if _, err := execer.ExecContext(context.Background(), p, nil); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfiguration, "duckdb: open %q", o.Path)
	}

	db := sql.OpenDB(connector)
	for _, stmt := range ddl() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, perr.Wrap(err, perr.ErrorCodeConfiguration, "duckdb: create tables")
		}
	}
	return &Sink{db: db, path: o.Path}, nil
}

func ddl() []string {
	var gold strings.Builder
	gold.WriteString("CREATE TABLE IF NOT EXISTS patient_admissions (\n    file_id BIGINT NOT NULL,\n    ordinal INTEGER NOT NULL,\n    source_path VARCHAR")
	for _, c := range admissions.Columns() {
		fmt.Fprintf(&gold, ",\n    %s %s", c.Name, duckType(c.Kind))
	}
	gold.WriteString("\n)")

	return []string{
		`CREATE TABLE IF NOT EXISTS raw_files (
    file_id BIGINT PRIMARY KEY,
    path VARCHAR NOT NULL,
    modification_time TIMESTAMPTZ,
    length BIGINT NOT NULL,
    content BLOB
)`,
		`CREATE TABLE IF NOT EXISTS decrypted_files (
    file_id BIGINT PRIMARY KEY,
    path VARCHAR NOT NULL,
    text VARCHAR
)`,
		gold.String(),
	}
}

func duckType(k admissions.Kind) string {
	switch k {
	case admissions.KindDate:
		return "DATE"
	case admissions.KindInt32:
		return "INTEGER"
	case admissions.KindFloat64:
		return "DOUBLE"
	}
	return "VARCHAR"
}

// DB exposes the handle for ad hoc queries
func (s *Sink) DB() *sql.DB { return s.db }

// Name implements sinks.Sink
func (s *Sink) Name() string { return "duckdb" }

// Write implements sinks.Sink. Bronze and silver are upserted and old gold rows dropped in
// one transaction, then gold rows go through the appender
func (s *Sink) Write(ctx context.Context, b sinks.FileBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replaceFiles(ctx, b); err != nil {
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeDB, "duckdb: file %d", b.FileID), "sink.duckdb")
	}
	if len(b.Rows) == 0 {
		return nil
	}
	if err := s.appendRows(ctx, b); err != nil {
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeDB, "duckdb: append %d rows", len(b.Rows)), "sink.duckdb")
	}
	return nil
}

func (s *Sink) replaceFiles(ctx context.Context, b sinks.FileBatch) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// keyed layers are upserted: duckdb rejects a delete and reinsert of one key in a tx
	if _, err = tx.ExecContext(ctx, "DELETE FROM patient_admissions WHERE file_id = ?", b.FileID); err != nil {
		return err
	}

	var content any
	if b.Raw.HasContent() {
		content = b.Raw.Content
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO raw_files (file_id, path, modification_time, length, content) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (file_id) DO UPDATE SET
			path = EXCLUDED.path,
			modification_time = EXCLUDED.modification_time,
			length = EXCLUDED.length,
			content = EXCLUDED.content`,
		b.FileID, b.Raw.Path, b.Raw.ModificationTime, b.Raw.Length, content,
	); err != nil {
		return err
	}

	var text any
	if b.Decrypted.Text != nil {
		text = *b.Decrypted.Text
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO decrypted_files (file_id, path, text) VALUES (?, ?, ?)
		ON CONFLICT (file_id) DO UPDATE SET path = EXCLUDED.path, text = EXCLUDED.text`,
		b.FileID, b.Decrypted.Path, text,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Sink) appendRows(ctx context.Context, b sinks.FileBatch) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver conn %T", driverConn)
		}
		app, err := duckdb.NewAppenderFromConn(dc, "", "patient_admissions")
		if err != nil {
			return err
		}
		for i, r := range b.Rows {
			var src any
			if r.SourcePath != nil {
				src = *r.SourcePath
			}
			vals := []driver.Value{b.FileID, int32(i), src}
			for _, v := range r.Values() {
				vals = append(vals, v)
			}
			if err := app.AppendRow(vals...); err != nil {
				_ = app.Close()
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return app.Close()
	})
}

// Close implements sinks.Sink
func (s *Sink) Close() error { return s.db.Close() }

// String renders the database location for logs
func (s *Sink) String() string {
	if s.path == "" {
		return "duckdb::memory:"
	}
	return "duckdb:" + s.path
}

var _ sinks.Sink = (*Sink)(nil)
