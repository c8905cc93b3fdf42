// Package clickhouse copies gold admission rows into a ClickHouse table for analytics
package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sftpetl/internal/adapters/sinks"
	"sftpetl/internal/core/admissions"
	perr "sftpetl/internal/platform/errors"
	"sftpetl/internal/platform/store"
)

// DefaultTable is used when Options.Table is empty
const DefaultTable = "patient_admissions"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Options tune the sink
type Options struct {
	Table string

	// SkipDDL leaves table creation to the operator
	SkipDDL bool
}

// Sink writes gold rows through the store's clickhouse seam. It does not own the seam
type Sink struct {
	ch    store.Clickhouse
	table string
	cols  []string
}

// New validates the table name and creates the table unless SkipDDL is set
func New(ctx context.Context, ch store.Clickhouse, o Options) (*Sink, error) {
	if ch == nil {
		return nil, perr.Configf("clickhouse sink: clickhouse is not configured")
	}
	table := o.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, perr.Configf("clickhouse sink: bad table name %q", table)
	}
	s := &Sink{ch: ch, table: table, cols: Columns()}
	if !o.SkipDDL {
		if err := ch.Exec(ctx, DDL(table)); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeConfiguration, "clickhouse sink: create %s", table)
		}
	}
	return s, nil
}

// Columns is the insert column order: ledger keys, lineage, then the schema
func Columns() []string {
	return append([]string{"file_id", "ordinal", "source_path"}, admissions.Header()...)
}

// DDL returns the create statement for table
func DDL(table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("    file_id Int64,\n    ordinal Int32,\n    source_path Nullable(String),\n")
	for _, c := range admissions.Columns() {
		fmt.Fprintf(&b, "    %s Nullable(%s),\n", c.Name, chType(c.Kind))
	}
	b.WriteString("    ingested_at DateTime64(3) DEFAULT now64(3)\n")
	b.WriteString(") ENGINE = ReplacingMergeTree(ingested_at)\nORDER BY (file_id, ordinal)")
	return b.String()
}

func chType(k admissions.Kind) string {
	switch k {
	case admissions.KindDate:
		return "Date"
	case admissions.KindInt32:
		return "Int32"
	case admissions.KindFloat64:
		return "Float64"
	}
	return "String"
}

// Name implements sinks.Sink
func (s *Sink) Name() string { return "clickhouse" }

// Write implements sinks.Sink. Earlier rows for the file are deleted first so a shorter
// rerun leaves no stale ordinals behind
func (s *Sink) Write(ctx context.Context, b sinks.FileBatch) error {
	if err := s.ch.Exec(ctx, "DELETE FROM "+s.table+" WHERE file_id = ?", b.FileID); err != nil {
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeUnavailable, "clickhouse: clear file %d", b.FileID), "sink.clickhouse")
	}
	if len(b.Rows) == 0 {
		return nil
	}
	if err := s.ch.Insert(ctx, s.table, s.cols, Values(b.FileID, b.Rows)); err != nil {
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeUnavailable, "clickhouse: insert %d rows", len(b.Rows)), "sink.clickhouse")
	}
	return nil
}

// Values lays rows out in Columns order with 0-based ordinals
func Values(fileID int64, rows []admissions.Row) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		v := make([]any, 0, 3+len(admissions.Header()))
		var src any
		if r.SourcePath != nil {
			src = *r.SourcePath
		}
		v = append(v, fileID, int32(i), src)
		out[i] = append(v, r.Values()...)
	}
	return out
}

// Close implements sinks.Sink; the store owns the connection
func (s *Sink) Close() error { return nil }

var _ sinks.Sink = (*Sink)(nil)
