package store

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"

	perr "sftpetl/internal/platform/errors"
)

type cmdTag string

func (c cmdTag) String() string { return string(c) }
func (c cmdTag) RowsAffected() int64 {
	s := string(c)
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		return 0
	}
	n, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

type fakeRowQuerier struct {
	lastExecSQL string
	lastExecArg []any
	execTag     CommandTag
	execErr     error

	queryRows Rows
	queryErr  error

	qrVal any
	qrErr error
}

func (f *fakeRowQuerier) Exec(_ context.Context, sql string, args ...any) (CommandTag, error) {
	f.lastExecSQL = sql
	f.lastExecArg = args
	return f.execTag, f.execErr
}

func (f *fakeRowQuerier) Query(context.Context, string, ...any) (Rows, error) {
	return f.queryRows, f.queryErr
}

func (f *fakeRowQuerier) QueryRow(context.Context, string, ...any) Row {
	return valRow{v: f.qrVal, err: f.qrErr}
}

// copyQuerier adds COPY support to the fake
type copyQuerier struct {
	fakeRowQuerier
	table string
	cols  []string
	rows  [][]any
}

func (c *copyQuerier) CopyFrom(_ context.Context, table string, cols []string, rows [][]any) (int64, error) {
	c.table, c.cols, c.rows = table, cols, rows
	return int64(len(rows)), nil
}

type valRow struct {
	v   any
	err error
}

func (r valRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	reflect.ValueOf(dest[0]).Elem().Set(reflect.ValueOf(r.v))
	return nil
}

type fakeRows struct {
	cols   []string
	data   [][]any
	idx    int
	err    error
	closed bool
}

func newRows(cols []string, data [][]any) *fakeRows {
	return &fakeRows{cols: cols, data: data, idx: -1}
}
func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Next() bool {
	if r.err != nil {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}
func (r *fakeRows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.data) {
		return errors.New("scan out of bounds")
	}
	row := r.data[r.idx]
	if len(dest) != len(row) {
		return errors.New("dest len mismatch")
	}
	for i := range dest {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}
func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) Close()     { r.closed = true }

type fileRow struct {
	ID   int64
	Path string
}

func scanFile(r Row) (fileRow, error) {
	var f fileRow
	err := r.Scan(&f.ID, &f.Path)
	return f, err
}

func TestExec_Passthrough(t *testing.T) {
	t.Parallel()

	f := &fakeRowQuerier{execTag: cmdTag("INSERT 0 3")}
	tag, err := Exec(context.Background(), f, "insert x", 1, "a")
	if err != nil || tag.String() != "INSERT 0 3" {
		t.Fatalf("Exec mismatch: %v %v", tag, err)
	}
	if f.lastExecSQL != "insert x" || len(f.lastExecArg) != 2 {
		t.Fatalf("exec call not recorded properly")
	}
}

func TestExecOne(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tag     cmdTag
		err     error
		wantErr bool
	}{
		{"INSERT 0 1", nil, false},
		{"UPDATE 1", nil, false},
		{"UPDATE 2", nil, true},
		{"UPDATE 0", nil, true},
		{"UPDATE 11", nil, true},
		{"", errors.New("boom"), true},
	}
	for _, c := range cases {
		err := ExecOne(context.Background(), &fakeRowQuerier{execTag: c.tag, execErr: c.err}, "x")
		if (err != nil) != c.wantErr {
			t.Fatalf("ExecOne(%q) err=%v wantErr=%v", c.tag, err, c.wantErr)
		}
	}
}

func TestScalar(t *testing.T) {
	t.Parallel()

	got, err := Scalar[int64](context.Background(), &fakeRowQuerier{qrVal: int64(7)}, "select 7")
	if err != nil || got != 7 {
		t.Fatalf("Scalar = %d, %v", got, err)
	}
	if _, err := Scalar[int64](context.Background(), &fakeRowQuerier{qrErr: errors.New("scan")}, "x"); err == nil {
		t.Fatalf("expected scan error")
	}
}

func TestOne(t *testing.T) {
	t.Parallel()

	rs := newRows([]string{"id", "path"}, [][]any{{int64(1), "in/a.gpg"}})
	got, err := One(context.Background(), &fakeRowQuerier{queryRows: rs}, scanFile, "q")
	if err != nil || got != (fileRow{1, "in/a.gpg"}) {
		t.Fatalf("One = %+v, %v", got, err)
	}
	if !rs.closed {
		t.Fatalf("rows not closed")
	}

	_, err = One(context.Background(), &fakeRowQuerier{queryRows: newRows(nil, nil)}, scanFile, "q")
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	two := newRows([]string{"id", "path"}, [][]any{{int64(1), "a"}, {int64(2), "b"}})
	if _, err := One(context.Background(), &fakeRowQuerier{queryRows: two}, scanFile, "q"); err == nil {
		t.Fatalf("expected too many rows error")
	}

	iterErr := newRows(nil, nil)
	iterErr.err = errors.New("iter")
	if _, err := One(context.Background(), &fakeRowQuerier{queryRows: iterErr}, scanFile, "q"); err == nil || err.Error() != "iter" {
		t.Fatalf("expected iterator error, got %v", err)
	}

	if _, err := One(context.Background(), &fakeRowQuerier{queryErr: errors.New("q")}, scanFile, "q"); err == nil {
		t.Fatalf("expected query error")
	}
}

func TestMany(t *testing.T) {
	t.Parallel()

	rs := newRows([]string{"id", "path"}, [][]any{{int64(1), "a"}, {int64(2), "b"}})
	got, err := Many(context.Background(), &fakeRowQuerier{queryRows: rs}, scanFile, "q")
	if err != nil || len(got) != 2 || got[1].Path != "b" {
		t.Fatalf("Many = %+v, %v", got, err)
	}

	empty, err := Many(context.Background(), &fakeRowQuerier{queryRows: newRows(nil, nil)}, scanFile, "q")
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty Many = %+v, %v", empty, err)
	}

	bad := newRows([]string{"id"}, [][]any{{int64(1)}})
	if _, err := Many(context.Background(), &fakeRowQuerier{queryRows: bad}, scanFile, "q"); err == nil {
		t.Fatalf("expected scan error")
	}
}

func TestMultiInsert(t *testing.T) {
	t.Parallel()

	sql, args := MultiInsert("patient_admissions", []string{"file_id", "patient_id"}, [][]any{
		{int64(9), "P1"},
		{int64(9)}, // short rows pad with NULL
	})
	want := "INSERT INTO patient_admissions (file_id, patient_id) VALUES ($1, $2), ($3, $4)"
	if sql != want {
		t.Fatalf("sql = %q\nwant  %q", sql, want)
	}
	if !reflect.DeepEqual(args, []any{int64(9), "P1", int64(9), nil}) {
		t.Fatalf("args = %#v", args)
	}
}

func TestCopyOrInsert(t *testing.T) {
	t.Parallel()

	rows := [][]any{{"a"}, {"b"}}

	cq := &copyQuerier{}
	n, err := CopyOrInsert(context.Background(), cq, "t", []string{"c"}, rows)
	if err != nil || n != 2 || cq.table != "t" || cq.lastExecSQL != "" {
		t.Fatalf("copy path mismatch: n=%d err=%v table=%q exec=%q", n, err, cq.table, cq.lastExecSQL)
	}

	fq := &fakeRowQuerier{execTag: cmdTag("INSERT 0 2")}
	n, err = CopyOrInsert(context.Background(), fq, "t", []string{"c"}, rows)
	if err != nil || n != 2 || !strings.HasPrefix(fq.lastExecSQL, "INSERT INTO t (c) VALUES") {
		t.Fatalf("insert path mismatch: n=%d err=%v sql=%q", n, err, fq.lastExecSQL)
	}

	if n, err := CopyOrInsert(context.Background(), fq, "t", []string{"c"}, nil); n != 0 || err != nil {
		t.Fatalf("empty input should be a no-op")
	}

	fq.execErr = errors.New("boom")
	if _, err := CopyOrInsert(context.Background(), fq, "t", []string{"c"}, rows); err == nil {
		t.Fatalf("expected exec error")
	}
}
