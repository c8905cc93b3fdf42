package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"sftpetl/internal/adapters/sinks"
	"sftpetl/internal/core/admissions"
	perr "sftpetl/internal/platform/errors"
	"sftpetl/internal/platform/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCH struct {
	execs   []string
	args    [][]any
	table   string
	cols    []string
	rows    [][]any
	execErr error
	insErr  error
}

func (f *fakeCH) Insert(_ context.Context, table string, columns []string, rows [][]any) error {
	f.table, f.cols, f.rows = table, columns, rows
	return f.insErr
}
func (f *fakeCH) Exec(_ context.Context, sql string, args ...any) error {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	return f.execErr
}
func (f *fakeCH) Query(context.Context, string, ...any) (store.Rows, error) { return nil, nil }
func (f *fakeCH) Ping(context.Context) error                               { return nil }
func (f *fakeCH) Close() error                                             { return nil }

func ptr[T any](v T) *T { return &v }

func TestNew_CreatesTable(t *testing.T) {
	ch := &fakeCH{}
	s, err := New(context.Background(), ch, Options{Table: "etl.admissions"})
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", s.Name())
	require.Len(t, ch.execs, 1)
	ddl := ch.execs[0]
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS etl.admissions")
	assert.Contains(t, ddl, "date_of_birth Nullable(Date)")
	assert.Contains(t, ddl, "room_number Nullable(Int32)")
	assert.Contains(t, ddl, "total_charges Nullable(Float64)")
	assert.Contains(t, ddl, "ORDER BY (file_id, ordinal)")
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	assert.True(t, perr.IsCode(err, perr.ErrorCodeConfiguration))

	_, err = New(context.Background(), &fakeCH{}, Options{Table: "x; DROP TABLE y"})
	assert.True(t, perr.IsCode(err, perr.ErrorCodeConfiguration))

	_, err = New(context.Background(), &fakeCH{execErr: errors.New("no db")}, Options{})
	assert.True(t, perr.IsCode(err, perr.ErrorCodeConfiguration))
}

func TestWrite_DeletesThenInserts(t *testing.T) {
	ch := &fakeCH{}
	s, err := New(context.Background(), ch, Options{SkipDDL: true})
	require.NoError(t, err)

	dob := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []admissions.Row{
		{PatientID: ptr("P1"), DateOfBirth: &dob, RoomNumber: ptr(int32(12)), SourcePath: ptr("in/a.csv.gpg")},
		{},
	}
	require.NoError(t, s.Write(context.Background(), sinks.FileBatch{FileID: 42, Rows: rows}))

	require.Len(t, ch.execs, 1)
	assert.Equal(t, "DELETE FROM patient_admissions WHERE file_id = ?", ch.execs[0])
	assert.Equal(t, []any{int64(42)}, ch.args[0])

	assert.Equal(t, DefaultTable, ch.table)
	assert.Equal(t, Columns(), ch.cols)
	require.Len(t, ch.rows, 2)
	first := ch.rows[0]
	assert.Equal(t, int64(42), first[0])
	assert.Equal(t, int32(0), first[1])
	assert.Equal(t, "in/a.csv.gpg", first[2])
	assert.Equal(t, "P1", first[3])
	assert.Equal(t, dob, first[6])
	assert.Equal(t, int32(12), first[14])

	second := ch.rows[1]
	assert.Equal(t, int32(1), second[1])
	for _, v := range second[2:] {
		assert.Nil(t, v)
	}
}

func TestWrite_EmptyFileOnlyClears(t *testing.T) {
	ch := &fakeCH{}
	s, _ := New(context.Background(), ch, Options{SkipDDL: true})
	require.NoError(t, s.Write(context.Background(), sinks.FileBatch{FileID: 1}))
	assert.Len(t, ch.execs, 1)
	assert.Nil(t, ch.rows)
}

func TestWrite_ErrorsAreRetryable(t *testing.T) {
	ch := &fakeCH{insErr: errors.New("too many parts")}
	s, _ := New(context.Background(), ch, Options{SkipDDL: true})
	err := s.Write(context.Background(), sinks.FileBatch{FileID: 1, Rows: []admissions.Row{{}}})
	require.Error(t, err)
	assert.True(t, perr.Retryable(err))
}
