package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func pg(code, col, constraint string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		ColumnName:     col,
		ConstraintName: constraint,
	}
}

func TestDBErrorCodeMappings(t *testing.T) {
	cases := []struct {
		code string
		want ErrorCode
	}{
		{"23505", ErrorCodeDuplicateKey},
		{"23503", ErrorCodeInvalidArgument},
		{"23502", ErrorCodeValidation},
		{"23514", ErrorCodeValidation},
		{"22001", ErrorCodeInvalidArgument},
		{"22P02", ErrorCodeInvalidArgument},
		{"22003", ErrorCodeInvalidArgument},
		{"40001", ErrorCodeDB},
		{"40P01", ErrorCodeDB},
		{"25006", ErrorCodeUnavailable},
		{"57P03", ErrorCodeUnavailable},
		{"57P01", ErrorCodeUnavailable},
		{"XXXXX", ErrorCodeDB},
	}
	for _, c := range cases {
		got, ok := DBErrorCode(pg(c.code, "", ""))
		if !ok {
			t.Fatalf("expected ok for PgError code %s", c.code)
		}
		if got != c.want {
			t.Fatalf("DBErrorCode(%s) = %v, want %v", c.code, got, c.want)
		}
	}

	if _, ok := DBErrorCode(stderrs.New("nope")); ok {
		t.Fatalf("DBErrorCode should return ok=false for non-pg error")
	}
}

func TestFromPostgresVariants(t *testing.T) {
	if FromPostgres(nil, "x") != nil {
		t.Fatalf("FromPostgres(nil) should be nil")
	}
	if FromPostgresf(nil, "x %d", 1) != nil {
		t.Fatalf("FromPostgresf(nil) should be nil")
	}

	if err := FromPostgres(pg("23505", "", ""), "insert raw"); CodeOf(err) != ErrorCodeDuplicateKey {
		t.Fatalf("FromPostgres map code = %v", CodeOf(err))
	}
	if err := FromPostgresf(pg("22P02", "", ""), "bad: %s", "room_number"); CodeOf(err) != ErrorCodeInvalidArgument {
		t.Fatalf("FromPostgresf code = %v", CodeOf(err))
	}
	if err := FromPostgres(stderrs.New("conn closed"), "insert"); CodeOf(err) != ErrorCodeDB {
		t.Fatalf("FromPostgres(non-pg) code = %v", CodeOf(err))
	}
}

func TestAttachFieldFromPg(t *testing.T) {
	withCol := AttachFieldFromPg(Wrap(pg("23502", "path", ""), ErrorCodeValidation, "oops"))
	if e, ok := As(withCol); !ok || e.Field() != "path" {
		t.Fatalf("AttachFieldFromPg column name failed: %+v", e)
	}

	noCol := Wrap(pg("23505", "", "raw_files_pkey"), ErrorCodeDuplicateKey, "dup")
	if out := AttachFieldFromPg(noCol); out != noCol {
		t.Fatalf("AttachFieldFromPg should return input without a column")
	}

	other := Wrap(stderrs.New("x"), ErrorCodeDB, "wrap")
	if out := AttachFieldFromPg(other); out != other {
		t.Fatalf("AttachFieldFromPg changed non-pg error")
	}
}

func TestIsRetryable(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03", "57P03", "57P01"} {
		if !IsRetryable(pg(code, "", "")) {
			t.Fatalf("%s should be retryable", code)
		}
	}
	if IsRetryable(pg("23505", "", "")) {
		t.Fatalf("23505 should not be retryable")
	}
	if IsRetryable(stderrs.New("nope")) {
		t.Fatalf("non-pg error should not be retryable")
	}
	if !IsRetryable(stderrs.New("commit unexpectedly resulted in rollback")) {
		t.Fatalf("commit rollback text should be retryable")
	}
	if IsRetryable(fmt.Errorf("wrap: %w", context.DeadlineExceeded)) {
		t.Fatalf("deadline should not be retryable")
	}
}

func TestHTTPHelper(t *testing.T) {
	if st, w := HTTP(nil); st != 200 || w != (Wire{}) {
		t.Fatalf("HTTP(nil) mismatch: %d %+v", st, w)
	}
	st, w := HTTP(NotFoundf("x"))
	if st != 404 || w.Code != ErrorCodeNotFound {
		t.Fatalf("HTTP(err) mismatch: %d %+v", st, w)
	}
}
