// Package repo provides postgres access for the ledger and the three layers
package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sftpetl/internal/core/admissions"
	"sftpetl/internal/core/layers"
	"sftpetl/internal/modkit/repokit"
	perr "sftpetl/internal/platform/errors"
	"sftpetl/internal/platform/store"
	"sftpetl/internal/services/ingest/domain"

	"github.com/jackc/pgx/v5"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

// RowColumns is the gold insert column order
func RowColumns() []string {
	return append([]string{"file_id", "ordinal", "source_path"}, admissions.Header()...)
}

// PreseedFiles upserts listed files as pending (idempotent)
func (r *queries) PreseedFiles(ctx context.Context, refs []domain.FileRef, force bool) (int64, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	paths := make([]string, len(refs))
	mtimes := make([]time.Time, len(refs))
	lengths := make([]int64, len(refs))
	for i, ref := range refs {
		paths[i], mtimes[i], lengths[i] = ref.Path, ref.ModificationTime.UTC(), ref.Length
	}
	tag, err := r.q.Exec(ctx, `
		INSERT INTO ingest_files (path, modification_time, length)
		SELECT p, m, l FROM UNNEST($1::text[], $2::timestamptz[], $3::bigint[]) AS t(p, m, l)
		ON CONFLICT (path) DO UPDATE SET
			modification_time = EXCLUDED.modification_time,
			length = EXCLUDED.length,
			status = 'pending',
			attempts = 0,
			error_code = NULL,
			error = NULL
		WHERE ingest_files.status <> 'running'
		  AND ($4
		       OR ingest_files.modification_time IS DISTINCT FROM EXCLUDED.modification_time
		       OR ingest_files.length <> EXCLUDED.length)
	`, paths, mtimes, lengths, force)
	if err != nil {
		return 0, perr.FromPostgres(err, "preseed files")
	}
	return tag.RowsAffected(), nil
}

// ClaimNext hands the oldest eligible file to runID
func (r *queries) ClaimNext(ctx context.Context, runID string, paths []string, staleAfter time.Duration) (domain.Claim, bool, error) {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	var c domain.Claim
	var mtime sql.NullTime
	err := r.q.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM ingest_files
			WHERE (status = 'pending'
			       OR (status = 'error' AND run_id IS DISTINCT FROM $1::uuid)
			       OR (status = 'running' AND started_at < now() - make_interval(secs => $2)))
			  AND ($3::text[] IS NULL OR path = ANY($3::text[]))
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE ingest_files f SET
			status = 'running',
			run_id = $1::uuid,
			attempts = f.attempts + 1,
			started_at = now(),
			finished_at = NULL
		FROM next
		WHERE f.id = next.id
		RETURNING f.id, f.path, f.modification_time, f.length, f.attempts
	`, runID, staleAfter.Seconds(), paths).Scan(&c.ID, &c.Ref.Path, &mtime, &c.Ref.Length, &c.Attempts)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return domain.Claim{}, false, nil
	}
	if err != nil {
		return domain.Claim{}, false, perr.FromPostgres(err, "claim next file")
	}
	if mtime.Valid {
		c.Ref.ModificationTime = mtime.Time.UTC()
	}
	return c, true, nil
}

// FinishFile records the outcome of a claim (idempotent)
func (r *queries) FinishFile(ctx context.Context, id int64, fin domain.FileFinish) error {
	_, err := r.q.Exec(ctx, `
		UPDATE ingest_files SET
			finished_at = now(),
			status = $2,
			bytes = $3,
			rows_out = $4,
			null_rows = $5,
			capture_ms = $6,
			decrypt_ms = $7,
			db_ms = $8,
			elapsed_ms = $9,
			error_code = NULLIF($10, ''),
			error = NULLIF($11, '')
		WHERE id = $1
	`,
		id, string(fin.Status), fin.Bytes, fin.Rows, fin.NullRows,
		fin.CaptureMS, fin.DecryptMS, fin.DBMS, fin.ElapsedMS, fin.ErrCode, fin.ErrText,
	)
	return perr.FromPostgres(err, "finish file")
}

// InsertRaw upserts the bronze record; nil content is stored as NULL
func (r *queries) InsertRaw(ctx context.Context, rec layers.RawFileRecord) error {
	var mtime any
	if !rec.ModificationTime.IsZero() {
		mtime = rec.ModificationTime.UTC()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO raw_files (path, modification_time, length, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET
			modification_time = EXCLUDED.modification_time,
			length = EXCLUDED.length,
			content = EXCLUDED.content,
			captured_at = now()
	`, rec.Path, mtime, rec.Length, rec.Content)
	return perr.FromPostgres(err, "insert raw file")
}

// InsertDecrypted upserts the silver record
func (r *queries) InsertDecrypted(ctx context.Context, rec layers.DecryptedRecord) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO decrypted_files (path, text)
		VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE SET
			text = EXCLUDED.text,
			decrypted_at = now()
	`, rec.Path, rec.Text)
	return perr.FromPostgres(err, "insert decrypted file")
}

// DeleteRows drops a file's gold rows
func (r *queries) DeleteRows(ctx context.Context, fileID int64) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM patient_admissions WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, perr.FromPostgres(err, "delete gold rows")
	}
	return tag.RowsAffected(), nil
}

// InsertRows bulk loads gold rows through COPY when the querier supports it
func (r *queries) InsertRows(ctx context.Context, fileID int64, startOrdinal int, rows []admissions.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	vals := make([][]any, len(rows))
	for i, row := range rows {
		v := make([]any, 0, 3+len(admissions.Header()))
		v = append(v, fileID, int32(startOrdinal+i), row.SourcePath)
		vals[i] = append(v, row.Values()...)
	}
	n, err := store.CopyOrInsert(ctx, r.q, "patient_admissions", RowColumns(), vals)
	if err != nil {
		return n, perr.FromPostgresf(err, "insert %d gold rows", len(rows))
	}
	return n, nil
}

const fileCols = `
	id, path, status, modification_time, length, run_id::text, attempts,
	bytes, rows_out, null_rows, capture_ms, decrypt_ms, db_ms, elapsed_ms,
	COALESCE(error_code, ''), COALESCE(error, ''), started_at, finished_at`

func scanFile(row store.Row) (domain.File, error) {
	var f domain.File
	var status string
	err := row.Scan(
		&f.ID, &f.Path, &status, &f.ModificationTime, &f.Length, &f.RunID, &f.Attempts,
		&f.Bytes, &f.Rows, &f.NullRows, &f.CaptureMS, &f.DecryptMS, &f.DBMS, &f.ElapsedMS,
		&f.ErrorCode, &f.Error, &f.StartedAt, &f.FinishedAt,
	)
	f.Status = domain.Status(status)
	return f, err
}

// ListFiles pages ledger rows by id
func (r *queries) ListFiles(ctx context.Context, f domain.FileFilter) ([]domain.File, error) {
	out, err := store.Many(ctx, r.q, scanFile, `
		SELECT `+fileCols+`
		FROM ingest_files
		WHERE ($1 = '' OR status = $1)
		  AND id > $2
		ORDER BY id
		LIMIT $3
	`, string(f.Status), f.After, limit(f.Limit))
	return out, perr.FromPostgres(err, "list files")
}

// CountByStatus returns ledger totals; states with no files are reported as zero
func (r *queries) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	out := make(map[domain.Status]int64, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out[s] = 0
	}
	rows, err := r.q.Query(ctx, `SELECT status, count(*) FROM ingest_files GROUP BY status`)
	if err != nil {
		return nil, perr.FromPostgres(err, "count files")
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, perr.FromPostgres(err, "count files")
		}
		out[domain.Status(s)] = n
	}
	return out, perr.FromPostgres(rows.Err(), "count files")
}

func scanAdmission(row store.Row) (domain.Admission, error) {
	var a domain.Admission
	err := row.Scan(
		&a.ID, &a.FileID, &a.Ordinal, &a.SourcePath,
		&a.PatientID, &a.FirstName, &a.LastName, &a.DateOfBirth, &a.Gender, &a.BloodType,
		&a.AdmissionDate, &a.DischargeDate, &a.Diagnosis, &a.Treatment, &a.AttendingPhysician,
		&a.RoomNumber, &a.InsuranceProvider, &a.TotalCharges,
	)
	return a, err
}

// ListAdmissions pages gold rows by id
func (r *queries) ListAdmissions(ctx context.Context, f domain.AdmissionFilter) ([]domain.Admission, error) {
	out, err := store.Many(ctx, r.q, scanAdmission, `
		SELECT id, file_id, ordinal, source_path,
		       patient_id, first_name, last_name, to_char(date_of_birth, 'YYYY-MM-DD'), gender, blood_type,
		       to_char(admission_date, 'YYYY-MM-DD'), to_char(discharge_date, 'YYYY-MM-DD'),
		       diagnosis, treatment, attending_physician, room_number, insurance_provider, total_charges
		FROM patient_admissions
		WHERE ($1 = '' OR patient_id = $1)
		  AND ($2::bigint = 0 OR file_id = $2)
		  AND id > $3
		ORDER BY id
		LIMIT $4
	`, f.PatientID, f.FileID, f.After, limit(f.Limit))
	return out, perr.FromPostgres(err, "list admissions")
}

func limit(n int) int {
	switch {
	case n <= 0:
		return 100
	case n > 1000:
		return 1000
	}
	return n
}
