//go:build integration_pg
// +build integration_pg

package service

import (
	"context"
	"testing"
	"time"

	"sftpetl/internal/adapters/capture/localfs"
	"sftpetl/internal/core/admissions"
	"sftpetl/internal/core/pgpdecrypt"
	perr "sftpetl/internal/platform/errors"
	"sftpetl/internal/platform/logger"
	"sftpetl/internal/platform/store"
	kit "sftpetl/internal/platform/testkit"
	"sftpetl/internal/platform/testkit/pgtest"
	"sftpetl/internal/services/ingest/domain"
	"sftpetl/internal/services/ingest/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtures = "../../../core/pgpdecrypt/testdata/"

func TestRunOnce_Postgres_Integration(t *testing.T) {
	dsn := pgtest.Start(t)
	require.NoError(t, store.MigrateUp(dsn, logger.Get()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := store.Open(ctx, store.Config{AppName: "sftpetl-ingest-it", PG: store.PGConfig{Enabled: true, URL: dsn}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	dir := kit.WriteFiles(t, map[string][]byte{
		"in/admissions.csv.gpg": kit.Fixture(t, fixtures+"admissions.csv.gpg"),
		"in/other.csv.gpg":      kit.Fixture(t, fixtures+"other_recipient.csv.gpg"),
		"in/notes.txt":          []byte("not matched by the glob"),
	})
	src, err := localfs.New(dir, "*.gpg")
	require.NoError(t, err)

	stage := pgpdecrypt.New(string(kit.Fixture(t, fixtures+"private.asc")), "correct horse battery staple")
	t.Cleanup(func() { _ = stage.Close() })

	svc := New(st.PG, repo.NewPG(), src, stage, admissions.NewStage(admissions.WithLineage(true)), nil,
		Config{Workers: 2, MaxRetries: 2, RetryBase: time.Millisecond}, nil)

	rep, err := svc.RunOnce(ctx)
	require.Error(t, err, "the file for another recipient fails")
	assert.True(t, perr.IsCode(err, perr.ErrorCodeDecryption))
	assert.Equal(t, 2, rep.Files)
	assert.Equal(t, 1, rep.OK)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, int64(2), rep.Rows)

	counts, err := svc.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.StatusOK])
	assert.Equal(t, int64(1), counts[domain.StatusError])
	assert.Equal(t, int64(0), counts[domain.StatusPending])

	failed, err := svc.ListFiles(ctx, domain.FileFilter{Status: domain.StatusError})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "in/other.csv.gpg", failed[0].Path)
	assert.Equal(t, "decryption", failed[0].ErrorCode)

	rows, err := svc.ListAdmissions(ctx, domain.AdmissionFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "P001", *rows[0].PatientID)
	assert.Equal(t, 0, rows[0].Ordinal)
	require.NotNil(t, rows[1].Diagnosis)
	assert.Equal(t, "Fracture, left arm", *rows[1].Diagnosis)
	require.NotNil(t, rows[0].SourcePath)
	assert.Equal(t, "in/admissions.csv.gpg", *rows[0].SourcePath)

	// bronze keeps the undecryptable capture, silver does not
	var raw, silver int
	require.NoError(t, st.PG.QueryRow(ctx, `SELECT count(*) FROM raw_files`).Scan(&raw))
	require.NoError(t, st.PG.QueryRow(ctx, `SELECT count(*) FROM decrypted_files`).Scan(&silver))
	assert.Equal(t, 2, raw)
	assert.Equal(t, 1, silver)

	// an explicit rerun replaces gold instead of appending
	rep, err = svc.RunFiles(ctx, []string{"in/admissions.csv.gpg"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.OK)
	one, err := svc.ListAdmissions(ctx, domain.AdmissionFilter{PatientID: "P002"})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
