// Package service provides the ledger reads and the background run trigger behind the ops API
package service

import (
	"context"

	"sftpetl/internal/modkit/repokit"
	ingest "sftpetl/internal/services/ingest/domain"
	ingestrepo "sftpetl/internal/services/ingest/repo"
)

// Reader serves ledger reads straight from the ingest repo, for API processes that do not
// carry the decrypt key and so cannot build the ingest module
type Reader struct {
	DB     repokit.Queryer
	Binder repokit.Binder[ingest.StorageRepo]
}

// NewReader binds the postgres ingest repo on db
func NewReader(db repokit.Queryer) *Reader {
	return &Reader{DB: repokit.RequireQueryer(db), Binder: ingestrepo.NewPG()}
}

// ListFiles implements ingest.LedgerPort
func (r *Reader) ListFiles(ctx context.Context, f ingest.FileFilter) ([]ingest.File, error) {
	return r.Binder.Bind(r.DB).ListFiles(ctx, f)
}

// CountByStatus implements ingest.LedgerPort
func (r *Reader) CountByStatus(ctx context.Context) (map[ingest.Status]int64, error) {
	return r.Binder.Bind(r.DB).CountByStatus(ctx)
}

// ListAdmissions implements ingest.LedgerPort
func (r *Reader) ListAdmissions(ctx context.Context, f ingest.AdmissionFilter) ([]ingest.Admission, error) {
	return r.Binder.Bind(r.DB).ListAdmissions(ctx, f)
}

var _ ingest.LedgerPort = (*Reader)(nil)
