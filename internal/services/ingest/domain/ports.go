package domain

import (
	"context"
	"time"

	"sftpetl/internal/adapters/sinks"
	"sftpetl/internal/core/admissions"
	"sftpetl/internal/core/layers"
)

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	// RunOnce lists the source and processes every new, changed or previously failed file
	RunOnce(ctx context.Context) (RunReport, error)

	// RunFiles reprocesses the named source paths regardless of their ledger state
	RunFiles(ctx context.Context, paths []string) (RunReport, error)
}

// LedgerPort reads the ledger and gold layer for the ops API
type LedgerPort interface {
	ListFiles(ctx context.Context, f FileFilter) ([]File, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
	ListAdmissions(ctx context.Context, f AdmissionFilter) ([]Admission, error)
}

// StorageRepo is the storage repository interface, bound per transaction
type StorageRepo interface {
	// PreseedFiles upserts listed files as pending. Unchanged ok files are left alone unless
	// force is set; running files are never reset. Returns the number of rows touched
	PreseedFiles(ctx context.Context, refs []FileRef, force bool) (int64, error)

	// ClaimNext marks the next eligible file running for runID. ok is false when none is left.
	// A running file whose start is older than staleAfter is eligible again
	ClaimNext(ctx context.Context, runID string, paths []string, staleAfter time.Duration) (c Claim, ok bool, err error)

	// FinishFile records the outcome of a claim
	FinishFile(ctx context.Context, id int64, fin FileFinish) error

	// InsertRaw upserts the bronze record
	InsertRaw(ctx context.Context, rec layers.RawFileRecord) error

	// InsertDecrypted upserts the silver record
	InsertDecrypted(ctx context.Context, rec layers.DecryptedRecord) error

	// DeleteRows drops a file's gold rows ahead of a rewrite
	DeleteRows(ctx context.Context, fileID int64) (int64, error)

	// InsertRows appends gold rows numbering them from startOrdinal
	InsertRows(ctx context.Context, fileID int64, startOrdinal int, rows []admissions.Row) (int64, error)

	ListFiles(ctx context.Context, f FileFilter) ([]File, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
	ListAdmissions(ctx context.Context, f AdmissionFilter) ([]Admission, error)
}

// Decrypter is the decrypt stage
type Decrypter interface {
	// Build constructs the decryption context up front so key problems surface before any file
	Build() error
	FromRecord(rec layers.RawFileRecord) (layers.DecryptedRecord, error)
}

// Parser is the parse stage
type Parser interface {
	FromRecord(rec layers.DecryptedRecord) []admissions.Row
}

// Source is the capture endpoint
type Source interface {
	Name() string
	List(ctx context.Context) ([]FileRef, error)
	Stat(ctx context.Context, path string) (FileRef, error)
	Read(ctx context.Context, ref FileRef) (layers.RawFileRecord, error)
}

// Sink is an optional mirror written after the postgres commit
type Sink = sinks.Sink

// LeaseFunc runs do while holding an exclusive lease on path
type LeaseFunc func(ctx context.Context, path, runID string, do func(context.Context) error) error
