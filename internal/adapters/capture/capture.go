// Package capture lists and reads encrypted drop files from the capture endpoint.
// Sources are one-shot: List returns what is there now and Read pulls one file fully
package capture

import (
	"context"
	"sort"
	"time"

	"sftpetl/internal/core/layers"
	perr "sftpetl/internal/platform/errors"
)

// FileRef identifies one captured file. Path is relative to the source root, slash separated
type FileRef struct {
	Path             string
	ModificationTime time.Time
	Length           int64
}

// Source is a capture endpoint
type Source interface {
	// Name labels the source in logs ("localfs", "s3")
	Name() string

	// List returns every file currently under the root, sorted by path
	List(ctx context.Context) ([]FileRef, error)

	// Stat resolves a single path; missing files are ErrorCodeNotFound
	Stat(ctx context.Context, path string) (FileRef, error)

	// Read returns the full bronze record. A zero-length file yields empty non-nil Content
	Read(ctx context.Context, ref FileRef) (layers.RawFileRecord, error)
}

// Record builds the bronze record for ref, normalizing nil content to an empty slice
// so only "not captured" is ever represented by nil
func Record(ref FileRef, content []byte) layers.RawFileRecord {
	if content == nil {
		content = []byte{}
	}
	return layers.RawFileRecord{
		Path:             ref.Path,
		ModificationTime: ref.ModificationTime.UTC(),
		Length:           int64(len(content)),
		Content:          content,
	}
}

// SortRefs orders refs by path so runs claim files deterministically
func SortRefs(refs []FileRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
}

// Errf wraps a capture failure for path
func Errf(err error, path, op string) error {
	return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeCapture, "capture %s", path), op)
}
